package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/trip-expenses/internal/expense"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20) // 50MB

const tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// contentTypeForName guesses the MIME type of a receipt from its extension
func contentTypeForName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt stores an uploaded receipt. By default it is queued and
// 202 is returned with the queue item; with ?sync=true it is scanned right away
// and 201 is returned with the created expense.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = tooLargeMessage
		}
		writeJSONError(w, http.StatusBadRequest, msg, nil)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		writeJSONError(w, http.StatusBadRequest, msg, nil)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSONError(w, http.StatusBadRequest, tooLargeMessage, nil)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.", nil)
		return
	}
	if len(data) == 0 {
		writeJSONError(w, http.StatusBadRequest, "The uploaded file is empty.", nil)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeForName(header.Filename)
	}

	if r.URL.Query().Get("sync") == "true" {
		created, err := s.intake.ProcessReceipt(r.Context(), header.Filename, data, contentType)
		if err != nil {
			slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	item, err := s.intake.Submit(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error queueing receipt", "filename", header.Filename, "error", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

// handleListQueue returns queue items, optionally filtered by ?status=
func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.Queue.List(r.Context(), expense.QueueStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleRetryQueueItem puts a failed item back in the queue
func (s *Server) handleRetryQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	if err := s.store.Queue.Retry(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.store.Queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
