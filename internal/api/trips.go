package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zombor/trip-expenses/internal/expense"
	"github.com/zombor/trip-expenses/internal/export"
)

// handleListTrips returns trips, optionally filtered by ?status=
func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.store.Trips.GetAll(r.Context(), expense.TripStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var m expense.CreateTripModel
	if !decodeBody(w, r, &m) {
		return
	}
	trip, err := s.store.Trips.Create(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	trip, ok := s.existingTrip(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// handleUpdateTrip applies a partial update; omitted fields are left unchanged
func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	var m expense.UpdateTripModel
	if !decodeBody(w, r, &m) {
		return
	}
	m.ID = id
	trip, err := s.store.Trips.Update(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	if err := s.store.Trips.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// existingTrip resolves the {id} path value to a trip, writing the error response when it cannot
func (s *Server) existingTrip(w http.ResponseWriter, r *http.Request) (*expense.Trip, bool) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return nil, false
	}
	trip, err := s.store.Trips.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if trip == nil {
		notFound(w, "trip", id)
		return nil, false
	}
	return trip, true
}

func (s *Server) handleTripStatistics(w http.ResponseWriter, r *http.Request) {
	trip, ok := s.existingTrip(w, r)
	if !ok {
		return
	}
	stats, err := s.store.Stats.TripStatistics(r.Context(), trip.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	trip, ok := s.existingTrip(w, r)
	if !ok {
		return
	}
	breakdown, err := s.store.Stats.CategoryBreakdown(r.Context(), trip.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// handleExport downloads the trip's expenses as ?format=xlsx (default) or csv
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	trip, ok := s.existingTrip(w, r)
	if !ok {
		return
	}

	format := export.FormatXLSX
	if raw := r.URL.Query().Get("format"); raw != "" {
		var err error
		if format, err = export.ParseFormat(raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	rows, err := s.store.Stats.ExportData(r.Context(), trip.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// render fully before writing headers so a failure can still be reported
	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(trip.Name, format)))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Error writing export", "trip_id", trip.ID, "error", err)
	}
}

type reassignRequest struct {
	To *int64 `json:"to"`
}

type reassignResponse struct {
	Moved int64 `json:"moved"`
}

// handleReassign moves every expense of the trip to another trip, or detaches them when "to" is null
func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	var req reassignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := s.store.Expenses.Reassign(r.Context(), id, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reassignResponse{Moved: n})
}
