package api

import (
	"net/http"
	"path"

	"github.com/zombor/trip-expenses/internal/expense"
)

// handleListExpenses returns expenses with trip and category names. ?trip_id=
// narrows to one trip; ?unassigned=true lists expenses without a trip.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("unassigned") == "true" {
		expenses, err := s.store.Expenses.GetUnassigned(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, expenses)
		return
	}

	tripID, ok := queryID(r, "trip_id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid trip_id", nil)
		return
	}
	expenses, err := s.store.Stats.ExpensesWithDetails(r.Context(), tripID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var m expense.CreateExpenseModel
	if !decodeBody(w, r, &m) {
		return
	}
	if m.CaptureMethod == "" {
		m.CaptureMethod = expense.CaptureManual
	}
	created, err := s.store.Expenses.Create(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, ok := s.existingExpense(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleUpdateExpense applies a partial update. A field sent as null is cleared,
// an omitted field is left unchanged.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	var m expense.UpdateExpenseModel
	if !decodeBody(w, r, &m) {
		return
	}
	m.ID = id
	updated, err := s.store.Expenses.Update(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return
	}
	if err := s.store.Expenses.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) existingExpense(w http.ResponseWriter, r *http.Request) (*expense.Expense, bool) {
	id, ok := pathID(r)
	if !ok {
		badID(w)
		return nil, false
	}
	e, err := s.store.Expenses.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if e == nil {
		notFound(w, "expense", id)
		return nil, false
	}
	return e, true
}

// handleExpenseFile serves the receipt image, or its thumbnail, of an expense
func (s *Server) handleExpenseFile(thumbnail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.existingExpense(w, r)
		if !ok {
			return
		}

		filePath := e.ReceiptImagePath
		if thumbnail {
			if e.ThumbnailPath == nil {
				writeJSONError(w, http.StatusNotFound, "No thumbnail for this expense", nil)
				return
			}
			filePath = *e.ThumbnailPath
		}

		data, err := s.files.Get(filePath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "File not found", nil)
			return
		}

		contentType := contentTypeForName(path.Base(filePath))
		if contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=86400")
		w.Write(data)
	}
}
