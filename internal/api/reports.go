package api

import (
	"net/http"
	"strings"
)

// handleAllStatistics returns statistics for every trip keyed by trip id
func (s *Server) handleAllStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats.AllTripsStatistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Stats.OverallSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleSearch matches ?q= against merchant, category and notes, optionally within ?trip_id=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSONError(w, http.StatusBadRequest, "Search term required", nil)
		return
	}
	tripID, ok := queryID(r, "trip_id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid trip_id", nil)
		return
	}
	results, err := s.store.Stats.Search(r.Context(), q, tripID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
