// Package api serves the expense store over HTTP as JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/trip-expenses/internal/database"
	"github.com/zombor/trip-expenses/internal/expense"
)

// Intake accepts uploaded receipts
type Intake interface {
	Submit(ctx context.Context, filename string, data []byte, contentType string) (*expense.QueueItem, error)
	ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*expense.Expense, error)
}

// Files reads stored receipt images and thumbnails
type Files interface {
	Get(path string) ([]byte, error)
}

// Server handles HTTP requests for trips and expenses
type Server struct {
	store     *expense.Store
	intake    Intake
	files     Files
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(store *expense.Store, intake Intake, files Files, basicAuth BasicAuth) *Server {
	return NewServerWithMux(store, intake, files, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(store *expense.Store, intake Intake, files Files, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		store:     store,
		intake:    intake,
		files:     files,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Trip Expenses"`)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	routes := map[string]http.HandlerFunc{
		"GET /api/trips":                 s.handleListTrips,
		"POST /api/trips":                s.handleCreateTrip,
		"GET /api/trips/{id}":            s.handleGetTrip,
		"PATCH /api/trips/{id}":          s.handleUpdateTrip,
		"DELETE /api/trips/{id}":         s.handleDeleteTrip,
		"GET /api/trips/{id}/statistics": s.handleTripStatistics,
		"GET /api/trips/{id}/categories": s.handleCategoryBreakdown,
		"GET /api/trips/{id}/export":     s.handleExport,
		"POST /api/trips/{id}/reassign":  s.handleReassign,

		"GET /api/expenses":                s.handleListExpenses,
		"POST /api/expenses":               s.handleCreateExpense,
		"GET /api/expenses/{id}":           s.handleGetExpense,
		"PATCH /api/expenses/{id}":         s.handleUpdateExpense,
		"DELETE /api/expenses/{id}":        s.handleDeleteExpense,
		"GET /api/expenses/{id}/receipt":   s.handleExpenseFile(false),
		"GET /api/expenses/{id}/thumbnail": s.handleExpenseFile(true),

		"GET /api/categories":            s.handleListCategories,
		"POST /api/categories":           s.handleCreateCategory,
		"DELETE /api/categories/{id}":    s.handleDeleteCategory,
		"GET /api/rules":                 s.handleListRules,
		"POST /api/rules":                s.handleCreateRule,
		"DELETE /api/rules/{id}":         s.handleDeleteRule,
		"GET /api/settings/{key}":        s.handleGetSetting,
		"PUT /api/settings/{key}":        s.handlePutSetting,
		"GET /api/statistics":            s.handleAllStatistics,
		"GET /api/summary":               s.handleSummary,
		"GET /api/search":                s.handleSearch,
		"POST /api/receipts":             s.handleUploadReceipt,
		"GET /api/queue":                 s.handleListQueue,
		"POST /api/queue/{id}/retry":     s.handleRetryQueueItem,
	}
	for pattern, handler := range routes {
		s.mux.HandleFunc(pattern, s.requireAuth(handler))
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeHTTP adds CORS headers and answers preflight requests before routing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	writeJSON(w, status, errorResponse{Error: message, Fields: fields})
}

// writeError maps storage errors to status codes. Unexpected errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *database.ValidationError
		nerr *database.NotFoundError
		cerr *database.ConstraintError
		uerr *database.UninitializedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, verr.Error(), verr.Fields)
	case errors.As(err, &nerr):
		writeJSONError(w, http.StatusNotFound, nerr.Error(), nil)
	case errors.As(err, &cerr):
		writeJSONError(w, http.StatusConflict, cerr.Error(), nil)
	case errors.As(err, &uerr):
		writeJSONError(w, http.StatusServiceUnavailable, "Database not available", nil)
	default:
		slog.Error("Error handling request", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// pathID parses the {id} path value
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional positive integer query parameter
func queryID(r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

// decodeBody reads a JSON request body into v, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

func badID(w http.ResponseWriter) {
	writeJSONError(w, http.StatusBadRequest, "Invalid id", nil)
}

func notFound(w http.ResponseWriter, entity string, id int64) {
	writeJSONError(w, http.StatusNotFound, (&database.NotFoundError{Entity: entity, ID: id}).Error(), nil)
}
