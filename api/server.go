// Package api serves the master dataset as read-only JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/dates"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Server exposes a dataset store over HTTP.
type Server struct {
	store dataset.Store
}

// NewServer creates a new API server over store.
func NewServer(store dataset.Store) *Server {
	return &Server{store: store}
}

// ListReleasesResponse is the body of GET /api/v1/releases.
type ListReleasesResponse struct {
	Releases []dataset.MasterRecord `json:"releases"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

// ListCompaniesResponse is the body of GET /api/v1/companies.
type ListCompaniesResponse struct {
	Companies []dataset.CompanySummary `json:"companies"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/releases", s.handleListReleases)
		r.Get("/releases/{id}", s.handleGetRelease)
		r.Get("/companies", s.handleListCompanies)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting api server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListReleases handles GET /api/v1/releases.
func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := dataset.Filter{Company: query.Get("company")}

	if since := query.Get("since"); since != "" {
		t, err := time.Parse(dates.Layout, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid since parameter: must be YYYY-MM-DD")
			return
		}
		filter.Since = &t
	}
	if until := query.Get("until"); until != "" {
		t, err := time.Parse(dates.Layout, until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid until parameter: must be YYYY-MM-DD")
			return
		}
		filter.Until = &t
	}

	switch sortParam := query.Get("sort"); sortParam {
	case "", "-date", "date", "company":
		filter.Sort = sortParam
	default:
		writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid sort parameter: must be date, -date or company")
		return
	}

	limit := defaultLimit
	if limitParam := query.Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return
		}
		limit = min(parsed, maxLimit)
	}

	offset := 0
	if offsetParam := query.Get("offset"); offsetParam != "" {
		parsed, err := strconv.Atoi(offsetParam)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "Invalid offset parameter")
			return
		}
		offset = parsed
	}

	// Total is counted before pagination
	all, err := s.store.List(r.Context(), filter)
	if err != nil {
		zap.L().Error("list releases failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list releases")
		return
	}

	writeJSON(w, http.StatusOK, ListReleasesResponse{
		Releases: paginate(all, offset, limit),
		Total:    len(all),
		Limit:    limit,
		Offset:   offset,
	})
}

// handleGetRelease handles GET /api/v1/releases/{id}.
func (s *Server) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "Release ID is required")
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, dataset.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Release with ID "+id+" not found")
		return
	}
	if err != nil {
		zap.L().Error("get release failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get release")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleListCompanies handles GET /api/v1/companies.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.store.Companies(r.Context())
	if err != nil {
		zap.L().Error("list companies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list companies")
		return
	}
	if companies == nil {
		companies = []dataset.CompanySummary{}
	}

	writeJSON(w, http.StatusOK, ListCompaniesResponse{Companies: companies})
}

// paginate returns a slice of records for the given offset and limit.
func paginate(records []dataset.MasterRecord, offset, limit int) []dataset.MasterRecord {
	if offset >= len(records) {
		return []dataset.MasterRecord{}
	}

	end := min(offset+limit, len(records))

	return records[offset:end]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
