// Package server exposes the sifting pipeline and client registry over
// HTTP with JSON bodies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/archive"
	"github.com/reinkaoss/sifting-tool/internal/clients"
	"github.com/reinkaoss/sifting-tool/internal/pipeline"
	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/sheets"
)

// Batches is the archive lookup used by the batch routes.
type Batches interface {
	Get(ctx context.Context, id string) (archive.Batch, error)
	List(ctx context.Context, limit int) ([]archive.Batch, error)
}

// Deps are the collaborators a Server routes to. Sheets and Batches may be
// nil; their routes then answer 503.
type Deps struct {
	Clients     *clients.Registry
	Analyzer    *pipeline.Analyzer
	Sheets      sheets.Opener
	Batches     Batches
	StartColumn int
	AllowOrigin []string
}

// Server holds the HTTP handlers.
type Server struct {
	deps   Deps
	logger *zap.Logger
}

// New returns a Server. A nil logger discards output.
func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.StartColumn < 1 {
		deps.StartColumn = sheets.AnalysisStartColumn
	}
	if len(deps.AllowOrigin) == 0 {
		deps.AllowOrigin = []string{"*"}
	}
	return &Server{deps: deps, logger: logger.Named("server")}
}

// RegisterRoutes adds the routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /clients", s.handleListClients)
	mux.HandleFunc("POST /clients", s.handleAddClient)
	mux.HandleFunc("DELETE /clients", s.handleDeleteClient)
	mux.HandleFunc("GET /sheets/unanalyzed", s.handleUnanalyzed)
	mux.HandleFunc("GET /sheets/analyzed", s.handleAnalyzed)
	mux.HandleFunc("POST /sheets/analyze", s.handleAnalyzeSheet)
	mux.HandleFunc("POST /analyze", s.handleAnalyzeRecords)
	mux.HandleFunc("GET /batches", s.handleListBatches)
	mux.HandleFunc("GET /batches/{id}", s.handleGetBatch)
}

// Handler returns the routes wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.withLogging(s.withCORS(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.deps.AllowOrigin {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// withCORS sets the CORS headers and answers preflight requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o := s.allowedOrigin(r.Header.Get("Origin")); o != "" {
			w.Header().Set("Access-Control-Allow-Origin", o)
			if o != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// ── Clients ──────────────────────────────────────────────────────────────────

type clientRequest struct {
	ClientName string          `json:"clientName"`
	Criteria   schema.Criteria `json:"criteria"`
	Layout     clients.Layout  `json:"layout"`
	Label      string          `json:"label"`
	// SheetID is accepted for compatibility; clients are stored locally.
	SheetID string `json:"sheetId"`
}

func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clients": s.deps.Clients.List()})
}

func (s *Server) handleAddClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		writeError(w, http.StatusBadRequest, "Client name is required")
		return
	}
	c := clients.Client{Name: req.ClientName, Criteria: req.Criteria, Layout: req.Layout, Label: req.Label}
	if err := s.deps.Clients.Add(c); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, clients.ErrInvalidClient) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("add client failed", zap.String("client", req.ClientName), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Client %q saved", strings.TrimSpace(req.ClientName)),
	})
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		writeError(w, http.StatusBadRequest, "Client name is required")
		return
	}
	if err := s.deps.Clients.Delete(req.ClientName); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, clients.ErrUnknownClient) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Client %q deleted", strings.TrimSpace(req.ClientName)),
	})
}

// ── Sheets ───────────────────────────────────────────────────────────────────

func (s *Server) readSheet(w http.ResponseWriter, r *http.Request) ([][]string, bool) {
	if s.deps.Sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "spreadsheet access is not configured")
		return nil, false
	}
	q := r.URL.Query()
	store, err := s.deps.Sheets.Open(r.Context(), q.Get("sheetId"), q.Get("gid"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	rows, err := store.ReadRows(r.Context(), "")
	if err != nil {
		s.logger.Warn("sheet read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return rows, true
}

func (s *Server) handleUnanalyzed(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.readSheet(w, r)
	if !ok {
		return
	}
	apps := sheets.Unanalyzed(rows, s.deps.StartColumn)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(apps), "applications": apps})
}

func (s *Server) handleAnalyzed(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.readSheet(w, r)
	if !ok {
		return
	}
	apps := sheets.Analyzed(rows, s.deps.StartColumn)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(apps), "applications": apps})
}

type analyzeSheetRequest struct {
	SelectedRows         []int  `json:"selectedRows"`
	Client               string `json:"client"`
	JobDescription       string `json:"jobDescription"`
	SupportingReferences string `json:"supportingReferences"`
	SheetID              string `json:"sheetId"`
	GID                  string `json:"gid"`
}

type analyzeSheetResponse struct {
	Success bool `json:"success"`
	*pipeline.Outcome
}

func (s *Server) handleAnalyzeSheet(w http.ResponseWriter, r *http.Request) {
	var req analyzeSheetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.SelectedRows) == 0 || req.Client == "" || req.JobDescription == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	client, err := s.deps.Clients.Get(req.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.deps.Analyzer.AnalyzeRows(r.Context(), pipeline.RowsRequest{
		Client:               client,
		JobDescription:       req.JobDescription,
		SupportingReferences: req.SupportingReferences,
		SpreadsheetID:        req.SheetID,
		GID:                  req.GID,
		Rows:                 req.SelectedRows,
	})
	if err != nil {
		s.logger.Error("sheet analysis failed", zap.String("client", req.Client), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analyzeSheetResponse{Success: true, Outcome: out})
}

type analyzeRecordsRequest struct {
	Client               string `json:"client"`
	JobDescription       string `json:"jobDescription"`
	SupportingReferences string `json:"supportingReferences"`
	CSVData              string `json:"csvData"`
	UserCount            int    `json:"userCount"`
}

func (s *Server) handleAnalyzeRecords(w http.ResponseWriter, r *http.Request) {
	var req analyzeRecordsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Client == "" || req.JobDescription == "" || req.CSVData == "" || req.UserCount < 1 {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	client, err := s.deps.Clients.Get(req.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.deps.Analyzer.AnalyzeRecords(r.Context(), pipeline.RecordsRequest{
		Client:               client,
		JobDescription:       req.JobDescription,
		SupportingReferences: req.SupportingReferences,
		Records:              req.CSVData,
		Count:                req.UserCount,
	})
	if err != nil {
		s.logger.Error("record analysis failed", zap.String("client", req.Client), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analysis":  out.Analysis,
		"userCount": out.Count,
		"client":    out.Client,
		"batch_id":  out.BatchID,
		"failed":    out.Failed,
	})
}

// ── Batches ──────────────────────────────────────────────────────────────────

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Batches == nil {
		writeError(w, http.StatusServiceUnavailable, "archive is not configured")
		return
	}
	list, err := s.deps.Batches.List(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "batches": list})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Batches == nil {
		writeError(w, http.StatusServiceUnavailable, "archive is not configured")
		return
	}
	b, err := s.deps.Batches.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}
