// Package server implements the HTTP server that exposes the solve pipeline
// via a REST API: multipart solve requests in, solution envelopes out, plus
// liveness, readiness, history, and metrics endpoints.
// The server is started by the `eetutor serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltlab/eetutor-go/internal/logging"
	"github.com/voltlab/eetutor-go/internal/pipeline"
	"github.com/voltlab/eetutor-go/internal/store"
)

// defaultMaxUploadBytes bounds the solve request body. Textbook chapters run
// tens of megabytes; whole scanned books do not belong in one request.
const defaultMaxUploadBytes = 64 << 20

// New constructs a Server from the provided pipeline and config.
func New(p solver, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: solver must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full pipeline run.
		cfg.WriteTimeout = 15 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	s := &Server{
		solver:  p,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		history: cfg.History,
		metrics: newServerMetrics(cfg.Registry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not configured — authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/solve", authMiddleware(cfg.APIKey, rl.middleware(
		s.instrument("solve", http.HandlerFunc(s.handleSolve)))))
	mux.Handle("GET /api/history", authMiddleware(cfg.APIKey, rl.middleware(
		s.instrument("history", http.HandlerFunc(s.handleHistory)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleSolve handles POST /api/solve. The body is multipart/form-data with a
// "question" field, one "pdf" file, and zero or more "images" files. The
// response is always the solution envelope — stage failures come back as
// success=false inside a 200, matching the orchestrator's never-throws
// contract. Only a malformed request earns a 4xx.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	question := r.FormValue("question")
	if question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	document, err := readFormFile(r, "pdf")
	if err != nil {
		http.Error(w, "pdf upload is required", http.StatusBadRequest)
		return
	}

	var userImages [][]byte
	if files := r.MultipartForm.File["images"]; len(files) > 0 {
		for _, fh := range files {
			img, err := readFileHeader(fh)
			if err != nil {
				http.Error(w, "unreadable image upload", http.StatusBadRequest)
				return
			}
			userImages = append(userImages, img)
		}
	}

	topK := 0
	if v := r.FormValue("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "top_k must be a non-negative integer", http.StatusBadRequest)
			return
		}
		topK = n
	}

	env := s.solver.Solve(r.Context(), &pipeline.SolveRequest{
		Question:   question,
		Document:   document,
		UserImages: userImages,
		TopK:       topK,
	})

	s.recordHistory(r.Context(), env)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error("solve encode error", slog.Any("error", err))
	}
}

// recordHistory persists the solve summary. History failures are logged,
// never surfaced — the user already has their answer.
func (s *Server) recordHistory(ctx context.Context, env *pipeline.Envelope) {
	if s.history == nil || env.Metadata == nil {
		return
	}
	rec := store.Record{
		RequestID:      env.Metadata.RequestID,
		Question:       env.Question,
		Success:        env.Success,
		DiagramOK:      env.CircuitDiagram != nil && env.CircuitDiagram.Success,
		ElapsedSeconds: env.Metadata.TotalProcessingTime,
	}
	if err := s.history.Append(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("server: history append failed", slog.Any("error", err))
	}
}

// handleHistory handles GET /api/history?limit=N (default 20, max 200).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.history == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		log.Error("history query failed", slog.Any("error", err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(historyResponse{Records: recs}); err != nil {
		log.Error("history encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readFormFile reads the first uploaded file under the given field name.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// readFileHeader reads one multipart file part fully into memory.
func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
