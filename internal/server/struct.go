package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltlab/eetutor-go/internal/pipeline"
	"github.com/voltlab/eetutor-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request. Must be
	// large enough to receive a full textbook PDF upload.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. A solve
	// can run for minutes, so this is generous.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the multipart body of POST /api/solve.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// History records solve summaries and serves GET /api/history. If nil,
	// history is disabled.
	History store.HistoryStore
	// Registry receives the server's Prometheus metrics and backs GET
	// /metrics. If nil, a private registry is created.
	Registry *prometheus.Registry
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// solver is the interface handleSolve calls to run the pipeline.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type solver interface {
	// Solve runs the full pipeline for one request. Never returns an error —
	// failures are captured in the envelope.
	Solve(ctx context.Context, req *pipeline.SolveRequest) *pipeline.Envelope
}

// Server is the HTTP server that exposes the solve pipeline.
type Server struct {
	// solver runs the pipeline for POST /api/solve.
	solver solver
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// history records solve summaries; nil when disabled.
	history store.HistoryStore
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// historyResponse is the JSON body for GET /api/history.
type historyResponse struct {
	// Records is the newest-first list of solve summaries.
	Records []store.Record `json:"records"`
}
