// Package health implements the readiness gate for remote inference
// endpoints. The two model-serving processes load multi-gigabyte weights on
// startup, so being reachable is not the same as being able to serve — the
// gate polls each endpoint's liveness route until it answers healthy or the
// retry budget is exhausted.
//
// Every stage that talks to a model-serving endpoint must call [Gate.Await]
// before issuing its first request; the gate is the only place in the system
// that retries.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/voltlab/eetutor-go/internal/logging"
)

// ErrServiceUnavailable is returned by [Gate.Await] when an endpoint never
// became ready within the configured retry budget.
var ErrServiceUnavailable = errors.New("service unavailable")

// Default gate parameters. 30 × 10s covers a cold model load from a warm
// weight cache; tune via HEALTH_* env vars for slower deployments.
const (
	defaultMaxAttempts  = 30
	defaultProbeTimeout = 30 * time.Second
	defaultInterval     = 10 * time.Second
)

// Config holds the readiness gate parameters.
type Config struct {
	// MaxAttempts is the number of probes issued before giving up.
	MaxAttempts int
	// ProbeTimeout bounds each individual probe request. Kept short —
	// a probe that hangs is treated the same as one that fails.
	ProbeTimeout time.Duration
	// Interval is the sleep between consecutive failed probes.
	Interval time.Duration
}

// Gate polls remote endpoints for readiness. It is safe for concurrent use;
// one Gate is shared by all stages.
type Gate struct {
	// cfg holds the resolved gate parameters.
	cfg Config
	// client is the HTTP client used for probes. Per-probe timeouts are
	// applied via context, not on the client.
	client *http.Client
}

// NewGate constructs a Gate, filling zero config fields with defaults.
func NewGate(cfg *Config) *Gate {
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg
	if resolved.MaxAttempts <= 0 {
		resolved.MaxAttempts = defaultMaxAttempts
	}
	if resolved.ProbeTimeout <= 0 {
		resolved.ProbeTimeout = defaultProbeTimeout
	}
	if resolved.Interval <= 0 {
		resolved.Interval = defaultInterval
	}
	return &Gate{cfg: resolved, client: &http.Client{}}
}

// NewGateFromEnv constructs a Gate from HEALTH_MAX_ATTEMPTS,
// HEALTH_PROBE_TIMEOUT, and HEALTH_INTERVAL. Unset or unparseable values
// fall back to the defaults.
func NewGateFromEnv() *Gate {
	cfg := &Config{}
	if v := os.Getenv("HEALTH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("HEALTH_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProbeTimeout = d
		}
	}
	if v := os.Getenv("HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Interval = d
		}
	}
	return NewGate(cfg)
}

// Await blocks until the endpoint answers its liveness probe with a 2xx
// status, retrying up to MaxAttempts times with Interval between attempts.
// Any transport error or non-2xx status counts as "not yet ready".
// Returns an error wrapping [ErrServiceUnavailable] once the budget is
// exhausted, or the context error if ctx is cancelled while waiting.
func (g *Gate) Await(ctx context.Context, endpoint string) error {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		lastErr = g.Probe(ctx, endpoint)
		if lastErr == nil {
			log.Debug("health: endpoint ready",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
			)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("health: await %s: %w", endpoint, ctx.Err())
		}

		log.Warn("health: endpoint not ready",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", g.cfg.MaxAttempts),
			slog.Any("error", lastErr),
		)

		if attempt < g.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("health: await %s: %w", endpoint, ctx.Err())
			case <-time.After(g.cfg.Interval):
			}
		}
	}

	return fmt.Errorf("health: endpoint %s not ready after %d attempts (last: %v): %w",
		endpoint, g.cfg.MaxAttempts, lastErr, ErrServiceUnavailable)
}

// Probe issues a single liveness request against <endpoint>/health with the
// configured per-probe timeout. Returns nil on any 2xx status, a descriptive
// error otherwise. Used directly by the HTTP server's readiness handler.
func (g *Gate) Probe(ctx context.Context, endpoint string) error {
	probeCtx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("health: create probe request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("health: probe failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused across attempts.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health: probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}
