package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newProbeServer returns a test server whose /health route fails with 503
// for the first failures requests and succeeds afterwards, along with a
// counter of probes received.
func newProbeServer(t *testing.T, failures int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("probe path: expected /health, got %s", r.URL.Path)
		}
		n := calls.Add(1)
		if int(n) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// TestAwait_ImmediateSuccess verifies that a healthy endpoint is accepted
// after exactly one probe.
func TestAwait_ImmediateSuccess(t *testing.T) {
	t.Parallel()

	srv, calls := newProbeServer(t, 0)
	g := NewGate(&Config{MaxAttempts: 5, ProbeTimeout: time.Second, Interval: time.Millisecond})

	if err := g.Await(context.Background(), srv.URL); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("probes: expected 1, got %d", got)
	}
}

// TestAwait_SucceedsAfterRetries verifies that the gate keeps probing through
// failures and stops on the first success — no extra probes afterwards.
func TestAwait_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	srv, calls := newProbeServer(t, 3)
	g := NewGate(&Config{MaxAttempts: 10, ProbeTimeout: time.Second, Interval: time.Millisecond})

	if err := g.Await(context.Background(), srv.URL); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("probes: expected 4, got %d", got)
	}
}

// TestAwait_BudgetExhausted verifies that a never-ready endpoint fails with
// ErrServiceUnavailable after exactly MaxAttempts probes.
func TestAwait_BudgetExhausted(t *testing.T) {
	t.Parallel()

	srv, calls := newProbeServer(t, 1000)
	g := NewGate(&Config{MaxAttempts: 3, ProbeTimeout: time.Second, Interval: time.Millisecond})

	err := g.Await(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Await: expected error for never-ready endpoint")
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("probes: expected exactly 3, got %d", got)
	}
}

// TestAwait_BackoffBetweenAttempts verifies that consecutive failed probes
// are separated by at least the configured interval.
func TestAwait_BackoffBetweenAttempts(t *testing.T) {
	t.Parallel()

	srv, _ := newProbeServer(t, 1000)
	interval := 30 * time.Millisecond
	g := NewGate(&Config{MaxAttempts: 3, ProbeTimeout: time.Second, Interval: interval})

	start := time.Now()
	_ = g.Await(context.Background(), srv.URL)
	elapsed := time.Since(start)

	// Three attempts means two sleeps.
	if min := 2 * interval; elapsed < min {
		t.Errorf("elapsed %v, expected at least %v", elapsed, min)
	}
}

// TestAwait_TransportError verifies that an unreachable endpoint counts as
// "not ready" and eventually exhausts the budget.
func TestAwait_TransportError(t *testing.T) {
	t.Parallel()

	g := NewGate(&Config{MaxAttempts: 2, ProbeTimeout: 100 * time.Millisecond, Interval: time.Millisecond})

	err := g.Await(context.Background(), "http://127.0.0.1:1")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

// TestAwait_ContextCancelled verifies that cancelling the context while the
// gate is backing off surfaces the context error, not ErrServiceUnavailable.
func TestAwait_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := newProbeServer(t, 1000)
	g := NewGate(&Config{MaxAttempts: 100, ProbeTimeout: time.Second, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := g.Await(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestProbe_NonSuccessStatus verifies that a 4xx liveness response is
// reported as an error by a single probe.
func TestProbe_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	g := NewGate(nil)
	if err := g.Probe(context.Background(), srv.URL); err == nil {
		t.Error("Probe: expected error for 404 response")
	}
}
