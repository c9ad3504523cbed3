package server

import (
	"context"
	"fmt"

	"github.com/voltlab/eetutor-go/internal/health"
)

// EndpointPinger probes one model-serving endpoint's liveness route through
// the readiness gate's single-probe path (no retries — /api/ready reflects
// the current state, not the eventual one). It satisfies the Pinger
// interface and is used by GET /api/ready.
type EndpointPinger struct {
	// gate issues the probe.
	gate *health.Gate
	// endpoint is the serving endpoint's base URL.
	endpoint string
	// name identifies the endpoint in readiness responses (e.g. "vlm").
	name string
}

// NewEndpointPinger constructs an EndpointPinger for the given endpoint.
func NewEndpointPinger(gate *health.Gate, endpoint, name string) *EndpointPinger {
	return &EndpointPinger{gate: gate, endpoint: endpoint, name: name}
}

// Name returns the endpoint label used in readiness responses.
func (p *EndpointPinger) Name() string { return p.name }

// Ping issues a single liveness probe against the endpoint.
func (p *EndpointPinger) Ping(ctx context.Context) error {
	if err := p.gate.Probe(ctx, p.endpoint); err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}
