package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltlab/eetutor-go/internal/codegen"
	"github.com/voltlab/eetutor-go/internal/diagram"
	"github.com/voltlab/eetutor-go/internal/health"
	"github.com/voltlab/eetutor-go/internal/pipeline"
	"github.com/voltlab/eetutor-go/internal/provider"
	"github.com/voltlab/eetutor-go/internal/reasoner"
	"github.com/voltlab/eetutor-go/internal/retrieval"
	"github.com/voltlab/eetutor-go/internal/server"
)

// stack is the fully wired pipeline plus the pieces the serve command needs
// around it.
type stack struct {
	// pipeline is the solve orchestrator.
	pipeline *pipeline.Pipeline
	// pingers are the dependency probes for GET /api/ready.
	pingers []server.Pinger
	// registry carries the pipeline metrics; the server adds its own.
	registry *prometheus.Registry
}

// buildStack wires the whole pipeline from the environment: readiness gate,
// chat models, retrieval engine, diagram compiler, and metrics.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	gate := health.NewGateFromEnv()

	vlmCfg := provider.VLMConfigFromEnv()
	vlmModel, err := provider.New(ctx, vlmCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise reasoning model: %w", err)
	}
	codegenCfg := provider.CodegenConfigFromEnv()
	codegenModel, err := provider.New(ctx, codegenCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise code-generation model: %w", err)
	}
	log.Info("chat models initialised",
		slog.String("vlm", vlmCfg.Model),
		slog.String("codegen", codegenCfg.Model),
	)

	timeout := provider.RequestTimeoutFromEnv()
	reasonStage, err := reasoner.NewStage(vlmModel, gate, vlmCfg.Endpoint, timeout)
	if err != nil {
		return nil, err
	}
	codegenStage, err := codegen.NewStage(codegenModel, gate, codegenCfg.Endpoint, timeout)
	if err != nil {
		return nil, err
	}

	embedder := retrieval.NewColPaliClientFromEnv()
	rasterizer, err := retrieval.NewPopplerRasterizer()
	if err != nil {
		return nil, err
	}
	engine, err := retrieval.NewEngine(embedder, rasterizer, retrievalConfigFromEnv())
	if err != nil {
		return nil, err
	}

	compiler, err := diagram.NewCompiler(diagramConfigFromEnv())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()

	endpoints := []string{vlmCfg.Endpoint, codegenCfg.Endpoint, embedder.Endpoint()}
	p, err := pipeline.New(&pipeline.Config{
		Retriever:        engine,
		Reasoner:         reasonStage,
		Generator:        codegenStage,
		Compiler:         compiler,
		ResolveEndpoints: endpointResolver(endpoints),
		Metrics:          pipeline.NewMetrics(registry),
	})
	if err != nil {
		return nil, err
	}

	pingers := []server.Pinger{
		server.NewEndpointPinger(gate, vlmCfg.Endpoint, "vlm"),
		server.NewEndpointPinger(gate, codegenCfg.Endpoint, "codegen"),
		server.NewEndpointPinger(gate, embedder.Endpoint(), "embedding"),
	}

	return &stack{pipeline: p, pingers: pingers, registry: registry}, nil
}

// endpointResolver validates the serving endpoint URLs. It runs concurrently
// with document indexing, so a typo'd endpoint fails the request before the
// first completion call would.
func endpointResolver(endpoints []string) func(context.Context) error {
	return func(context.Context) error {
		for _, e := range endpoints {
			if e == "" {
				return fmt.Errorf("endpoint not configured")
			}
			if _, err := url.ParseRequestURI(e); err != nil {
				return fmt.Errorf("invalid endpoint %q: %w", e, err)
			}
		}
		return nil
	}
}

// retrievalConfigFromEnv resolves the retrieval engine settings from
// RETRIEVAL_BATCH_SIZE, RETRIEVAL_TOP_K, and RETRIEVAL_RENDER_DPI.
func retrievalConfigFromEnv() *retrieval.Config {
	return &retrieval.Config{
		BatchSize: envInt("RETRIEVAL_BATCH_SIZE"),
		TopK:      envInt("RETRIEVAL_TOP_K"),
		RenderDPI: envInt("RETRIEVAL_RENDER_DPI"),
	}
}

// diagramConfigFromEnv resolves the compiler settings from
// DIAGRAM_PYTHON_BIN, DIAGRAM_DPI, and DIAGRAM_TIMEOUT.
func diagramConfigFromEnv() *diagram.Config {
	cfg := &diagram.Config{
		PythonBin: os.Getenv("DIAGRAM_PYTHON_BIN"),
		DPI:       envInt("DIAGRAM_DPI"),
	}
	if v := os.Getenv("DIAGRAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// envInt returns the integer value of the named environment variable, or 0
// (meaning "use the component default") when unset or unparseable.
func envInt(key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
