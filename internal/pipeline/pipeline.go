// Package pipeline implements the orchestrator: the one function that turns
// a question plus a textbook PDF into a solution envelope. It owns the
// sequencing and parallelism between stages, per-stage timing, and the
// conversion of stage failures into a structured response — it never lets an
// error escape past its boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voltlab/eetutor-go/internal/diagram"
	"github.com/voltlab/eetutor-go/internal/logging"
	"github.com/voltlab/eetutor-go/internal/retrieval"
)

// Stage names used in timings, logs, and metrics.
const (
	stageIndex    = "index"
	stageResolve  = "resolve_endpoints"
	stageRetrieve = "retrieve"
	stageReason   = "reason"
	stageCodegen  = "codegen"
	stageCompile  = "compile"
)

// Retriever is the indexing/scoring surface the orchestrator needs.
// Satisfied by retrieval.Engine.
type Retriever interface {
	Index(ctx context.Context, document []byte) (*retrieval.PageIndex, error)
	TopK(ctx context.Context, query string, idx *retrieval.PageIndex, k int) ([][]byte, error)
}

// Reasoner produces the textual solution. Satisfied by reasoner.Stage.
type Reasoner interface {
	Analyze(ctx context.Context, question string, userImages, contextPages [][]byte) (string, error)
}

// CodeGenerator produces the diagram program. Satisfied by codegen.Stage.
type CodeGenerator interface {
	Generate(ctx context.Context, question, solution string) (string, error)
}

// Compiler renders the diagram program. Satisfied by diagram.Compiler.
// Compile never fails with an error — failures are structured in the Result.
type Compiler interface {
	Compile(ctx context.Context, program string) *diagram.Result
}

// Config wires the orchestrator's stages together.
type Config struct {
	// Retriever indexes the document and scores the query against it.
	Retriever Retriever
	// Reasoner is the vision-language reasoning stage.
	Reasoner Reasoner
	// Generator is the code-generation stage.
	Generator CodeGenerator
	// Compiler renders the generated diagram program.
	Compiler Compiler
	// ResolveEndpoints verifies the remote serving endpoints while indexing
	// runs in the background. Optional.
	ResolveEndpoints func(ctx context.Context) error
	// Metrics receives per-stage and per-outcome observations. Optional.
	Metrics *Metrics
}

// Pipeline is the orchestrator. One Pipeline is shared by all requests.
type Pipeline struct {
	retriever Retriever
	reasoner  Reasoner
	generator CodeGenerator
	compiler  Compiler
	resolve   func(ctx context.Context) error
	metrics   *Metrics
}

// New constructs a Pipeline, rejecting missing stages at startup.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever must not be nil")
	}
	if cfg.Reasoner == nil {
		return nil, fmt.Errorf("pipeline: reasoner must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("pipeline: compiler must not be nil")
	}
	return &Pipeline{
		retriever: cfg.Retriever,
		reasoner:  cfg.Reasoner,
		generator: cfg.Generator,
		compiler:  cfg.Compiler,
		resolve:   cfg.ResolveEndpoints,
		metrics:   cfg.Metrics,
	}, nil
}

// indexOutcome is the join message from the background indexing task.
type indexOutcome struct {
	idx     *retrieval.PageIndex
	err     error
	elapsed time.Duration
}

// Solve runs the full pipeline for one request. It never returns an error:
// any stage failure is captured into a success=false envelope, and a diagram
// compile failure is nested inside an otherwise successful envelope.
func (p *Pipeline) Solve(ctx context.Context, req *SolveRequest) *Envelope {
	start := time.Now()
	run := &solveRun{
		requestID: uuid.NewString(),
		timings:   make(map[string]float64, 6),
		metrics:   p.metrics,
	}

	log := logging.FromContext(ctx).With(slog.String("request_id", run.requestID))
	ctx = logging.WithLogger(ctx, log)
	log.Info("pipeline: solve started",
		slog.Int("document_bytes", len(req.Document)),
		slog.Int("user_images", len(req.UserImages)),
	)

	// Fork: indexing is the slow independent prefix, so it runs in the
	// background while the serving endpoints are resolved. The channel is
	// buffered so an early resolve failure never leaks the goroutine.
	indexCh := make(chan indexOutcome, 1)
	go func() {
		indexStart := time.Now()
		idx, err := p.retriever.Index(ctx, req.Document)
		indexCh <- indexOutcome{idx: idx, err: err, elapsed: time.Since(indexStart)}
	}()

	if p.resolve != nil {
		err := run.span(ctx, stageResolve, func() error { return p.resolve(ctx) })
		if err != nil {
			return p.fail(ctx, req, run, start, fmt.Errorf("resolve endpoints: %w", err))
		}
	}

	// Join: everything downstream needs the index.
	outcome := <-indexCh
	run.record(ctx, stageIndex, outcome.elapsed, outcome.err)
	if outcome.err != nil {
		return p.fail(ctx, req, run, start, fmt.Errorf("index document: %w", outcome.err))
	}

	var pages [][]byte
	err := run.span(ctx, stageRetrieve, func() error {
		var err error
		pages, err = p.retriever.TopK(ctx, req.Question, outcome.idx, req.TopK)
		return err
	})
	if err != nil {
		return p.fail(ctx, req, run, start, fmt.Errorf("retrieve pages: %w", err))
	}
	run.numPages = len(pages)

	var solution string
	err = run.span(ctx, stageReason, func() error {
		var err error
		solution, err = p.reasoner.Analyze(ctx, req.Question, req.UserImages, pages)
		return err
	})
	if err != nil {
		return p.fail(ctx, req, run, start, fmt.Errorf("analyze question: %w", err))
	}

	var program string
	err = run.span(ctx, stageCodegen, func() error {
		var err error
		program, err = p.generator.Generate(ctx, req.Question, solution)
		return err
	})
	if err != nil {
		return p.fail(ctx, req, run, start, fmt.Errorf("generate diagram code: %w", err))
	}

	// The compiler reports failure as data, so this span never errors;
	// a broken diagram must not discard the solution already produced.
	var result *diagram.Result
	_ = run.span(ctx, stageCompile, func() error {
		result = p.compiler.Compile(ctx, program)
		return nil
	})

	total := time.Since(start)
	outcomeLabel := outcomeSuccess
	if !result.Success {
		outcomeLabel = outcomeDiagramFailed
		log.Warn("pipeline: diagram compile failed", slog.String("error", result.Error))
	}
	p.count(outcomeLabel)
	log.Info("pipeline: solve finished",
		slog.String("outcome", outcomeLabel),
		slog.Duration("total", total),
		slog.Int("relevant_pages", run.numPages),
	)

	return &Envelope{
		Success:        true,
		Question:       req.Question,
		Solution:       solution,
		CircuitDiagram: result,
		Metadata:       run.metadata(req, program, total),
	}
}

// fail converts a stage failure into the terminal envelope. Solution and
// diagram fields stay absent — only the message and run metadata survive.
func (p *Pipeline) fail(ctx context.Context, req *SolveRequest, run *solveRun, start time.Time, err error) *Envelope {
	total := time.Since(start)
	p.count(outcomeFailure)
	logging.FromContext(ctx).Error("pipeline: solve failed",
		slog.Any("error", err),
		slog.Duration("total", total),
	)
	return &Envelope{
		Success:  false,
		Question: req.Question,
		Error:    err.Error(),
		Metadata: run.metadata(req, "", total),
	}
}

// count increments the solve counter if metrics are wired.
func (p *Pipeline) count(outcome string) {
	if p.metrics != nil {
		p.metrics.Solves.WithLabelValues(outcome).Inc()
	}
}
