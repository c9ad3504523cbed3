package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/voltlab/eetutor-go/internal/logging"
)

// solveRun accumulates per-request state: the request id, stage timings, and
// counters needed for the final metadata block. One solveRun per Solve call,
// touched only by the calling goroutine.
type solveRun struct {
	requestID string
	timings   map[string]float64
	numPages  int
	metrics   *Metrics
}

// span runs one stage, timing it and recording the outcome.
func (r *solveRun) span(ctx context.Context, stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.record(ctx, stage, time.Since(start), err)
	return err
}

// record stores a stage's elapsed time and emits the log line and metric
// observation. Used directly for the background indexing task, which times
// itself off the orchestrator goroutine.
func (r *solveRun) record(ctx context.Context, stage string, elapsed time.Duration, err error) {
	r.timings[stage] = elapsed.Seconds()
	if r.metrics != nil {
		r.metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}

	log := logging.FromContext(ctx)
	if err != nil {
		log.Error("pipeline: stage failed",
			slog.String("stage", stage),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return
	}
	log.Debug("pipeline: stage complete",
		slog.String("stage", stage),
		slog.Duration("elapsed", elapsed),
	)
}

// metadata assembles the envelope metadata block.
func (r *solveRun) metadata(req *SolveRequest, program string, total time.Duration) *Metadata {
	return &Metadata{
		RequestID:           r.requestID,
		NumRelevantPages:    r.numPages,
		HasUserImages:       len(req.UserImages) > 0,
		GeneratedCode:       program,
		TotalProcessingTime: total.Seconds(),
		StageSeconds:        r.timings,
	}
}
