package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// DefaultInterval is the pause between cycles.
const DefaultInterval = 60 * time.Second

// SummaryLatch is a capture.Observer that keeps the most recent cycle
// summary for the runner to collect once iteration ends.
type SummaryLatch struct {
	mu      sync.Mutex
	summary capture.Summary
	ok      bool
}

// ObserveVisit implements capture.Observer.
func (l *SummaryLatch) ObserveVisit(capture.Snapshot) {}

// ObserveCycle implements capture.Observer.
func (l *SummaryLatch) ObserveCycle(summary capture.Summary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = summary
	l.ok = true
}

// Take returns and clears the latched summary.
func (l *SummaryLatch) Take() (capture.Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	summary, ok := l.summary, l.ok
	l.summary, l.ok = capture.Summary{}, false
	return summary, ok
}

// CycleReport describes one completed cycle.
type CycleReport struct {
	ID       string
	Summary  capture.Summary
	Archived int
	Failed   int
	Floods   int
}

// Runner repeats capture cycles and feeds every frame to the pipeline.
type Runner struct {
	cycler   Cycler
	pipeline *Pipeline
	ids      IDGenerator
	latch    *SummaryLatch
	cycles   CycleStore
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner wires a runner. latch must be registered as an observer on the
// cycler; cycles may be nil.
func NewRunner(
	cycler Cycler,
	pipeline *Pipeline,
	ids IDGenerator,
	latch *SummaryLatch,
	cycles CycleStore,
	interval time.Duration,
	logger *zap.Logger,
) (*Runner, error) {
	switch {
	case cycler == nil:
		return nil, errors.New("runner: cycler is required")
	case pipeline == nil:
		return nil, errors.New("runner: pipeline is required")
	case ids == nil:
		return nil, errors.New("runner: id generator is required")
	}
	if latch == nil {
		latch = &SummaryLatch{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cycler:   cycler,
		pipeline: pipeline,
		ids:      ids,
		latch:    latch,
		cycles:   cycles,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run executes cycles until ctx is cancelled, waiting the configured
// interval between them. A failed cycle never stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("cycle failed", zap.Error(err))
		}
		r.logger.Info("waiting for next cycle", zap.Duration("interval", r.interval))

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("runner stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle.
func (r *Runner) RunOnce(ctx context.Context) (CycleReport, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return CycleReport{}, err
	}
	report := CycleReport{ID: id}
	logger := r.logger.With(zap.String("cycle_id", id))
	logger.Info("cycle started")

	for snap := range r.cycler.Cycle(ctx) {
		res, err := r.pipeline.Process(ctx, id, snap)
		if err != nil {
			report.Failed++
			continue
		}
		report.Archived++
		if res.Verdict.Flood {
			report.Floods++
		}
	}

	if summary, ok := r.latch.Take(); ok {
		report.Summary = summary
		r.recordCycle(ctx, id, summary, logger)
	}
	logger.Info("cycle finished",
		zap.Int("archived", report.Archived),
		zap.Int("archive_failures", report.Failed),
		zap.Int("floods", report.Floods),
		zap.Bool("aborted", report.Summary.Aborted),
	)
	return report, nil
}

func (r *Runner) recordCycle(ctx context.Context, id string, summary capture.Summary, logger *zap.Logger) {
	if r.cycles == nil {
		return
	}
	// Record even when the run was cancelled so the aborted cycle is kept.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.cycles.RecordCycle(recordCtx, id, summary); err != nil {
		logger.Error("record cycle failed", zap.Error(err))
	}
}
