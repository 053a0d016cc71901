package capture

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"go.uber.org/zap"
)

// Orchestrator runs full capture cycles over the map.
type Orchestrator struct {
	browser  Browser
	cfg      Config
	clock    Clock
	observer Observer
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the orchestrator dependencies.
func NewOrchestrator(browser Browser, cfg Config, clock Clock, observer Observer, logger *zap.Logger) (*Orchestrator, error) {
	if browser == nil {
		return nil, errors.New("capture: browser is required")
	}
	if clock == nil {
		return nil, errors.New("capture: clock is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = Observers(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:  browser,
		cfg:      cfg,
		clock:    clock,
		observer: observer,
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

// Cycle returns a sequence that performs one pass over every marker on the
// map and yields each captured snapshot as soon as it is written. Markers
// that are unavailable or skipped reach the observer but are not yielded.
//
// The page is opened when iteration starts and released exactly once when
// it ends, whether the pass completes, aborts or the consumer stops early.
// Fatal conditions end the sequence; they are reported through the
// observer summary rather than returned.
func (o *Orchestrator) Cycle(ctx context.Context) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		summary := Summary{Started: o.clock.Now()}
		defer func() {
			summary.Finished = o.clock.Now()
			o.logCycle(summary)
			o.observer.ObserveCycle(summary)
		}()

		abort := func(reason string, err error) {
			summary.Aborted = true
			summary.AbortReason = reason
			if err != nil {
				summary.AbortReason = fmt.Sprintf("%s: %v", reason, err)
			}
		}

		if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
			abort("prepare output dir", err)
			return
		}

		page, err := o.browser.Open(ctx)
		if err != nil {
			abort("open browser", err)
			return
		}
		defer o.release(page)

		if err := o.load(ctx, page); err != nil {
			abort("load map", err)
			return
		}

		catalog := NewCatalog(page, o.cfg.MarkerSelector, o.cfg.WaitTimeout)
		total, err := catalog.Discover(ctx)
		if err != nil {
			abort("discover markers", err)
			return
		}
		summary.Discovered = total
		o.logger.Info("markers discovered", zap.Int("count", total))

		controller := NewController(page, catalog, o.cfg, o.clock, o.logger)
		controller.sleep = o.sleep

		state := cycleState{total: total}
		for ; state.index < state.total; state.index++ {
			if err := ctx.Err(); err != nil {
				state.aborted = true
				abort("cancelled", err)
				return
			}

			snap := controller.Visit(ctx, state.index)
			summary.record(snap)
			o.observer.ObserveVisit(snap)

			if snap.Captured() && !yield(snap) {
				state.aborted = true
				abort("consumer stopped", nil)
				return
			}
			if state.last() {
				break
			}
			if err := o.refresh(ctx, page, catalog); err != nil {
				state.aborted = true
				abort("refresh map", err)
				return
			}
		}
	}
}

func (o *Orchestrator) load(ctx context.Context, page Page) error {
	loadCtx, cancel := context.WithTimeout(ctx, o.cfg.WaitTimeout)
	defer cancel()
	return page.Navigate(loadCtx, o.cfg.MapURL)
}

// refresh reloads the map and waits for the catalog to render again.
func (o *Orchestrator) refresh(ctx context.Context, page Page, catalog *Catalog) error {
	reloadCtx, cancel := context.WithTimeout(ctx, o.cfg.WaitTimeout)
	defer cancel()
	if err := page.Reload(reloadCtx); err != nil {
		return err
	}
	return catalog.Await(ctx)
}

func (o *Orchestrator) release(page Page) {
	if err := page.Close(); err != nil {
		o.logger.Warn("failed to release page", zap.Error(err))
	}
}

func (o *Orchestrator) logCycle(summary Summary) {
	fields := []zap.Field{
		zap.Int("discovered", summary.Discovered),
		zap.Int("visited", summary.Visited),
		zap.Int("captured", summary.Captured),
		zap.Int("unavailable", summary.Unavailable),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration()),
	}
	if summary.Aborted {
		o.logger.Warn("capture cycle aborted", append(fields, zap.String("reason", summary.AbortReason))...)
		return
	}
	o.logger.Info("capture cycle complete", fields...)
}
