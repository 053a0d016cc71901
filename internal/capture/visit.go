package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// phase names the step of a visit, used to categorise failures.
type phase int

const (
	phaseResolving phase = iota
	phaseInteracting
	phaseExtracting
	phaseCapturing
)

func (p phase) String() string {
	switch p {
	case phaseResolving:
		return "resolving"
	case phaseInteracting:
		return "interacting"
	case phaseExtracting:
		return "extracting"
	case phaseCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// Controller visits one marker at a time and classifies the outcome.
type Controller struct {
	page    Page
	catalog *Catalog
	cfg     Config
	clock   Clock
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewController returns a controller bound to page and catalog.
func NewController(page Page, catalog *Catalog, cfg Config, clock Clock, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		page:    page,
		catalog: catalog,
		cfg:     cfg.WithDefaults(),
		clock:   clock,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Visit resolves the marker at ordinal, clicks it and either captures the
// camera content or records why it could not. It never returns an error;
// every failure is folded into the snapshot.
func (c *Controller) Visit(ctx context.Context, ordinal int) (snap Snapshot) {
	snap = Snapshot{Ordinal: ordinal}
	current := phaseResolving

	defer c.dismissLateDialogs(ctx, ordinal)
	defer func() {
		if r := recover(); r != nil {
			snap = c.skip(ctx, snap, current, ReasonUnexpected, fmt.Errorf("panic: %v", r))
		}
	}()

	marker, err := c.catalog.Resolve(ctx, ordinal)
	if err != nil {
		return c.skip(ctx, snap, current, ReasonResolution, err)
	}

	current = phaseInteracting
	if err := c.click(ctx, marker); err != nil {
		return c.skip(ctx, snap, current, ReasonInteraction, err)
	}
	message, open, err := c.probeDialog(ctx)
	if err != nil {
		return c.skip(ctx, snap, current, ReasonInteraction, err)
	}
	if open {
		snap.Outcome = OutcomeUnavailable
		snap.Reason = ReasonUnavailable
		snap.Detail = message
		c.logger.Info("camera unavailable",
			zap.Int("ordinal", ordinal),
			zap.String("message", message),
		)
		return snap
	}

	current = phaseExtracting
	content, err := c.waitContent(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.skip(ctx, snap, current, ReasonContentTimeout, err)
		}
		return c.skip(ctx, snap, current, ReasonInteraction, err)
	}
	if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
		return c.skip(ctx, snap, current, ReasonCancelled, err)
	}
	snap.Name = c.describe(ctx)

	current = phaseCapturing
	at := c.clock.Now()
	label := Sanitize(snap.Name)
	if label == "" {
		label = c.cfg.FallbackName
	}
	path := filepath.Join(c.cfg.OutputDir, Filename(label, at, ordinal))
	if err := c.screenshot(ctx, content, path); err != nil {
		return c.skip(ctx, snap, current, ReasonScreenshot, err)
	}

	snap.Outcome = OutcomeCaptured
	snap.Path = path
	snap.CapturedAt = at
	c.logger.Info("camera captured",
		zap.Int("ordinal", ordinal),
		zap.String("camera", snap.Name),
		zap.String("path", path),
	)
	return snap
}

func (c *Controller) click(ctx context.Context, marker Element) error {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	return marker.Click(stepCtx)
}

// probeDialog bounds the dialog accept as well as the probe window.
func (c *Controller) probeDialog(ctx context.Context) (string, bool, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.DialogWindow+c.cfg.WaitTimeout)
	defer cancel()
	return c.page.ProbeDialog(stepCtx, c.cfg.DialogWindow)
}

func (c *Controller) waitContent(ctx context.Context) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	return c.page.WaitVisible(waitCtx, c.cfg.ContentSelector)
}

func (c *Controller) screenshot(ctx context.Context, content Element, path string) error {
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	return content.Screenshot(stepCtx, path)
}

// dismissLateDialogs accepts dialogs that opened after the probe window so
// they are attributed to this visit instead of the next one.
func (c *Controller) dismissLateDialogs(ctx context.Context, ordinal int) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WaitTimeout)
	defer cancel()
	messages, err := c.page.DismissDialogs(stepCtx)
	for _, msg := range messages {
		c.logger.Warn("late dialog dismissed",
			zap.Int("ordinal", ordinal),
			zap.String("message", msg),
		)
	}
	if err != nil {
		c.logger.Debug("dismiss late dialogs failed", zap.Int("ordinal", ordinal), zap.Error(err))
	}
}

// describe reads the camera label next to the content, falling back to the
// placeholder when it is missing or blank.
func (c *Controller) describe(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	el, ok, err := c.page.Query(ctx, c.cfg.DescriptionSelector)
	if err != nil || !ok {
		if err != nil {
			c.logger.Debug("description lookup failed", zap.Error(err))
		}
		return c.cfg.FallbackName
	}
	text, err := el.Text(ctx)
	if err != nil {
		c.logger.Debug("description text unreadable", zap.Error(err))
		return c.cfg.FallbackName
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return c.cfg.FallbackName
	}
	return text
}

// skip records a failed visit. A step that failed because the cycle itself
// was cancelled is filed as cancelled whatever phase it was in.
func (c *Controller) skip(ctx context.Context, snap Snapshot, p phase, reason Reason, err error) Snapshot {
	if ctx.Err() != nil {
		reason = ReasonCancelled
	}
	snap.Outcome = OutcomeSkipped
	snap.Reason = reason
	snap.Path = ""
	if err != nil {
		snap.Detail = err.Error()
	}
	c.logger.Warn("marker skipped",
		zap.Int("ordinal", snap.Ordinal),
		zap.String("phase", p.String()),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	return snap
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
