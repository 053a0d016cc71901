package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// dialogQueue buffers native dialog messages delivered by the browser event
// loop until the controller probes for them.
type dialogQueue struct {
	ch chan string
}

func newDialogQueue() *dialogQueue {
	return &dialogQueue{ch: make(chan string, 4)}
}

// offer never blocks the event loop; extra dialogs beyond the buffer are
// dropped because the page can only show one at a time.
func (q *dialogQueue) offer(message string) {
	select {
	case q.ch <- message:
	default:
	}
}

// wait returns the next dialog message seen within window.
func (q *dialogQueue) wait(ctx context.Context, window time.Duration) (string, bool, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return msg, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// drain empties the queue without waiting.
func (q *dialogQueue) drain() []string {
	var out []string
	for {
		select {
		case msg := <-q.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// dismissAll drains the queue and accepts one open dialog per message.
func (q *dialogQueue) dismissAll(accept func() error) ([]string, error) {
	pending := q.drain()
	var errs []error
	for range pending {
		if err := accept(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pending, fmt.Errorf("accept dialog: %w", errors.Join(errs...))
	}
	return pending, nil
}

// clearStale dismisses dialogs left over from earlier interactions so a
// reload starts from an unblocked page.
func clearStale(ctx context.Context, dismiss func(context.Context) ([]string, error), logger *zap.Logger) {
	messages, err := dismiss(ctx)
	for _, msg := range messages {
		logger.Warn("stale javascript dialog dismissed", zap.String("message", msg))
	}
	if err != nil {
		logger.Debug("dismiss stale dialogs failed", zap.Error(err))
	}
}

// bind derives a context from base that also ends when ctx ends, carrying
// ctx's deadline. Browser libraries require their own context for commands.
func bind(base, ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		out    context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		out, cancel = context.WithDeadline(base, deadline)
	} else {
		out, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(ctx, cancel)
	return out, func() {
		stop()
		cancel()
	}
}
