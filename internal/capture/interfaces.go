package capture

import (
	"context"
	"time"
)

// Browser opens a fresh page for one capture cycle.
type Browser interface {
	Open(ctx context.Context) (Page, error)
}

// Page drives a single rendered document. Every method that waits on page
// state must honour the deadline of ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitPresent blocks until at least one node matches selector.
	WaitPresent(ctx context.Context, selector string) error
	// QueryAll waits for at least one match and returns every node currently
	// matching selector, in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Query returns the first match without waiting; ok is false when nothing
	// matches.
	Query(ctx context.Context, selector string) (el Element, ok bool, err error)
	// WaitVisible blocks until the first match of selector is visible.
	WaitVisible(ctx context.Context, selector string) (Element, error)
	// ProbeDialog waits up to window for a native dialog. When one appears it
	// is accepted and its message returned with ok set.
	ProbeDialog(ctx context.Context, window time.Duration) (message string, ok bool, err error)
	// DismissDialogs accepts every dialog raised since the last probe without
	// waiting and returns their messages.
	DismissDialogs(ctx context.Context) ([]string, error)
	// Close releases the page and the browser process behind it.
	Close() error
}

// Element is a handle to a rendered node. It becomes invalid as soon as the
// page reloads and must not be kept across visits.
type Element interface {
	// Click dispatches a click without waiting for handlers that may open a
	// blocking dialog.
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	// Screenshot writes a PNG of the element to path.
	Screenshot(ctx context.Context, path string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Observer receives every visit and the summary of every cycle.
type Observer interface {
	ObserveVisit(snap Snapshot)
	ObserveCycle(summary Summary)
}

// Observers fans notifications out to several observers.
type Observers []Observer

// ObserveVisit implements Observer.
func (o Observers) ObserveVisit(snap Snapshot) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveVisit(snap)
		}
	}
}

// ObserveCycle implements Observer.
func (o Observers) ObserveCycle(summary Summary) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveCycle(summary)
		}
	}
}
