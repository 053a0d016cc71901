package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

type markerKind int

const (
	markerLive markerKind = iota
	markerOffline
	markerHangs
	markerBrokenShot
	markerStale
	markerPanics
	markerClickHangs
	markerShotHangs
)

type fakeMarker struct {
	kind  markerKind
	label string
	// noLabel hides the description element.
	noLabel bool
	dialog  string
	// lateDialog opens only after the probe window has closed.
	lateDialog string
}

type fakePage struct {
	mu sync.Mutex

	markers []fakeMarker
	// shrinkTo, when positive, limits the rendered markers after the first reload.
	shrinkTo int

	navigateErr error
	// failReloadAt fails the nth reload (one-based).
	failReloadAt int
	emptyCatalog bool

	// pending holds dialogs raised but not yet accepted, in arrival order.
	pending   []string
	dismissed []string

	open     int
	reloads  int
	closes   int
	clicks   []int
	shots    []string
	navigURL string
}

func newFakePage(markers ...fakeMarker) *fakePage {
	return &fakePage{markers: markers, open: -1}
}

func (p *fakePage) rendered() []fakeMarker {
	if p.emptyCatalog {
		return nil
	}
	if p.shrinkTo > 0 && p.reloads > 0 && p.shrinkTo < len(p.markers) {
		return p.markers[:p.shrinkTo]
	}
	return p.markers
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigURL = url
	return p.navigateErr
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	p.open = -1
	if p.failReloadAt > 0 && p.reloads == p.failReloadAt {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *fakePage) WaitPresent(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rendered()) == 0 {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *fakePage) QueryAll(context.Context, string) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rendered := p.rendered()
	if len(rendered) == 0 {
		return nil, context.DeadlineExceeded
	}
	out := make([]Element, 0, len(rendered))
	for i := range rendered {
		out = append(out, &fakeMarkerElement{page: p, ordinal: i})
	}
	return out, nil
}

func (p *fakePage) Query(context.Context, string) (Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open < 0 {
		return nil, false, nil
	}
	m := p.markers[p.open]
	if m.noLabel {
		return nil, false, nil
	}
	return &fakeTextElement{text: m.label}, true, nil
}

func (p *fakePage) WaitVisible(context.Context, string) (Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open < 0 {
		return nil, context.DeadlineExceeded
	}
	switch p.markers[p.open].kind {
	case markerHangs:
		return nil, context.DeadlineExceeded
	case markerPanics:
		panic("node detached")
	}
	return &fakeContentElement{page: p, ordinal: p.open}, nil
}

func (p *fakePage) ProbeDialog(context.Context, time.Duration) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) > 0 {
		msg := p.pending[0]
		p.pending = p.pending[1:]
		return msg, true, nil
	}
	if p.open < 0 {
		return "", false, nil
	}
	m := p.markers[p.open]
	if m.kind == markerOffline {
		return m.dialog, true, nil
	}
	if m.lateDialog != "" {
		p.pending = append(p.pending, m.lateDialog)
	}
	return "", false, nil
}

func (p *fakePage) DismissDialogs(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	p.dismissed = append(p.dismissed, out...)
	return out, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeMarkerElement struct {
	page    *fakePage
	ordinal int
}

func (e *fakeMarkerElement) Click(ctx context.Context) error {
	e.page.mu.Lock()
	if e.page.markers[e.ordinal].kind == markerClickHangs {
		e.page.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer e.page.mu.Unlock()
	if e.page.markers[e.ordinal].kind == markerStale {
		return errors.New("node is detached from document")
	}
	e.page.open = e.ordinal
	e.page.clicks = append(e.page.clicks, e.ordinal)
	return nil
}

func (e *fakeMarkerElement) Text(context.Context) (string, error) { return "", nil }

func (e *fakeMarkerElement) Screenshot(context.Context, string) error {
	return errors.New("markers are not captured")
}

type fakeContentElement struct {
	page    *fakePage
	ordinal int
}

func (e *fakeContentElement) Click(context.Context) error { return nil }
func (e *fakeContentElement) Text(context.Context) (string, error) { return "", nil }

func (e *fakeContentElement) Screenshot(ctx context.Context, path string) error {
	e.page.mu.Lock()
	if e.page.markers[e.ordinal].kind == markerShotHangs {
		e.page.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer e.page.mu.Unlock()
	if e.page.markers[e.ordinal].kind == markerBrokenShot {
		return errors.New("capture screenshot: node has zero size")
	}
	if err := os.WriteFile(path, []byte("\x89PNG"), 0o600); err != nil {
		return err
	}
	e.page.shots = append(e.page.shots, path)
	return nil
}

type fakeTextElement struct {
	text string
}

func (e *fakeTextElement) Click(context.Context) error { return nil }
func (e *fakeTextElement) Text(context.Context) (string, error) { return e.text, nil }
func (e *fakeTextElement) Screenshot(context.Context, string) error { return nil }

type fakeBrowser struct {
	page    *fakePage
	openErr error
	opens   int
}

func (b *fakeBrowser) Open(context.Context) (Page, error) {
	b.opens++
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.page.open = -1
	return b.page, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingObserver struct {
	mu        sync.Mutex
	visits    []Snapshot
	summaries []Summary
}

func (o *recordingObserver) ObserveVisit(snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visits = append(o.visits, snap)
}

func (o *recordingObserver) ObserveCycle(summary Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

func noSleep(context.Context, time.Duration) error { return nil }
