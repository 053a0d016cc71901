package headless

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// asyncClick schedules the click on the next tick so a synchronous alert()
// raised by the marker handler cannot block the CDP call.
const asyncClick = `function() { const el = this; setTimeout(function() { el.click(); }, 0); }`

// Chromedp implements capture.Browser with a fresh headless Chrome per cycle.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp builds a chromedp-backed browser.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg.WithDefaults(), logger: logger}
}

func (b *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if b.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

// Open launches Chrome and returns its first tab.
func (b *Chromedp) Open(ctx context.Context) (capture.Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	p := &chromedpPage{
		ctx:         taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		dialogs:     newDialogQueue(),
		logger:      b.logger,
	}
	chromedp.ListenTarget(taskCtx, p.onEvent)

	// The first Run allocates the browser and ties its lifetime to the
	// context it receives, so it runs on taskCtx and is bounded here instead.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(taskCtx)
	}()
	timer := time.NewTimer(b.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-timer.C:
		_ = p.Close()
		return nil, fmt.Errorf("start chrome: timed out after %s", b.cfg.StartTimeout)
	case <-ctx.Done():
		_ = p.Close()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}

	if err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(b.cfg.WindowWidth), int64(b.cfg.WindowHeight), 1, false).Do(ctx)
	})); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	return p, nil
}

type chromedpPage struct {
	ctx         context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	dialogs     *dialogQueue
	logger      *zap.Logger
	closeOnce   sync.Once
	closeErr    error
}

func (p *chromedpPage) onEvent(ev any) {
	if opening, ok := ev.(*page.EventJavascriptDialogOpening); ok {
		p.logger.Debug("javascript dialog opened",
			zap.String("type", string(opening.Type)),
			zap.String("message", opening.Message),
		)
		p.dialogs.offer(opening.Message)
	}
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := bind(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	clearStale(ctx, p.DismissDialogs, p.logger)
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromedpPage) Reload(ctx context.Context) error {
	clearStale(ctx, p.DismissDialogs, p.logger)
	if err := p.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *chromedpPage) WaitPresent(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromedpPage) QueryAll(ctx context.Context, selector string) ([]capture.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll)); err != nil {
		return nil, err
	}
	return p.elements(nodes), nil
}

func (p *chromedpPage) Query(ctx context.Context, selector string) (capture.Element, bool, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &chromedpElement{page: p, id: nodes[0].NodeID}, true, nil
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) (capture.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node matches %q", selector)
	}
	return &chromedpElement{page: p, id: nodes[0].NodeID}, nil
}

func (p *chromedpPage) ProbeDialog(ctx context.Context, window time.Duration) (string, bool, error) {
	msg, ok, err := p.dialogs.wait(ctx, window)
	if err != nil || !ok {
		return "", false, err
	}
	if err := p.run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
		return msg, true, fmt.Errorf("accept dialog: %w", err)
	}
	return msg, true, nil
}

func (p *chromedpPage) DismissDialogs(ctx context.Context) ([]string, error) {
	return p.dialogs.dismissAll(func() error {
		return p.run(ctx, page.HandleJavaScriptDialog(true))
	})
}

func (p *chromedpPage) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = chromedp.Cancel(p.ctx)
		p.taskCancel()
		p.allocCancel()
	})
	return p.closeErr
}

func (p *chromedpPage) elements(nodes []*cdp.Node) []capture.Element {
	out := make([]capture.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{page: p, id: n.NodeID})
	}
	return out
}

type chromedpElement struct {
	page *chromedpPage
	id   cdp.NodeID
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.id).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		_, exc, err := runtime.CallFunctionOn(asyncClick).WithObjectID(obj.ObjectID).Do(ctx)
		if err != nil {
			return fmt.Errorf("dispatch click: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("dispatch click: %s", exc.Text)
		}
		return nil
	}))
}

func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.page.run(ctx, chromedp.Text([]cdp.NodeID{e.id}, &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (e *chromedpElement) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := e.page.run(ctx, chromedp.Screenshot([]cdp.NodeID{e.id}, &buf, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("capture element: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
