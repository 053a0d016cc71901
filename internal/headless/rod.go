package headless

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/capture"
)

const rodAsyncClick = `function() { const el = this; setTimeout(() => el.click(), 0); }`

// Rod implements capture.Browser with go-rod, optionally with stealth
// evasions applied to every page.
type Rod struct {
	cfg    Config
	logger *zap.Logger
}

// NewRod builds a rod-backed browser.
func NewRod(cfg Config, logger *zap.Logger) *Rod {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rod{cfg: cfg.WithDefaults(), logger: logger}
}

func (b *Rod) launcher() *launcher.Launcher {
	l := launcher.New().
		Headless(b.cfg.Headless).
		NoSandbox(b.cfg.NoSandbox).
		Set("window-size", fmt.Sprintf("%d,%d", b.cfg.WindowWidth, b.cfg.WindowHeight)).
		Set("disable-gpu").
		Set("hide-scrollbars").
		Set("disable-blink-features", "AutomationControlled")
	if b.cfg.ExecPath != "" {
		l = l.Bin(b.cfg.ExecPath)
	}
	return l
}

// Open launches a browser process and returns a page attached to it.
func (b *Rod) Open(ctx context.Context) (capture.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := b.launcher()
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Timeout(b.cfg.StartTimeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	browser = browser.CancelTimeout()

	var pg *rod.Page
	if b.cfg.Stealth {
		pg, err = stealth.Page(browser)
	} else {
		pg, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := pg.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.WindowWidth,
		Height:            b.cfg.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		b.logger.Warn("set viewport failed", zap.Error(err))
	}
	if b.cfg.UserAgent != "" {
		if err := pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			b.logger.Warn("set user agent failed", zap.Error(err))
		}
	}

	listenCtx, stopListening := context.WithCancel(context.Background())
	p := &rodPage{
		browser:  browser,
		page:     pg,
		launcher: l,
		dialogs:  newDialogQueue(),
		stop:     stopListening,
		logger:   b.logger,
	}
	go pg.Context(listenCtx).EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		p.logger.Debug("javascript dialog opened",
			zap.String("type", string(e.Type)),
			zap.String("message", e.Message),
		)
		p.dialogs.offer(e.Message)
	})()

	return p, nil
}

type rodPage struct {
	browser   *rod.Browser
	page      *rod.Page
	launcher  *launcher.Launcher
	dialogs   *dialogQueue
	stop      context.CancelFunc
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	clearStale(ctx, p.DismissDialogs, p.logger)
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (p *rodPage) Reload(ctx context.Context) error {
	clearStale(ctx, p.DismissDialogs, p.logger)
	pg := p.page.Context(ctx)
	if err := pg.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (p *rodPage) WaitPresent(ctx context.Context, selector string) error {
	_, err := p.page.Context(ctx).Element(selector)
	return err
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]capture.Element, error) {
	pg := p.page.Context(ctx)
	if _, err := pg.Element(selector); err != nil {
		return nil, err
	}
	els, err := pg.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]capture.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) Query(ctx context.Context, selector string) (capture.Element, bool, error) {
	ok, el, err := p.page.Context(ctx).Has(selector)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) (capture.Element, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) ProbeDialog(ctx context.Context, window time.Duration) (string, bool, error) {
	msg, ok, err := p.dialogs.wait(ctx, window)
	if err != nil || !ok {
		return "", false, err
	}
	if err := (proto.PageHandleJavaScriptDialog{Accept: true}).Call(p.page.Context(ctx)); err != nil {
		return msg, true, fmt.Errorf("accept dialog: %w", err)
	}
	return msg, true, nil
}

func (p *rodPage) DismissDialogs(ctx context.Context) ([]string, error) {
	return p.dialogs.dismissAll(func() error {
		return proto.PageHandleJavaScriptDialog{Accept: true}.Call(p.page.Context(ctx))
	})
}

func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		p.stop()
		p.closeErr = p.browser.Close()
		p.launcher.Kill()
		p.launcher.Cleanup()
	})
	return p.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(rodAsyncClick); err != nil {
		return fmt.Errorf("dispatch click: %w", err)
	}
	return nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Screenshot(ctx context.Context, path string) error {
	buf, err := e.el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("capture element: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
