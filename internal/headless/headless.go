// Package headless drives a real browser for the capture state machine. Two
// engines are available: chromedp (default) and go-rod.
package headless

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// Supported engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Config controls how browsers are launched.
type Config struct {
	Engine       string
	Headless     bool
	ExecPath     string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	NoSandbox    bool
	// Stealth applies go-rod/stealth evasions. Only the rod engine honours it.
	Stealth bool
	// StartTimeout bounds browser start-up.
	StartTimeout time.Duration
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if c.Engine == "" {
		c.Engine = EngineChromedp
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	return c
}

// New returns the browser for cfg.Engine.
func New(cfg Config, logger *zap.Logger) (capture.Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()
	switch cfg.Engine {
	case EngineChromedp:
		return NewChromedp(cfg, logger.Named("chromedp")), nil
	case EngineRod:
		return NewRod(cfg, logger.Named("rod")), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", cfg.Engine)
	}
}
