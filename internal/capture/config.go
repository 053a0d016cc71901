package capture

import (
	"errors"
	"time"
)

// Default page contract and timing values.
const (
	DefaultMarkerSelector      = "img.leaflet-marker-icon"
	DefaultContentSelector     = "div.slideshowLightbox img"
	DefaultDescriptionSelector = ".descLightbox"
	DefaultFallbackName        = "camera_desconhecida"
	DefaultWaitTimeout         = 20 * time.Second
	DefaultDialogWindow        = 3 * time.Second
	DefaultSettleDelay         = 2 * time.Second
)

// Config controls where the orchestrator navigates, which nodes it treats as
// markers and how long each bounded wait may take.
type Config struct {
	MapURL    string
	OutputDir string

	MarkerSelector      string
	ContentSelector     string
	DescriptionSelector string
	FallbackName        string

	// WaitTimeout bounds page loads, catalog waits and content visibility.
	WaitTimeout time.Duration
	// DialogWindow bounds the probe for the "camera unavailable" alert.
	DialogWindow time.Duration
	// SettleDelay lets the lightbox paint live content before capture.
	SettleDelay time.Duration
}

// WithDefaults fills zero values with the defaults for the public map.
func (c Config) WithDefaults() Config {
	if c.MarkerSelector == "" {
		c.MarkerSelector = DefaultMarkerSelector
	}
	if c.ContentSelector == "" {
		c.ContentSelector = DefaultContentSelector
	}
	if c.DescriptionSelector == "" {
		c.DescriptionSelector = DefaultDescriptionSelector
	}
	if c.FallbackName == "" {
		c.FallbackName = DefaultFallbackName
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.DialogWindow <= 0 {
		c.DialogWindow = DefaultDialogWindow
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Validate checks the fields that have no sensible default.
func (c Config) Validate() error {
	if c.MapURL == "" {
		return errors.New("capture map url is required")
	}
	if c.OutputDir == "" {
		return errors.New("capture output dir is required")
	}
	return nil
}
