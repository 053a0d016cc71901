// Package config loads and validates floodcam configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zones must resolve in minimal containers

	"github.com/spf13/viper"
)

// Archive backends.
const (
	BackendDrive  = "drive"
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Capture    CaptureConfig    `mapstructure:"capture"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Cycle      CycleConfig      `mapstructure:"cycle"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	DB         DBConfig         `mapstructure:"db"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// CaptureConfig describes the camera map and the per-marker waits.
type CaptureConfig struct {
	MapURL              string        `mapstructure:"map_url"`
	OutputDir           string        `mapstructure:"output_dir"`
	MarkerSelector      string        `mapstructure:"marker_selector"`
	ContentSelector     string        `mapstructure:"content_selector"`
	DescriptionSelector string        `mapstructure:"description_selector"`
	FallbackName        string        `mapstructure:"fallback_name"`
	WaitTimeout         time.Duration `mapstructure:"wait_timeout"`
	DialogWindow        time.Duration `mapstructure:"dialog_window"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	// Timezone is the IANA zone used for filename timestamps.
	Timezone string `mapstructure:"timezone"`
}

// BrowserConfig selects and tunes the browser engine.
type BrowserConfig struct {
	Engine       string        `mapstructure:"engine"`
	Headless     bool          `mapstructure:"headless"`
	ExecPath     string        `mapstructure:"exec_path"`
	UserAgent    string        `mapstructure:"user_agent"`
	WindowWidth  int           `mapstructure:"window_width"`
	WindowHeight int           `mapstructure:"window_height"`
	NoSandbox    bool          `mapstructure:"no_sandbox"`
	Stealth      bool          `mapstructure:"stealth"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
}

// CycleConfig controls the run loop.
type CycleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ArchiveConfig picks where frames are uploaded.
type ArchiveConfig struct {
	Backend     string      `mapstructure:"backend"`
	Prefix      string      `mapstructure:"prefix"`
	ContentType string      `mapstructure:"content_type"`
	DeleteLocal bool        `mapstructure:"delete_local"`
	Drive       DriveConfig `mapstructure:"drive"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	Local       LocalConfig `mapstructure:"local"`
}

// DriveConfig targets a Google Drive folder.
type DriveConfig struct {
	FolderID        string `mapstructure:"folder_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// GCSConfig targets a Cloud Storage bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LocalConfig targets a directory.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// ClassifierConfig points at a TensorFlow Serving model. An empty endpoint
// disables classification.
type ClassifierConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	Threshold   float64       `mapstructure:"threshold"`
	InputWidth  int           `mapstructure:"input_width"`
	InputHeight int           `mapstructure:"input_height"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PubSubConfig holds the topics capture events are published to. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	CaptureTopic string `mapstructure:"capture_topic"`
	AlertTopic   string `mapstructure:"alert_topic"`
}

// DBConfig controls access to the capture ledger. An empty DSN disables it.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	CaptureTable string `mapstructure:"capture_table"`
	CycleTable   string `mapstructure:"cycle_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// ServerConfig controls the status server. An empty address disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// StaleAfter marks the service unready when no cycle has finished for
	// this long. Zero disables the check.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls span sampling.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOODCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture.map_url", "https://cameras.praiagrande.sp.gov.br/aovivo/")
	v.SetDefault("capture.output_dir", "imagens_cameras_mapa")
	v.SetDefault("capture.marker_selector", "img.leaflet-marker-icon")
	v.SetDefault("capture.content_selector", "div.slideshowLightbox img")
	v.SetDefault("capture.description_selector", ".descLightbox")
	v.SetDefault("capture.fallback_name", "camera_desconhecida")
	v.SetDefault("capture.wait_timeout", "20s")
	v.SetDefault("capture.dialog_window", "3s")
	v.SetDefault("capture.settle_delay", "2s")
	v.SetDefault("capture.timezone", "America/Sao_Paulo")
	v.SetDefault("browser.engine", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.start_timeout", "30s")
	v.SetDefault("cycle.interval", "60s")
	v.SetDefault("archive.backend", BackendDrive)
	v.SetDefault("archive.content_type", "image/png")
	v.SetDefault("archive.delete_local", true)
	v.SetDefault("archive.drive.folder_id", "1JRkkyA6Oy-3TN2CHkEdrOS0MI0BUxmmT")
	v.SetDefault("archive.local.base_dir", "archive")
	v.SetDefault("classifier.model", "flood")
	v.SetDefault("classifier.threshold", 0.5)
	v.SetDefault("classifier.input_width", 150)
	v.SetDefault("classifier.input_height", 150)
	v.SetDefault("classifier.timeout", "10s")
	v.SetDefault("pubsub.capture_topic", "floodcam-captures")
	v.SetDefault("pubsub.alert_topic", "floodcam-alerts")
	v.SetDefault("db.capture_table", "camera_captures")
	v.SetDefault("db.cycle_table", "capture_cycles")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.stale_after", "1h")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "floodcam")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Capture.MapURL) == "" {
		return fmt.Errorf("capture.map_url must be set")
	}
	if strings.TrimSpace(c.Capture.OutputDir) == "" {
		return fmt.Errorf("capture.output_dir must be set")
	}
	if c.Capture.WaitTimeout <= 0 {
		return fmt.Errorf("capture.wait_timeout must be > 0")
	}
	if c.Capture.Timezone != "" {
		if _, err := time.LoadLocation(c.Capture.Timezone); err != nil {
			return fmt.Errorf("capture.timezone: %w", err)
		}
	}
	if c.Cycle.Interval <= 0 {
		return fmt.Errorf("cycle.interval must be > 0")
	}
	switch c.Archive.Backend {
	case BackendDrive:
		if c.Archive.Drive.FolderID == "" {
			return fmt.Errorf("archive.drive.folder_id must be set for the drive backend")
		}
	case BackendGCS:
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set for the gcs backend")
		}
	case BackendLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set for the local backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 1 {
		return fmt.Errorf("classifier.threshold must be between 0 and 1")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}
