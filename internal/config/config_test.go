package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Capture.MapURL != "https://cameras.praiagrande.sp.gov.br/aovivo/" {
		t.Fatalf("unexpected map url %q", cfg.Capture.MapURL)
	}
	if cfg.Capture.WaitTimeout != 20*time.Second || cfg.Capture.DialogWindow != 3*time.Second {
		t.Fatalf("unexpected capture timeouts: %+v", cfg.Capture)
	}
	if cfg.Cycle.Interval != time.Minute {
		t.Fatalf("expected 60s interval, got %v", cfg.Cycle.Interval)
	}
	if cfg.Archive.Backend != BackendDrive || cfg.Archive.Drive.FolderID == "" || !cfg.Archive.DeleteLocal {
		t.Fatalf("unexpected archive defaults: %+v", cfg.Archive)
	}
	if cfg.Classifier.Endpoint != "" || cfg.Classifier.Threshold != 0.5 {
		t.Fatalf("unexpected classifier defaults: %+v", cfg.Classifier)
	}
	if cfg.Browser.WindowWidth != 1920 || cfg.Browser.WindowHeight != 1080 || !cfg.Browser.Headless {
		t.Fatalf("unexpected browser defaults: %+v", cfg.Browser)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
capture:
  map_url: http://localhost:9000/map
  output_dir: /tmp/frames
  wait_timeout: 5s
  settle_delay: 500ms
  timezone: UTC
browser:
  engine: rod
  stealth: true
cycle:
  interval: 2m
archive:
  backend: gcs
  prefix: frames
  delete_local: false
  gcs:
    bucket: flood-frames
classifier:
  endpoint: http://tfserving:8501
  threshold: 0.7
pubsub:
  project_id: demo
db:
  dsn: postgres://localhost/floodcam
server:
  addr: ":9090"
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.MapURL != "http://localhost:9000/map" || cfg.Capture.WaitTimeout != 5*time.Second {
		t.Fatalf("expected capture overrides to apply: %+v", cfg.Capture)
	}
	if cfg.Capture.SettleDelay != 500*time.Millisecond {
		t.Fatalf("expected settle delay 500ms, got %v", cfg.Capture.SettleDelay)
	}
	if cfg.Browser.Engine != "rod" || !cfg.Browser.Stealth {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Cycle.Interval != 2*time.Minute {
		t.Fatalf("expected 2m interval, got %v", cfg.Cycle.Interval)
	}
	if cfg.Archive.Backend != BackendGCS || cfg.Archive.GCS.Bucket != "flood-frames" || cfg.Archive.DeleteLocal {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if cfg.Classifier.Threshold != 0.7 || cfg.Classifier.Model != "flood" {
		t.Fatalf("expected classifier overrides with default model: %+v", cfg.Classifier)
	}
	if cfg.PubSub.ProjectID != "demo" || cfg.PubSub.CaptureTopic != "floodcam-captures" {
		t.Fatalf("unexpected pubsub config: %+v", cfg.PubSub)
	}
	if cfg.Server.Addr != ":9090" || cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected server/logging config: %+v %+v", cfg.Server, cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLOODCAM_ARCHIVE_BACKEND", "memory")
	t.Setenv("FLOODCAM_CYCLE_INTERVAL", "15s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Archive.Backend != BackendMemory {
		t.Fatalf("expected memory backend from env, got %q", cfg.Archive.Backend)
	}
	if cfg.Cycle.Interval != 15*time.Second {
		t.Fatalf("expected 15s interval from env, got %v", cfg.Cycle.Interval)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Capture:    CaptureConfig{MapURL: "http://map", OutputDir: "out", WaitTimeout: time.Second},
		Cycle:      CycleConfig{Interval: time.Minute},
		Archive:    ArchiveConfig{Backend: BackendMemory},
		Classifier: ClassifierConfig{Threshold: 0.5},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing map url", mutate: func(c *Config) { c.Capture.MapURL = " " }, want: "capture.map_url"},
		{name: "missing output dir", mutate: func(c *Config) { c.Capture.OutputDir = "" }, want: "capture.output_dir"},
		{name: "zero wait", mutate: func(c *Config) { c.Capture.WaitTimeout = 0 }, want: "capture.wait_timeout"},
		{name: "bad timezone", mutate: func(c *Config) { c.Capture.Timezone = "Mars/Olympus" }, want: "capture.timezone"},
		{name: "zero interval", mutate: func(c *Config) { c.Cycle.Interval = 0 }, want: "cycle.interval"},
		{name: "unknown backend", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "drive without folder", mutate: func(c *Config) { c.Archive.Backend = BackendDrive }, want: "archive.drive.folder_id"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = BackendGCS }, want: "archive.gcs.bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Archive.Backend = BackendLocal }, want: "archive.local.base_dir"},
		{name: "threshold out of range", mutate: func(c *Config) { c.Classifier.Threshold = 1 }, want: "classifier.threshold"},
		{name: "sample ratio out of range", mutate: func(c *Config) { c.Telemetry.SampleRatio = 2 }, want: "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
