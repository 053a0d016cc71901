package app_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/app"
	"github.com/JakeFAU/floodcam/internal/capture"
	"github.com/JakeFAU/floodcam/internal/config"
)

// stubBrowser serves a map with a fixed number of live cameras.
type stubBrowser struct {
	markers int
}

func (b *stubBrowser) Open(context.Context) (capture.Page, error) {
	return &stubPage{markers: b.markers}, nil
}

type stubPage struct {
	markers int
}

func (p *stubPage) Navigate(context.Context, string) error { return nil }
func (p *stubPage) Reload(context.Context) error           { return nil }
func (p *stubPage) Close() error                           { return nil }

func (p *stubPage) WaitPresent(ctx context.Context, _ string) error {
	if p.markers == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *stubPage) QueryAll(ctx context.Context, sel string) ([]capture.Element, error) {
	if err := p.WaitPresent(ctx, sel); err != nil {
		return nil, err
	}
	out := make([]capture.Element, p.markers)
	for i := range out {
		out[i] = stubElement{text: "Câmera: Canal 3"}
	}
	return out, nil
}

func (p *stubPage) Query(context.Context, string) (capture.Element, bool, error) {
	return stubElement{text: "Câmera: Canal 3"}, true, nil
}

func (p *stubPage) WaitVisible(context.Context, string) (capture.Element, error) {
	return stubElement{}, nil
}

func (p *stubPage) ProbeDialog(context.Context, time.Duration) (string, bool, error) {
	return "", false, nil
}

func (p *stubPage) DismissDialogs(context.Context) ([]string, error) {
	return nil, nil
}

type stubElement struct {
	text string
}

func (stubElement) Click(context.Context) error { return nil }

func (e stubElement) Text(context.Context) (string, error) { return e.text, nil }

func (stubElement) Screenshot(_ context.Context, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Capture: config.CaptureConfig{
			MapURL:       "http://map.test/aovivo/",
			OutputDir:    filepath.Join(t.TempDir(), "frames"),
			WaitTimeout:  200 * time.Millisecond,
			DialogWindow: 10 * time.Millisecond,
			Timezone:     "America/Sao_Paulo",
		},
		Cycle:      config.CycleConfig{Interval: time.Minute},
		Archive:    config.ArchiveConfig{Backend: config.BackendMemory, Prefix: "frames", DeleteLocal: true},
		Classifier: config.ClassifierConfig{Threshold: 0.5},
	}
}

func TestRunOnceArchivesEveryCamera(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.Build(context.Background(), cfg, app.WithBrowser(&stubBrowser{markers: 2}), app.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.ID)
	require.Equal(t, 2, report.Archived)
	require.Zero(t, report.Failed)
	require.Zero(t, report.Floods)
	require.Equal(t, 2, report.Summary.Captured)
	require.False(t, report.Summary.Aborted)

	entries, err := os.ReadDir(cfg.Capture.OutputDir)
	require.NoError(t, err)
	require.Empty(t, entries, "local frames are removed after upload")

	latest, ok := a.Status().Latest()
	require.True(t, ok)
	require.Equal(t, 2, latest.Discovered)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `floodcam_marker_visits_total{outcome="captured",reason="none"} 2`)
	require.Contains(t, rec.Body.String(), `floodcam_classifications_total{verdict="disabled"} 2`)
}

func TestRunOnceEmptyMapAbortsCycle(t *testing.T) {
	a, err := app.Build(context.Background(), testConfig(t), app.WithBrowser(&stubBrowser{}), app.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Summary.Aborted)
	require.Zero(t, report.Archived)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cycles/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"aborted":true`)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.Build(context.Background(), cfg, app.WithBrowser(&stubBrowser{markers: 1}), app.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return a.Status().Cycles() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = "s3"

	_, err := app.Build(context.Background(), cfg, app.WithBrowser(&stubBrowser{}), app.WithLogger(zap.NewNop()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown archive backend")
}

func TestBuildRejectsBadDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.DSN = "://not-a-dsn"

	_, err := app.Build(context.Background(), cfg, app.WithBrowser(&stubBrowser{}), app.WithLogger(zap.NewNop()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "capture ledger init failed")
}
