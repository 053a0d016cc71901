// Package app builds the long-lived services from configuration and runs
// the capture loop alongside the status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/floodcam/internal/api"
	"github.com/JakeFAU/floodcam/internal/capture"
	"github.com/JakeFAU/floodcam/internal/classifier"
	"github.com/JakeFAU/floodcam/internal/clock/system"
	"github.com/JakeFAU/floodcam/internal/config"
	"github.com/JakeFAU/floodcam/internal/hash/sha256"
	"github.com/JakeFAU/floodcam/internal/headless"
	"github.com/JakeFAU/floodcam/internal/id/uuid"
	"github.com/JakeFAU/floodcam/internal/logging"
	"github.com/JakeFAU/floodcam/internal/metrics"
	"github.com/JakeFAU/floodcam/internal/pipeline"
	gcppublisher "github.com/JakeFAU/floodcam/internal/publisher/pubsub"
	drivestorage "github.com/JakeFAU/floodcam/internal/storage/drive"
	gcsstorage "github.com/JakeFAU/floodcam/internal/storage/gcs"
	localstorage "github.com/JakeFAU/floodcam/internal/storage/local"
	memorystorage "github.com/JakeFAU/floodcam/internal/storage/memory"
	pgstore "github.com/JakeFAU/floodcam/internal/storage/postgres"
	"github.com/JakeFAU/floodcam/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	registry       *prometheus.Registry
	status         *api.Status
	apiServer      *api.Server
	runner         *pipeline.Runner
	browser        capture.Browser
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	storage        *storage.Client
	db             *pgstore.Store
	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// Option overrides a dependency that Build would otherwise create.
type Option func(*App)

// WithBrowser replaces the configured browser engine.
func WithBrowser(b capture.Browser) Option {
	return func(a *App) {
		a.browser = b
	}
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
	}

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	if err := app.build(ctx); err != nil {
		_ = app.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies",
		zap.String("map_url", a.cfg.Capture.MapURL),
		zap.String("archive_backend", a.cfg.Archive.Backend),
		zap.String("browser_engine", a.cfg.Browser.Engine),
	)

	recorder, err := a.setupMetrics()
	if err != nil {
		return err
	}
	clock, err := a.setupClock()
	if err != nil {
		return err
	}
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	flood, err := a.setupClassifier()
	if err != nil {
		return err
	}
	if a.browser == nil {
		a.browser, err = headless.New(headless.Config{
			Engine:       a.cfg.Browser.Engine,
			Headless:     a.cfg.Browser.Headless,
			ExecPath:     a.cfg.Browser.ExecPath,
			UserAgent:    a.cfg.Browser.UserAgent,
			WindowWidth:  a.cfg.Browser.WindowWidth,
			WindowHeight: a.cfg.Browser.WindowHeight,
			NoSandbox:    a.cfg.Browser.NoSandbox,
			Stealth:      a.cfg.Browser.Stealth,
			StartTimeout: a.cfg.Browser.StartTimeout,
		}, a.logger.Named("headless"))
		if err != nil {
			return fmt.Errorf("browser init failed: %w", err)
		}
	}

	a.status = api.NewStatus(0)
	latch := &pipeline.SummaryLatch{}
	orchestrator, err := capture.NewOrchestrator(a.browser, capture.Config{
		MapURL:              a.cfg.Capture.MapURL,
		OutputDir:           a.cfg.Capture.OutputDir,
		MarkerSelector:      a.cfg.Capture.MarkerSelector,
		ContentSelector:     a.cfg.Capture.ContentSelector,
		DescriptionSelector: a.cfg.Capture.DescriptionSelector,
		FallbackName:        a.cfg.Capture.FallbackName,
		WaitTimeout:         a.cfg.Capture.WaitTimeout,
		DialogWindow:        a.cfg.Capture.DialogWindow,
		SettleDelay:         a.cfg.Capture.SettleDelay,
	}, clock, capture.Observers{recorder, a.status, latch}, a.logger.Named("capture"))
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}

	ids := uuid.New()
	deps := pipeline.Deps{
		Classifier: flood,
		Archive:    archive,
		Hasher:     sha256.New(),
		IDs:        ids,
		Clock:      clock,
		Recorder:   recorder,
	}
	var cycles pipeline.CycleStore
	if a.db != nil {
		deps.Captures = a.db
		cycles = a.db
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	proc, err := pipeline.New(deps, pipeline.Config{
		ArchivePrefix: a.cfg.Archive.Prefix,
		ContentType:   a.cfg.Archive.ContentType,
		CaptureTopic:  a.cfg.PubSub.CaptureTopic,
		AlertTopic:    a.cfg.PubSub.AlertTopic,
		DeleteLocal:   a.cfg.Archive.DeleteLocal,
	}, a.logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.runner, err = pipeline.NewRunner(orchestrator, proc, ids, latch, cycles, a.cfg.Cycle.Interval, a.logger.Named("runner"))
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.status, api.Options{
		StaleAfter: a.cfg.Server.StaleAfter,
		Metrics:    metrics.Handler(a.registry),
		Middleware: []func(http.Handler) http.Handler{recorder.Middleware},
		Clock:      clock,
	}, a.logger.Named("api"))
	return nil
}

func (a *App) setupMetrics() (*metrics.Recorder, error) {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(a.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}
	return recorder, nil
}

func (a *App) setupClock() (*system.Clock, error) {
	if a.cfg.Capture.Timezone == "" {
		return system.New(), nil
	}
	clock, err := system.NewInLocation(a.cfg.Capture.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock init failed: %w", err)
	}
	return clock, nil
}

func (a *App) setupArchive(ctx context.Context) (pipeline.ArchiveStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendDrive:
		driveCfg := drivestorage.Config{
			FolderID:        a.cfg.Archive.Drive.FolderID,
			CredentialsFile: a.cfg.Archive.Drive.CredentialsFile,
		}
		service, err := drivestorage.NewService(ctx, driveCfg)
		if err != nil {
			return nil, fmt.Errorf("drive client init failed: %w", err)
		}
		store, err := drivestorage.New(service, driveCfg)
		if err != nil {
			return nil, fmt.Errorf("drive archive init failed: %w", err)
		}
		a.logger.Info("using Google Drive archive", zap.String("folder_id", driveCfg.FolderID))
		return store, nil
	case config.BackendGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Archive.GCS.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.GCS.Bucket))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("path", a.cfg.Archive.Local.BaseDir))
		return store, nil
	case config.BackendMemory:
		a.logger.Warn("using in-memory archive; frames are discarded on exit")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, capture ledger disabled")
		return nil
	}
	var err error
	a.db, err = pgstore.New(ctx, pgstore.Config{
		DSN:          a.cfg.DB.DSN,
		CaptureTable: a.cfg.DB.CaptureTable,
		CycleTable:   a.cfg.DB.CycleTable,
		MaxConns:     a.cfg.DB.MaxConns,
		MinConns:     a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("capture ledger init failed: %w", err)
	}
	if a.cfg.DB.EnsureSchema {
		if err := a.db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("capture ledger schema failed: %w", err)
		}
	}
	a.logger.Info("capture ledger initialized",
		zap.String("capture_table", a.cfg.DB.CaptureTable),
		zap.String("cycle_table", a.cfg.DB.CycleTable),
	)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (pipeline.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, capture events disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("capture_topic", a.cfg.PubSub.CaptureTopic),
		zap.String("alert_topic", a.cfg.PubSub.AlertTopic),
	)
	return a.publisher, nil
}

func (a *App) setupClassifier() (pipeline.Classifier, error) {
	if a.cfg.Classifier.Endpoint == "" {
		return classifier.NewDisabled(a.logger.Named("classifier")), nil
	}
	flood, err := classifier.NewTFServing(classifier.TFServingConfig{
		Endpoint:    a.cfg.Classifier.Endpoint,
		Model:       a.cfg.Classifier.Model,
		Threshold:   a.cfg.Classifier.Threshold,
		InputWidth:  a.cfg.Classifier.InputWidth,
		InputHeight: a.cfg.Classifier.InputHeight,
		Timeout:     a.cfg.Classifier.Timeout,
	}, nil, a.logger.Named("classifier"))
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	a.logger.Info("flood classifier enabled",
		zap.String("endpoint", a.cfg.Classifier.Endpoint),
		zap.String("model", a.cfg.Classifier.Model),
		zap.Float64("threshold", a.cfg.Classifier.Threshold),
	)
	return flood, nil
}

// Status exposes the visit and cycle tracker.
func (a *App) Status() *api.Status {
	return a.status
}

// Handler returns the status server router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run repeats capture cycles and serves status until the context is
// cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.logger.Info("application started", zap.Duration("interval", a.cfg.Cycle.Interval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runner.Run(ctx)
	})
	if a.cfg.Server.Addr != "" {
		g.Go(func() error {
			return a.apiServer.ListenAndServe(ctx, a.cfg.Server.Addr)
		})
	}
	err := g.Wait()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return errors.Join(err, a.Close(shutdownCtx))
}

// RunOnce executes a single capture cycle.
func (a *App) RunOnce(ctx context.Context) (pipeline.CycleReport, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	report, err := a.runner.RunOnce(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return report, errors.Join(err, a.Close(shutdownCtx))
}

// Close releases clients and flushes telemetry. It is safe to call on a
// partially built App and more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.close(ctx)
	})
	return nil
}

func (a *App) close(ctx context.Context) {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
