package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/floodcam/internal/capture"
	"github.com/JakeFAU/floodcam/internal/classifier"
)

// Upload results and classification labels reported to the Recorder.
const (
	ResultSuccess = "success"
	ResultError   = "error"

	VerdictFlood    = "flood"
	VerdictClear    = "clear"
	VerdictDisabled = "disabled"
	VerdictError    = "error"
)

var tracer = otel.Tracer("github.com/JakeFAU/floodcam/internal/pipeline")

// Stages that may fail without stopping the pipeline.
const (
	StageRecord  = "record"
	StagePublish = "publish"
	StageCleanup = "cleanup"
)

// Config controls how frames are archived and announced.
type Config struct {
	// ArchivePrefix is prepended to every object name.
	ArchivePrefix string
	ContentType   string
	CaptureTopic  string
	AlertTopic    string
	// DeleteLocal removes the screenshot after a confirmed upload.
	DeleteLocal bool
}

// Deps are the collaborators of a Pipeline. Captures, Publisher and
// Recorder are optional.
type Deps struct {
	Classifier Classifier
	Archive    ArchiveStore
	Captures   CaptureStore
	Publisher  Publisher
	Hasher     Hasher
	IDs        IDGenerator
	Clock      Clock
	Recorder   Recorder
}

// Result describes one archived frame.
type Result struct {
	ID         string
	ArchiveURI string
	Hash       string
	Verdict    classifier.Verdict
}

// Pipeline classifies, archives, records and announces captured frames.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case deps.Archive == nil:
		return nil, errors.New("pipeline: archive store is required")
	case deps.Hasher == nil:
		return nil, errors.New("pipeline: hasher is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/png"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}, nil
}

// Process handles one captured snapshot. Only an archive failure is
// returned; the local file is kept in that case. Ledger, publish and cleanup
// failures are logged and counted.
func (p *Pipeline) Process(ctx context.Context, cycleID string, snap capture.Snapshot) (Result, error) {
	if !snap.Captured() {
		return Result{}, fmt.Errorf("snapshot %d was not captured", snap.Ordinal)
	}
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("floodcam.cycle_id", cycleID),
		attribute.Int("floodcam.ordinal", snap.Ordinal),
		attribute.String("floodcam.camera", snap.Name),
	)
	logger := p.logger.With(
		zap.String("cycle_id", cycleID),
		zap.Int("ordinal", snap.Ordinal),
		zap.String("camera", snap.Name),
	)

	id, err := p.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate capture id: %w", err)
	}
	res := Result{ID: id, Verdict: p.classify(ctx, snap.Path, logger)}

	hash, uri, err := p.archive(ctx, snap)
	if err != nil {
		logger.Error("archive failed; keeping local file", zap.String("path", snap.Path), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		return res, err
	}
	res.Hash = hash
	res.ArchiveURI = uri
	span.SetAttributes(attribute.Bool("floodcam.flood", res.Verdict.Flood))
	logger.Info("frame archived", zap.String("archive_uri", uri))

	p.record(ctx, cycleID, snap, res, logger)
	p.publish(ctx, cycleID, snap, res, logger)
	p.cleanup(snap.Path, logger)
	return res, nil
}

func (p *Pipeline) classify(ctx context.Context, file string, logger *zap.Logger) classifier.Verdict {
	verdict, err := p.deps.Classifier.Classify(ctx, file)
	switch {
	case err != nil:
		p.observeClassification(VerdictError)
		logger.Warn("classification failed; treating frame as clear", zap.Error(err))
		return classifier.Verdict{}
	case !verdict.Enabled:
		p.observeClassification(VerdictDisabled)
	case verdict.Flood:
		p.observeClassification(VerdictFlood)
		logger.Warn("possible flood detected",
			zap.String("path", file),
			zap.Float64("confidence", verdict.Confidence),
		)
	default:
		p.observeClassification(VerdictClear)
		logger.Debug("no flood detected", zap.Float64("confidence", verdict.Confidence))
	}
	return verdict
}

func (p *Pipeline) archive(ctx context.Context, snap capture.Snapshot) (string, string, error) {
	f, err := os.Open(snap.Path)
	if err != nil {
		return "", "", fmt.Errorf("open frame: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	hash, err := p.deps.Hasher.Hash(f)
	if err != nil {
		return "", "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("rewind frame: %w", err)
	}

	start := p.deps.Clock.Now()
	uri, err := p.deps.Archive.PutObject(ctx, p.objectName(snap), p.cfg.ContentType, f)
	elapsed := p.deps.Clock.Now().Sub(start)
	if err != nil {
		p.observeUpload(ResultError, elapsed)
		return "", "", fmt.Errorf("put object: %w", err)
	}
	p.observeUpload(ResultSuccess, elapsed)
	return hash, uri, nil
}

// objectName partitions frames by capture day.
func (p *Pipeline) objectName(snap capture.Snapshot) string {
	day := snap.CapturedAt.Format("2006-01-02")
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	return path.Join(prefix, day, filepath.Base(snap.Path))
}

func (p *Pipeline) record(ctx context.Context, cycleID string, snap capture.Snapshot, res Result, logger *zap.Logger) {
	if p.deps.Captures == nil {
		return
	}
	rec := CaptureRecord{
		ID:               res.ID,
		CycleID:          cycleID,
		Ordinal:          snap.Ordinal,
		CameraName:       snap.Name,
		FileName:         filepath.Base(snap.Path),
		ContentHash:      res.Hash,
		ArchiveURI:       res.ArchiveURI,
		Flood:            res.Verdict.Flood,
		FloodProbability: res.Verdict.Probability,
		Classified:       res.Verdict.Enabled,
		CapturedAt:       snap.CapturedAt,
		RecordedAt:       p.deps.Clock.Now(),
	}
	if err := p.deps.Captures.RecordCapture(ctx, rec); err != nil {
		p.observeStageError(StageRecord)
		logger.Error("record capture failed", zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, cycleID string, snap capture.Snapshot, res Result, logger *zap.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	event := Event{
		Type:        EventCapture,
		ID:          res.ID,
		CycleID:     cycleID,
		Ordinal:     snap.Ordinal,
		Camera:      snap.Name,
		ArchiveURI:  res.ArchiveURI,
		ContentHash: res.Hash,
		Flood:       res.Verdict.Flood,
		Confidence:  res.Verdict.Confidence,
		CapturedAt:  snap.CapturedAt,
	}
	p.send(ctx, p.cfg.CaptureTopic, event, logger)

	if res.Verdict.Flood {
		event.Type = EventFloodAlert
		p.send(ctx, p.cfg.AlertTopic, event, logger)
	}
}

func (p *Pipeline) send(ctx context.Context, topic string, event Event, logger *zap.Logger) {
	if topic == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.observeStageError(StagePublish)
		logger.Error("encode event failed", zap.Error(err))
		return
	}
	msgID, err := p.deps.Publisher.Publish(ctx, topic, payload)
	if err != nil {
		p.observeStageError(StagePublish)
		logger.Error("publish event failed", zap.String("topic", topic), zap.String("type", event.Type), zap.Error(err))
		return
	}
	logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", event.Type),
		zap.String("message_id", msgID),
	)
}

func (p *Pipeline) cleanup(file string, logger *zap.Logger) {
	if !p.cfg.DeleteLocal {
		return
	}
	if err := os.Remove(file); err != nil {
		p.observeStageError(StageCleanup)
		logger.Warn("remove local frame failed", zap.String("path", file), zap.Error(err))
		return
	}
	logger.Debug("local frame removed", zap.String("path", file))
}

func (p *Pipeline) observeUpload(result string, d time.Duration) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.ObserveUpload(result, d)
	}
}

func (p *Pipeline) observeClassification(verdict string) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.ObserveClassification(verdict)
	}
}

func (p *Pipeline) observeStageError(stage string) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.ObserveStageError(stage)
	}
}
