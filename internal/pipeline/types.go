// Package pipeline archives captured frames and drives capture cycles on a
// schedule.
package pipeline

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/JakeFAU/floodcam/internal/capture"
	"github.com/JakeFAU/floodcam/internal/classifier"
)

// CaptureRecord is the ledger row written for every archived frame.
type CaptureRecord struct {
	ID               string
	CycleID          string
	Ordinal          int
	CameraName       string
	FileName         string
	ContentHash      string
	ArchiveURI       string
	Flood            bool
	FloodProbability float64
	Classified       bool
	CapturedAt       time.Time
	RecordedAt       time.Time
}

// Event is the payload published for every archived frame.
type Event struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	CycleID     string    `json:"cycle_id"`
	Ordinal     int       `json:"ordinal"`
	Camera      string    `json:"camera"`
	ArchiveURI  string    `json:"archive_uri"`
	ContentHash string    `json:"content_hash"`
	Flood       bool      `json:"flood"`
	Confidence  float64   `json:"confidence"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Event types.
const (
	EventCapture    = "capture"
	EventFloodAlert = "flood_alert"
)

// Classifier scores a captured frame.
type Classifier interface {
	Classify(ctx context.Context, path string) (classifier.Verdict, error)
}

// ArchiveStore persists frames and returns their URI.
type ArchiveStore interface {
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

// CaptureStore records archived frames.
type CaptureStore interface {
	RecordCapture(ctx context.Context, record CaptureRecord) error
}

// Publisher emits events to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// Hasher computes a content hash.
type Hasher interface {
	Hash(r io.Reader) (string, error)
}

// IDGenerator returns unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Cycler produces the captured frames of one pass over the map.
type Cycler interface {
	Cycle(ctx context.Context) iter.Seq[capture.Snapshot]
}

// Recorder receives downstream outcomes for metrics.
type Recorder interface {
	ObserveUpload(result string, d time.Duration)
	ObserveClassification(verdict string)
	ObserveStageError(stage string)
}

// CycleStore records the summary of every cycle.
type CycleStore interface {
	RecordCycle(ctx context.Context, cycleID string, summary capture.Summary) error
}
