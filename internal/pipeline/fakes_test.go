package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/floodcam/internal/capture"
	"github.com/JakeFAU/floodcam/internal/classifier"
)

type fakeClassifier struct {
	verdicts map[string]classifier.Verdict
	err      error
}

func (c *fakeClassifier) Classify(_ context.Context, path string) (classifier.Verdict, error) {
	if c.err != nil {
		return classifier.Verdict{}, c.err
	}
	return c.verdicts[filepath.Base(path)], nil
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: make(map[string][]byte)}
}

func (a *fakeArchive) PutObject(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[name] = data
	return "mem://" + name, nil
}

type fakeCaptureStore struct {
	mu      sync.Mutex
	records []CaptureRecord
	err     error
}

func (s *fakeCaptureStore) RecordCapture(_ context.Context, rec CaptureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type fakeCycleStore struct {
	mu        sync.Mutex
	summaries map[string]capture.Summary
}

func (s *fakeCycleStore) RecordCycle(_ context.Context, id string, summary capture.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaries == nil {
		s.summaries = make(map[string]capture.Summary)
	}
	s.summaries[id] = summary
	return nil
}

type publishedEvent struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, payload: payload})
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type fakeHasher struct{ hash string }

func (h fakeHasher) Hash(r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return h.hash, nil
}

type fakeIDs struct {
	mu sync.Mutex
	n  int
}

func (g *fakeIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeRecorder struct {
	mu              sync.Mutex
	uploads         map[string]int
	classifications map[string]int
	stageErrors     map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		uploads:         map[string]int{},
		classifications: map[string]int{},
		stageErrors:     map[string]int{},
	}
}

func (r *fakeRecorder) ObserveUpload(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[result]++
}

func (r *fakeRecorder) ObserveClassification(verdict string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications[verdict]++
}

func (r *fakeRecorder) ObserveStageError(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageErrors[stage]++
}

// fakeCycler yields pre-built snapshots and reports a summary to its latch.
type fakeCycler struct {
	snaps  []capture.Snapshot
	latch  *SummaryLatch
	cycles atomic.Int32
}

func (c *fakeCycler) Cycle(context.Context) iter.Seq[capture.Snapshot] {
	return func(yield func(capture.Snapshot) bool) {
		c.cycles.Add(1)
		summary := capture.Summary{Discovered: len(c.snaps)}
		defer func() {
			if c.latch != nil {
				c.latch.ObserveCycle(summary)
			}
		}()
		for _, snap := range c.snaps {
			summary.Visited++
			summary.Captured++
			if !yield(snap) {
				return
			}
		}
	}
}

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func writeFrame(t *testing.T, dir, name string) capture.Snapshot {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG "+name), 0o600))
	return capture.Snapshot{
		Outcome:    capture.OutcomeCaptured,
		Name:       "Câmera: " + name,
		Path:       path,
		CapturedAt: testTime,
	}
}
