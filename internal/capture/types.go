package capture

import "time"

// Outcome tags the result of a single marker visit.
type Outcome string

// Visit outcomes.
const (
	OutcomeCaptured    Outcome = "captured"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeSkipped     Outcome = "skipped"
)

// Reason categorises why a visit did not produce a screenshot.
type Reason string

// Failure categories reported with skipped and unavailable visits.
const (
	ReasonNone           Reason = ""
	ReasonResolution     Reason = "resolution_error"
	ReasonInteraction    Reason = "interaction_error"
	ReasonContentTimeout Reason = "content_timeout"
	ReasonScreenshot     Reason = "screenshot_error"
	ReasonUnavailable    Reason = "camera_unavailable"
	ReasonUnexpected     Reason = "unexpected_error"
	ReasonCancelled      Reason = "cancelled"
)

// Snapshot is the result of one marker visit.
type Snapshot struct {
	// Ordinal is the zero-based position of the marker in the catalog.
	Ordinal int
	Outcome Outcome
	// Name is the raw camera label read from the lightbox, or the
	// placeholder when the label was missing.
	Name string
	// Path is set only when Outcome is OutcomeCaptured.
	Path   string
	Reason Reason
	// Detail carries the dialog text for unavailable cameras or the error
	// text for skipped visits.
	Detail     string
	CapturedAt time.Time
}

// Captured reports whether the visit wrote a screenshot.
func (s Snapshot) Captured() bool {
	return s.Outcome == OutcomeCaptured && s.Path != ""
}

// Summary aggregates the visits of one cycle.
type Summary struct {
	Started     time.Time `json:"started_at"`
	Finished    time.Time `json:"finished_at"`
	Discovered  int       `json:"discovered"`
	Visited     int       `json:"visited"`
	Captured    int       `json:"captured"`
	Unavailable int       `json:"unavailable"`
	Skipped     int       `json:"skipped"`
	Aborted     bool      `json:"aborted"`
	AbortReason string    `json:"abort_reason,omitempty"`
}

// Duration returns the wall time of the cycle.
func (s Summary) Duration() time.Duration {
	if s.Finished.Before(s.Started) {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

func (s *Summary) record(snap Snapshot) {
	s.Visited++
	switch snap.Outcome {
	case OutcomeCaptured:
		s.Captured++
	case OutcomeUnavailable:
		s.Unavailable++
	default:
		s.Skipped++
	}
}

// cycleState is created at the start of a cycle and discarded at its end.
type cycleState struct {
	total   int
	index   int
	aborted bool
}

func (c *cycleState) last() bool {
	return c.index >= c.total-1
}
