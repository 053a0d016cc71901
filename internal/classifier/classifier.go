// Package classifier decides whether a captured camera frame shows flooding.
package classifier

import (
	"context"
	"errors"
)

// DefaultThreshold is the probability above which a frame is a flood.
const DefaultThreshold = 0.5

// ErrNoPrediction indicates the model answered without a usable score.
var ErrNoPrediction = errors.New("model returned no prediction")

// Verdict is the classification of one image.
type Verdict struct {
	Flood bool `json:"flood"`
	// Probability is the raw model score for the flood class.
	Probability float64 `json:"probability"`
	// Confidence is Probability for floods and 1-Probability otherwise.
	Confidence float64 `json:"confidence"`
	// Enabled is false when no model was configured and the verdict is a
	// default no-flood answer.
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
}

// Classifier scores the image stored at path.
type Classifier interface {
	Classify(ctx context.Context, path string) (Verdict, error)
}

func verdictFor(p, threshold float64, model string) Verdict {
	v := Verdict{
		Flood:       p > threshold,
		Probability: p,
		Enabled:     true,
		Model:       model,
	}
	if v.Flood {
		v.Confidence = p
	} else {
		v.Confidence = 1 - p
	}
	return v
}
