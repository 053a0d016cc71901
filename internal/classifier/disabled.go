package classifier

import (
	"context"

	"go.uber.org/zap"
)

// Disabled answers "no flood" for every image. It stands in when no model
// endpoint is configured.
type Disabled struct {
	logger *zap.Logger
}

// NewDisabled logs once that detection is off and returns the classifier.
func NewDisabled(logger *zap.Logger) *Disabled {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("flood model not configured; flood detection disabled")
	return &Disabled{logger: logger}
}

// Classify implements Classifier.
func (d *Disabled) Classify(_ context.Context, path string) (Verdict, error) {
	d.logger.Debug("classification skipped", zap.String("path", path))
	return Verdict{}, nil
}
