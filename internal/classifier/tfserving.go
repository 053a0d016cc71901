package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TFServingConfig points at a TensorFlow Serving REST predict endpoint, e.g.
// http://localhost:8501/v1/models/flood:predict.
type TFServingConfig struct {
	Endpoint    string
	Model       string
	Threshold   float64
	InputWidth  int
	InputHeight int
	Timeout     time.Duration
}

// TFServing classifies images with a remote binary flood model.
type TFServing struct {
	cfg    TFServingConfig
	client *http.Client
	logger *zap.Logger
}

type predictRequest struct {
	Instances []Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// NewTFServing validates cfg and returns a classifier. A nil client uses a
// client bounded by cfg.Timeout.
func NewTFServing(cfg TFServingConfig, client *http.Client, logger *zap.Logger) (*TFServing, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("tfserving endpoint is required")
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.InputWidth <= 0 {
		cfg.InputWidth = DefaultInputWidth
	}
	if cfg.InputHeight <= 0 {
		cfg.InputHeight = DefaultInputHeight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TFServing{cfg: cfg, client: client, logger: logger}, nil
}

// Classify implements Classifier.
func (c *TFServing) Classify(ctx context.Context, path string) (Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return Verdict{}, fmt.Errorf("open image: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			c.logger.Warn("failed to close image", zap.String("path", path), zap.Error(cerr))
		}
	}()

	tensor, err := Preprocess(f, c.cfg.InputWidth, c.cfg.InputHeight)
	if err != nil {
		return Verdict{}, err
	}
	p, err := c.predict(ctx, tensor)
	if err != nil {
		return Verdict{}, err
	}

	v := verdictFor(p, c.cfg.Threshold, c.cfg.Model)
	c.logger.Debug("image classified",
		zap.String("path", path),
		zap.Bool("flood", v.Flood),
		zap.Float64("confidence", v.Confidence),
	)
	return v, nil
}

func (c *TFServing) predict(ctx context.Context, tensor Tensor) (float64, error) {
	body, err := json.Marshal(predictRequest{Instances: []Tensor{tensor}})
	if err != nil {
		return 0, fmt.Errorf("encode predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close predict response", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("predict: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode predict response: %w", err)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return 0, ErrNoPrediction
	}
	return out.Predictions[0][0], nil
}
