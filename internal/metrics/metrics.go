// Package metrics exposes Prometheus collectors for capture cycles and the
// archive pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// Cycle results.
const (
	CycleCompleted = "completed"
	CycleAborted   = "aborted"
)

// Recorder owns every collector. It observes the capture orchestrator, the
// archive pipeline and the status server.
type Recorder struct {
	visits          *prometheus.CounterVec
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	discovered      prometheus.Gauge
	lastCycle       prometheus.Gauge
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	classifications *prometheus.CounterVec
	stageErrors     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewRecorder registers the collectors against reg. A nil reg uses the
// default registerer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_marker_visits_total",
			Help: "Marker visits partitioned by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_cycles_total",
			Help: "Capture cycles partitioned by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "floodcam_cycle_duration_seconds",
			Help:    "Wall time per capture cycle.",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
		}),
		discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "floodcam_markers_discovered",
			Help: "Markers rendered on the map at the start of the last cycle.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "floodcam_last_cycle_timestamp_seconds",
			Help: "Unix time the last capture cycle finished.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_uploads_total",
			Help: "Archive uploads partitioned by result.",
		}, []string{"result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floodcam_upload_duration_seconds",
			Help:    "Archive upload latency partitioned by result.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_classifications_total",
			Help: "Flood classifications partitioned by verdict.",
		}, []string{"verdict"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_pipeline_stage_errors_total",
			Help: "Non-fatal pipeline failures partitioned by stage.",
		}, []string{"stage"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodcam_http_requests_total",
			Help: "Status server requests partitioned by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floodcam_http_request_duration_seconds",
			Help:    "Status server latency partitioned by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{
		r.visits,
		r.cycles,
		r.cycleDuration,
		r.discovered,
		r.lastCycle,
		r.uploads,
		r.uploadDuration,
		r.classifications,
		r.stageErrors,
		r.httpRequests,
		r.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Handler serves the metrics gathered by g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveVisit implements capture.Observer.
func (r *Recorder) ObserveVisit(snap capture.Snapshot) {
	reason := string(snap.Reason)
	if reason == "" {
		reason = "none"
	}
	r.visits.WithLabelValues(string(snap.Outcome), reason).Inc()
}

// ObserveCycle implements capture.Observer.
func (r *Recorder) ObserveCycle(summary capture.Summary) {
	result := CycleCompleted
	if summary.Aborted {
		result = CycleAborted
	}
	r.cycles.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(summary.Duration().Seconds())
	r.discovered.Set(float64(summary.Discovered))
	r.lastCycle.Set(float64(summary.Finished.Unix()))
}

// ObserveUpload records one archive upload.
func (r *Recorder) ObserveUpload(result string, d time.Duration) {
	r.uploads.WithLabelValues(result).Inc()
	r.uploadDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveClassification records one classifier verdict.
func (r *Recorder) ObserveClassification(verdict string) {
	r.classifications.WithLabelValues(verdict).Inc()
}

// ObserveStageError records a non-fatal pipeline failure.
func (r *Recorder) ObserveStageError(stage string) {
	r.stageErrors.WithLabelValues(stage).Inc()
}

// Middleware is a chi middleware that records HTTP request metrics.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, req)

		route := "unknown"
		if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		r.httpRequests.WithLabelValues(req.Method, strconv.Itoa(ww.statusCode)).Inc()
		r.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
