package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Metrics holds the Prometheus collectors of the cutout service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CutoutRequests  *prometheus.CounterVec
	SegmentDuration prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	Jobs            *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CutoutRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_requests_total",
			Help: "Total number of background removal requests by outcome",
		}, []string{"outcome"}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cutout_segment_duration_seconds",
			Help:    "Time spent in the segmenter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_cache_lookups_total",
			Help: "Result cache lookups by result",
		}, []string{"result"}),
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_jobs_total",
			Help: "Asynchronous jobs by status reached",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.CutoutRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSegment(d time.Duration) {
	if m == nil {
		return
	}
	m.SegmentDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(status).Inc()
}
