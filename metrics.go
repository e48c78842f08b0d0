package hyperbatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for projection batches. A nil
// *Metrics records nothing.
type Metrics struct {
	batches        *prometheus.CounterVec // by status: ok, error
	batchSize      prometheus.Histogram
	duration       prometheus.Histogram
	cacheLookups   *prometheus.CounterVec // by result: hit, miss
	guardFailures  *prometheus.CounterVec // by descriptor
	hierarchyFault prometheus.Counter
}

// NewMetrics creates the projection collectors and registers them with reg.
// It returns nil, nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbatch",
			Subsystem: "projection",
			Name:      "batches_total",
			Help:      "Total number of projection batches by outcome",
		}, []string{"status"}),

		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hyperbatch",
			Subsystem: "projection",
			Name:      "batch_size",
			Help:      "Number of distinct entity IDs per batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hyperbatch",
			Subsystem: "projection",
			Name:      "duration_seconds",
			Help:      "Projection batch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbatch",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Document cache lookups by result",
		}, []string{"result"}),

		guardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbatch",
			Subsystem: "projection",
			Name:      "guard_failures_total",
			Help:      "Descriptors omitted because a guard or value failed to evaluate",
		}, []string{"descriptor"}),

		hierarchyFault: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hyperbatch",
			Subsystem: "hierarchy",
			Name:      "anomalies_total",
			Help:      "Entities found with more than one direct parent",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.batches, m.batchSize, m.duration, m.cacheLookups, m.guardFailures, m.hierarchyFault,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordBatch(size int, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchSize.Observe(float64(size))
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) recordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) recordGuardFailure(descriptor string) {
	if m == nil {
		return
	}
	m.guardFailures.WithLabelValues(descriptor).Inc()
}

func (m *Metrics) recordHierarchyAnomaly() {
	if m == nil {
		return
	}
	m.hierarchyFault.Inc()
}
