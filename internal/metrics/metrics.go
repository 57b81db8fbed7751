package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loan_queue"

// Metrics tracks queue metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted      prometheus.Counter
	decided        *prometheus.CounterVec
	overrides      *prometheus.CounterVec
	conflicts      prometheus.Counter
	dequeueWait    prometheus.Histogram
	queueLength    prometheus.Gauge
	inReview       prometheus.Gauge
	convoyClusters prometheus.Gauge
	avgWait        prometheus.Gauge
}

// NewMetrics registers the queue metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submitted_total",
			Help:      "Loans that entered the queue",
		}),
		decided: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decided_total",
			Help:      "Loans decided, by decision",
		}, []string{"decision"}),
		overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Operator overrides of FCFS order, by kind",
		}, []string{"kind"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Mutations retried after a storage write conflict",
		}),
		dequeueWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dequeue_wait_minutes",
			Help:      "Minutes a loan waited in the queue before review started",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Loans currently queued",
		}),
		inReview: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_review",
			Help:      "Loans currently under review",
		}),
		convoyClusters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "convoy_clusters",
			Help:      "Runs of long loans in the current queue",
		}),
		avgWait: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projected_average_wait_minutes",
			Help:      "Projected FCFS average waiting time of the current queue",
		}),
	}
}

// IncSubmitted counts a submission
func (m *Metrics) IncSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

// IncDecided counts an approval or rejection
func (m *Metrics) IncDecided(decision string) {
	if m == nil {
		return
	}
	m.decided.WithLabelValues(decision).Inc()
}

// IncOverride counts a priority or emergency override
func (m *Metrics) IncOverride(kind string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(kind).Inc()
}

// IncConflictRetry counts a retried mutation
func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// ObserveDequeueWait records how long a loan waited before review
func (m *Metrics) ObserveDequeueWait(minutes float64) {
	if m == nil {
		return
	}
	m.dequeueWait.Observe(minutes)
}

// SetQueueGauges sets the point-in-time queue gauges
func (m *Metrics) SetQueueGauges(queued, inReview, clusters int, avgWait float64) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(queued))
	m.inReview.Set(float64(inReview))
	m.convoyClusters.Set(float64(clusters))
	m.avgWait.Set(avgWait)
}
