package monitor

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// RunStats counts what one benchmark run did. The atomic counters back the
// end-of-run summary; the same events feed a private prometheus registry.
type RunStats struct {
	TrainCalls    uint64
	TestCalls     uint64
	QueriesTested uint64
	Estimates     uint64
	Failures      uint64

	registry      *prometheus.Registry
	trainDuration *prometheus.HistogramVec
	testDuration  *prometheus.HistogramVec
	estimates     *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

func NewRunStats() *RunStats {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &RunStats{
		registry: reg,

		// trainDuration tracks Train wall time per estimator
		trainDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardbench_train_duration_seconds",
			Help:    "Estimator training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"estimator"}),

		testDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardbench_test_duration_seconds",
			Help:    "Estimator inference duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"estimator"}),

		estimates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardbench_estimates_total",
			Help: "Total subplan estimates produced",
		}, []string{"estimator"}),

		// failures counts errors by phase ("train" or "test")
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardbench_failures_total",
			Help: "Total failed estimator calls by phase",
		}, []string{"estimator", "phase"}),
	}
}

func (rs *RunStats) RecordTrain(estimator string, d time.Duration) {
	atomic.AddUint64(&rs.TrainCalls, 1)
	rs.trainDuration.WithLabelValues(estimator).Observe(d.Seconds())
}

// RecordTest notes one Test call covering queries samples and estimates subplans.
func (rs *RunStats) RecordTest(estimator string, d time.Duration, queries, estimates int) {
	atomic.AddUint64(&rs.TestCalls, 1)
	atomic.AddUint64(&rs.QueriesTested, uint64(queries))
	atomic.AddUint64(&rs.Estimates, uint64(estimates))
	rs.testDuration.WithLabelValues(estimator).Observe(d.Seconds())
	rs.estimates.WithLabelValues(estimator).Add(float64(estimates))
}

func (rs *RunStats) RecordFailure(estimator, phase string) {
	atomic.AddUint64(&rs.Failures, 1)
	rs.failures.WithLabelValues(estimator, phase).Inc()
}

// EstimatesPerQuery is the mean number of subplans estimated per tested query.
func (rs *RunStats) EstimatesPerQuery() float64 {
	queries := atomic.LoadUint64(&rs.QueriesTested)
	if queries == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&rs.Estimates)) / float64(queries)
}

func (rs *RunStats) Registry() *prometheus.Registry {
	return rs.registry
}

// WriteMetrics dumps the registry in the prometheus text format.
func (rs *RunStats) WriteMetrics(w io.Writer) error {
	families, err := rs.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
