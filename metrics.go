package stm

import "github.com/prometheus/client_golang/prometheus"

// engineMetrics wraps the prometheus collectors an Engine reports through.
// A nil *engineMetrics (what newEngineMetrics returns when no Registerer was
// supplied via WithMetrics) keeps every method a no-op, the same "silent unless opted in" default the
// logger uses.
type engineMetrics struct {
	commits   *prometheus.CounterVec
	attempts  prometheus.Histogram
	commitDur prometheus.Histogram
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		return nil
	}
	m := &engineMetrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stm",
			Name:      "commits_total",
			Help:      "Transaction outcomes by result.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stm",
			Name:      "attempts_per_commit",
			Help:      "Number of attempts a transaction took before committing.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		commitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stm",
			Name:      "commit_duration_seconds",
			Help:      "Wall-clock time spent in the commit critical section.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	reg.MustRegister(m.commits, m.attempts, m.commitDur)
	return m
}

func (m *engineMetrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) observeAttempts(n int) {
	if m == nil {
		return
	}
	m.attempts.Observe(float64(n))
}

func (m *engineMetrics) observeCommitDuration(seconds float64) {
	if m == nil {
		return
	}
	m.commitDur.Observe(seconds)
}
