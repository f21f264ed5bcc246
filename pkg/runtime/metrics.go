package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcome labels for tern_runs_total.
const (
	OutcomeOK               = "ok"
	OutcomeInvalid          = "invalid"
	OutcomeCapabilityDenied = "capability_denied"
	OutcomeBudgetExceeded   = "budget_exceeded"
	OutcomeRuntimeError     = "runtime_error"
)

type metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	denials  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tern_runs_total",
			Help: "Programs run, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tern_run_duration_seconds",
			Help:    "Wall time of program evaluation.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tern_capability_denials_total",
			Help: "Effects refused by the sandbox profile, by capability.",
		}, []string{"capability"}),
	}
	if reg == nil {
		return m
	}
	m.runs = register(reg, m.runs)
	m.duration = register(reg, m.duration)
	m.denials = register(reg, m.denials)
	return m
}

// register adds c to reg. Runtimes sharing a registry share collectors.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}
