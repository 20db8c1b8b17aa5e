package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
)

const (
	namespace = "gradeparse"
	subsystem = "parsing"
)

// Metrics exposes Prometheus collectors that report parsing activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	corrections *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Parsing runs by result tier and review flag.",
		},
		[]string{"tier", "needs_review"},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Strategy attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	corrections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "corrections_total",
			Help:      "Field corrections applied to accepted payloads, by kind.",
		},
		[]string{"kind"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one parsing run.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"tier"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_in_flight",
			Help:      "Parsing runs currently executing.",
		},
	)

	collectors := []prometheus.Collector{runs, attempts, corrections, duration, inFlight}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch target := collector.(type) {
			case *prometheus.CounterVec:
				existing := already.ExistingCollector.(*prometheus.CounterVec)
				switch target {
				case runs:
					runs = existing
				case attempts:
					attempts = existing
				case corrections:
					corrections = existing
				}
			case *prometheus.HistogramVec:
				duration = already.ExistingCollector.(*prometheus.HistogramVec)
			case prometheus.Gauge:
				inFlight = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}

	return &Metrics{
		runs:        runs,
		attempts:    attempts,
		corrections: corrections,
		duration:    duration,
		inFlight:    inFlight,
	}
}

// Start marks a run as in flight and returns the func that ends it.
func (m *Metrics) Start() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ObserveResult records one finished run.
func (m *Metrics) ObserveResult(res *parsing.Result) {
	if m == nil || res == nil {
		return
	}
	review := "false"
	if res.NeedsReview() {
		review = "true"
	}
	m.runs.WithLabelValues(string(res.Tier()), review).Inc()
	m.duration.WithLabelValues(string(res.Tier())).Observe(res.Elapsed().Seconds())
	for _, a := range res.Attempts() {
		m.attempts.WithLabelValues(string(a.Strategy), string(a.Outcome)).Inc()
	}
	for _, c := range res.Corrections() {
		m.corrections.WithLabelValues(string(c.Kind)).Inc()
	}
}
