package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics bundles the organism's Prometheus collectors on a dedicated
// registry, exposed by the introspection server's /metrics endpoint.
type metrics struct {
	registry *prometheus.Registry

	dispatches      *prometheus.CounterVec
	huhs            *prometheus.CounterVec
	systemErrors    *prometheus.CounterVec
	activeThreads   prometheus.GaugeFunc
	handlerDuration *prometheus.HistogramVec
}

func newMetrics(organismName string, threadCount func() int) *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}
	labels := prometheus.Labels{"organism": organismName}

	m.dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "xmlpipeline_dispatches_total",
		Help:        "Handler dispatches by listener and outcome.",
		ConstLabels: labels,
	}, []string{"listener", "outcome"})

	m.huhs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "xmlpipeline_huh_total",
		Help:        "Diagnostic huh emissions by internal reason.",
		ConstLabels: labels,
	}, []string{"reason"})

	m.systemErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "xmlpipeline_system_errors_total",
		Help:        "SystemError emissions by code.",
		ConstLabels: labels,
	}, []string{"code"})

	m.activeThreads = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "xmlpipeline_active_threads",
		Help:        "Live entries in the thread registry.",
		ConstLabels: labels,
	}, func() float64 { return float64(threadCount()) })

	m.handlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "xmlpipeline_handler_duration_seconds",
		Help:        "Wall time of handler invocations.",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"listener"})

	m.registry.MustRegister(m.dispatches, m.huhs, m.systemErrors, m.activeThreads, m.handlerDuration)
	return m
}

func (m *metrics) dispatch(listener, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(listener, outcome).Inc()
}

func (m *metrics) huh(reason string) {
	if m == nil {
		return
	}
	m.huhs.WithLabelValues(reason).Inc()
}

func (m *metrics) systemError(code string) {
	if m == nil {
		return
	}
	m.systemErrors.WithLabelValues(code).Inc()
}

func (m *metrics) observeHandler(listener string, seconds float64) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(listener).Observe(seconds)
}
