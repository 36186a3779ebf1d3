package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "explorer_feed"

// Drop reasons for FramesDropped.
const (
	DropNoSubscribers = "no_subscribers"
	DropUndecodable   = "undecodable"
)

// Metrics holds the collectors shared by all network stacks. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	connected       *prometheus.GaugeVec
	feedFlushes     *prometheus.CounterVec
	itemsFlushed    *prometheus.CounterVec
	latestMilestone *prometheus.GaugeVec
	persistErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from the telemetry endpoint.",
		}, []string{"network", "tag"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before dispatch.",
		}, []string{"network", "reason"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Subscriber handlers that returned an error or panicked.",
		}, []string{"network", "tag"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Keep-alive triggered reconnects.",
		}, []string{"network"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 if the bus client holds a live connection.",
		}, []string{"network"}),
		feedFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_flushes_total",
			Help:      "Snapshot broadcasts.",
		}, []string{"network", "feed"}),
		itemsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_items_flushed_total",
			Help:      "Items delivered in snapshot broadcasts.",
		}, []string{"network", "feed"}),
		latestMilestone: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_milestone_index",
			Help:      "Index of the most recent accepted milestone.",
		}, []string{"network"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed milestone store writes.",
		}, []string{"network"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesReceived,
		m.framesDropped,
		m.handlerErrors,
		m.reconnects,
		m.connected,
		m.feedFlushes,
		m.itemsFlushed,
		m.latestMilestone,
		m.persistErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived(network, tag string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(network, tag).Inc()
}

func (m *Metrics) FrameDropped(network, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(network, reason).Inc()
}

func (m *Metrics) HandlerError(network, tag string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(network, tag).Inc()
}

func (m *Metrics) Reconnect(network string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(network).Inc()
}

func (m *Metrics) SetConnected(network string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(network).Set(v)
}

func (m *Metrics) Flushed(network, feed string, items int) {
	if m == nil {
		return
	}
	m.feedFlushes.WithLabelValues(network, feed).Inc()
	m.itemsFlushed.WithLabelValues(network, feed).Add(float64(items))
}

func (m *Metrics) SetLatestMilestone(network string, index uint32) {
	if m == nil {
		return
	}
	m.latestMilestone.WithLabelValues(network).Set(float64(index))
}

func (m *Metrics) PersistError(network string) {
	if m == nil {
		return
	}
	m.persistErrors.WithLabelValues(network).Inc()
}
