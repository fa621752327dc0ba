package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "api"

// Metrics holds the collectors of one Server. Each Server owns a registry so
// several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	openOrders   prometheus.Gauge
	orderEvents  *prometheus.CounterVec
	priceLookups *prometheus.CounterVec
	wsClients    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"handler", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "orders_open",
			Help:      "Orders currently held in the ledger.",
		}),
		orderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "order_events_total",
			Help:      "Ledger changes by event type.",
		}, []string{"event"}),
		priceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "price_lookups_total",
			Help:      "Price source lookups by source and result.",
		}, []string{"source", "result"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.openOrders,
		m.orderEvents,
		m.priceLookups,
		m.wsClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// instrument wraps h with request counting and latency observation under
// the given handler label.
func (m *Metrics) instrument(name string, h http.HandlerFunc) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerDuration(
		m.duration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h),
	)
}

func (m *Metrics) orderEvent(event string, open int) {
	m.orderEvents.WithLabelValues(event).Inc()
	m.openOrders.Set(float64(open))
}

func (m *Metrics) priceLookup(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.priceLookups.WithLabelValues(source, result).Inc()
}
