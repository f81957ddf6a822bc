// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the restflow client, exposed as pipeline middleware and SSE
// callback decorators.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/restflow/restflow-go/pkg/apierr"
	"github.com/restflow/restflow-go/pkg/pipeline"
	"github.com/restflow/restflow-go/pkg/sse"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace prefixes all metric names. Defaults to "restflow".
	Namespace string

	// ConstLabels are attached to every metric.
	ConstLabels prometheus.Labels

	// HistogramBuckets for request durations, in milliseconds.
	HistogramBuckets []float64
}

// Metrics owns a private registry with the client's collectors. Each
// Metrics value is independent; nothing is registered globally.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorTotal      *prometheus.CounterVec

	sseConnections  prometheus.Gauge
	sseEventsTotal  prometheus.Counter
	sseReconnects   prometheus.Counter
	sseMaxReconnect prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "restflow"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Name:        "request_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Name:        "request_duration_milliseconds",
				Help:        "Duration of HTTP requests in milliseconds",
				Buckets:     config.HistogramBuckets,
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Name:        "error_total",
				Help:        "Total number of failed requests by error kind",
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "kind"},
		),
		sseConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "sse_open_connections",
			Help:        "Number of currently open SSE streams",
			ConstLabels: config.ConstLabels,
		}),
		sseEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sse_events_total",
			Help:        "Total number of dispatched SSE events",
			ConstLabels: config.ConstLabels,
		}),
		sseReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sse_reconnects_total",
			Help:        "Total number of SSE reconnection attempts",
			ConstLabels: config.ConstLabels,
		}),
		sseMaxReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sse_reconnect_exhausted_total",
			Help:        "Total number of subscriptions that exhausted their reconnect budget",
			ConstLabels: config.ConstLabels,
		}),
	}

	collectors := []prometheus.Collector{
		m.requestTotal, m.requestDuration, m.errorTotal,
		m.sseConnections, m.sseEventsTotal, m.sseReconnects, m.sseMaxReconnect,
	}
	for _, col := range collectors {
		if err := m.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records one observation per dispatched call.
func (m *Metrics) Middleware() pipeline.Middleware {
	return func(rc *pipeline.RequestContext, next pipeline.Next) (*pipeline.ResponseContext, error) {
		start := time.Now()
		resp, err := next()
		elapsed := float64(time.Since(start)) / float64(time.Millisecond)

		status := "0"
		if resp != nil && resp.Status != 0 {
			status = strconv.Itoa(resp.Status)
		}
		m.requestTotal.WithLabelValues(rc.Method, status).Inc()
		m.requestDuration.WithLabelValues(rc.Method, status).Observe(elapsed)

		switch {
		case err != nil:
			m.errorTotal.WithLabelValues(rc.Method, string(apierr.KindUnknown)).Inc()
		case resp != nil && resp.Err != nil:
			m.errorTotal.WithLabelValues(rc.Method, string(resp.Err.Kind)).Inc()
		}
		return resp, err
	}
}

// InstrumentSSE decorates one subscription's callbacks with connection and
// event metrics, delegating to the wrapped callbacks afterwards. Use a
// fresh decoration per subscription: the open/closed accounting lives in
// the returned callbacks. Callbacks are serialized by the subscription, so
// the captured state needs no locking.
func (m *Metrics) InstrumentSSE(cb sse.Callbacks) sse.Callbacks {
	inner := cb
	open := false
	out := sse.Callbacks{}

	out.OnOpen = func() {
		if !open {
			open = true
			m.sseConnections.Inc()
		}
		if inner.OnOpen != nil {
			inner.OnOpen()
		}
	}
	out.OnMessage = func(ev sse.Event) {
		m.sseEventsTotal.Inc()
		if inner.OnMessage != nil {
			inner.OnMessage(ev)
		}
	}
	out.OnError = func(e *apierr.Error) {
		if inner.OnError != nil {
			inner.OnError(e)
		}
	}
	out.OnClose = func() {
		if open {
			open = false
			m.sseConnections.Dec()
		}
		if inner.OnClose != nil {
			inner.OnClose()
		}
	}
	out.OnReconnect = func(attempt, max int) {
		if open {
			open = false
			m.sseConnections.Dec()
		}
		m.sseReconnects.Inc()
		if inner.OnReconnect != nil {
			inner.OnReconnect(attempt, max)
		}
	}
	out.OnMaxReconnects = func() {
		m.sseMaxReconnect.Inc()
		if inner.OnMaxReconnects != nil {
			inner.OnMaxReconnects()
		}
	}
	return out
}
