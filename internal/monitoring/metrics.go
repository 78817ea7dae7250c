// Package monitoring collects Prometheus metrics for the widget host.
//
// All methods are nil-safe: components hold a *Metrics that may be nil when
// the embedding application does not care about instrumentation.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for a widget host process.
type Metrics struct {
	// Bridge metrics
	DispatchTotal *prometheus.CounterVec // labels: outcome (ok, error, async)
	MessagesBad   prometheus.Counter
	PendingEvals  prometheus.Gauge

	// Relay metrics
	SignalsEmitted *prometheus.CounterVec // labels: channel

	// Widget metrics
	ResizeEvents    prometheus.Counter
	PhysicalResizes prometheus.Counter
	QueuedCalls     prometheus.Counter

	// WSGI metrics
	RequestsTotal *prometheus.CounterVec // labels: method, status
	BodyBytes     prometheus.Counter
}

// New creates a metrics collector registered on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webwidget_bridge_dispatch_total",
				Help: "Total JS API dispatches by outcome",
			},
			[]string{"outcome"},
		),
		MessagesBad: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webwidget_bridge_malformed_messages_total",
				Help: "Web messages dropped as malformed",
			},
		),
		PendingEvals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webwidget_bridge_pending_evals",
				Help: "Callbacks waiting in the correlation table",
			},
		),
		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webwidget_relay_signals_total",
				Help: "Signals emitted per relay channel",
			},
			[]string{"channel"},
		),
		ResizeEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webwidget_resize_events_total",
				Help: "Resize events received from the host widget",
			},
		),
		PhysicalResizes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webwidget_physical_resizes_total",
				Help: "Native resize calls after throttling",
			},
		),
		QueuedCalls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webwidget_queued_calls_total",
				Help: "Public operations queued before readiness",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webwidget_wsgi_requests_total",
				Help: "Intercepted requests served through the WSGI adapter",
			},
			[]string{"method", "status"},
		),
		BodyBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webwidget_wsgi_body_bytes_total",
				Help: "Response body bytes streamed to the browser",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DispatchTotal, m.MessagesBad, m.PendingEvals,
			m.SignalsEmitted,
			m.ResizeEvents, m.PhysicalResizes, m.QueuedCalls,
			m.RequestsTotal, m.BodyBytes,
		)
	}
	return m
}

// RecordDispatch counts one bridge dispatch.
func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordMalformed counts one dropped web message.
func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.MessagesBad.Inc()
}

// SetPendingEvals tracks the correlation table size.
func (m *Metrics) SetPendingEvals(n int) {
	if m == nil {
		return
	}
	m.PendingEvals.Set(float64(n))
}

// RecordSignal counts one relay emission on the named channel.
func (m *Metrics) RecordSignal(channel string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(channel).Inc()
}

// RecordResizeEvent counts one incoming resize event.
func (m *Metrics) RecordResizeEvent() {
	if m == nil {
		return
	}
	m.ResizeEvents.Inc()
}

// RecordPhysicalResize counts one coalesced native resize.
func (m *Metrics) RecordPhysicalResize() {
	if m == nil {
		return
	}
	m.PhysicalResizes.Inc()
}

// RecordQueuedCall counts one pre-readiness queued operation.
func (m *Metrics) RecordQueuedCall() {
	if m == nil {
		return
	}
	m.QueuedCalls.Inc()
}

// RecordRequest counts one adapted request.
func (m *Metrics) RecordRequest(method, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordBodyBytes counts streamed response bytes.
func (m *Metrics) RecordBodyBytes(n int) {
	if m == nil {
		return
	}
	m.BodyBytes.Add(float64(n))
}
