// Package monitoring exposes Prometheus metrics for the service.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. Collectors are registered with the
// default registry via promauto, so NewMetrics must be called once.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Mail items
	MailItemsReceived prometheus.Counter
	MailItemsExpired  prometheus.Gauge
	ScansDownloaded   prometheus.Counter

	// Forwarding
	ForwardingRequested prometheus.Counter
	ForwardingCancelled prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	GuardDecisions      *prometheus.CounterVec
	KycRejections       prometheus.Counter
	ExpiryRejections    *prometheus.CounterVec
	ForwardingLatency   prometheus.Histogram

	// Webhooks
	WebhookDeliveries *prometheus.CounterVec

	// System
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vah_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailItemsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_mail_items_received_total",
				Help: "Total number of mail items logged at intake",
			},
		),

		MailItemsExpired: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vah_mail_items_expired",
				Help: "Number of mail items past their storage expiry",
			},
		),

		ScansDownloaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_scans_downloaded_total",
				Help: "Total number of scan downloads",
			},
		),

		ForwardingRequested: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_forwarding_requested_total",
				Help: "Total number of accepted forwarding requests",
			},
		),

		ForwardingCancelled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_forwarding_cancelled_total",
				Help: "Total number of cancelled forwarding requests",
			},
		),

		StatusTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_status_transitions_total",
				Help: "Mail item status transitions applied",
			},
			[]string{"from", "to"},
		),

		TransitionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_status_transitions_rejected_total",
				Help: "Mail item status transitions rejected",
			},
			[]string{"from", "to"},
		),

		GuardDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_guard_decisions_total",
				Help: "Forwarding guard decisions",
			},
			[]string{"decision"},
		),

		KycRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_kyc_rejections_total",
				Help: "Forwarding requests blocked by the KYC gate",
			},
		),

		ExpiryRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_expiry_rejections_total",
				Help: "Forwarding requests blocked by the storage expiry gate",
			},
			[]string{"outcome"},
		),

		ForwardingLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vah_forwarding_request_duration_seconds",
				Help:    "Forwarding request pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_webhook_deliveries_total",
				Help: "Webhook delivery attempts",
			},
			[]string{"outcome"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vah_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vah_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransition records an applied status transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionRejected records a rejected status transition.
func (m *Metrics) RecordTransitionRejected(from, to string) {
	m.TransitionsRejected.WithLabelValues(from, to).Inc()
}

// RecordGuardDecision records a guard outcome ("allow",
// "duplicate_request" or "rate_limited").
func (m *Metrics) RecordGuardDecision(decision string) {
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

// RecordExpiryRejection records an expiry gate block ("expired" or
// "admin_override_required").
func (m *Metrics) RecordExpiryRejection(outcome string) {
	m.ExpiryRejections.WithLabelValues(outcome).Inc()
}

// RecordWebhookDelivery records one delivery attempt outcome.
func (m *Metrics) RecordWebhookDelivery(outcome string) {
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

// RecordError records a component error.
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler returns the Prometheus scrape handler.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
