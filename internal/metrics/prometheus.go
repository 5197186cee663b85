package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// OTP
	OTPEvents *prometheus.CounterVec

	// SMS
	SMSSends *prometheus.CounterVec

	// Offices
	OfficeConnected *prometheus.GaugeVec

	// Notifications
	NotificationRuns    *prometheus.CounterVec
	NotificationRecords *prometheus.CounterVec

	// Reports
	HeadQueryFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. The record
// methods are no-ops on a nil *Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pwdbudget_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		OTPEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_otp_events_total",
				Help: "OTP lifecycle events by outcome",
			},
			[]string{"event", "outcome"},
		),

		SMSSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_sms_sends_total",
				Help: "SMS gateway calls by purpose and outcome",
			},
			[]string{"purpose", "outcome"},
		),

		OfficeConnected: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pwdbudget_office_connected",
				Help: "1 when the office database connected at startup, 0 otherwise",
			},
			[]string{"office"},
		),

		NotificationRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_notification_runs_total",
				Help: "Notification window runs by office, window and outcome",
			},
			[]string{"office", "window", "outcome"},
		),

		NotificationRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_notification_records_total",
				Help: "Work records dispatched by notification runs",
			},
			[]string{"office", "window"},
		),

		HeadQueryFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pwdbudget_head_query_failures_total",
				Help: "Per-head report queries that failed and contributed zero",
			},
			[]string{"office", "head"},
		),
	}
}

// RecordRequest records one HTTP request
func (m *Metrics) RecordRequest(route, method, status string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, status).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration)
}

// RecordOTP records an OTP event such as issue or verify.
func (m *Metrics) RecordOTP(event, outcome string) {
	if m == nil {
		return
	}
	m.OTPEvents.WithLabelValues(event, outcome).Inc()
}

// RecordSMS records one gateway call.
func (m *Metrics) RecordSMS(purpose string, ok bool) {
	if m == nil {
		return
	}
	m.SMSSends.WithLabelValues(purpose, outcome(ok)).Inc()
}

// SetOfficeConnected records the startup connect result of an office.
func (m *Metrics) SetOfficeConnected(office string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.OfficeConnected.WithLabelValues(office).Set(v)
}

// RecordNotificationRun records one window run and the records it handled.
func (m *Metrics) RecordNotificationRun(office, window string, records int, ok bool) {
	if m == nil {
		return
	}
	m.NotificationRuns.WithLabelValues(office, window, outcome(ok)).Inc()
	m.NotificationRecords.WithLabelValues(office, window).Add(float64(records))
}

// RecordHeadFailure records a head query that failed during aggregation.
func (m *Metrics) RecordHeadFailure(office, head string) {
	if m == nil {
		return
	}
	m.HeadQueryFailures.WithLabelValues(office, head).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
