package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSMS("otp", true)
	m.RecordSMS("otp", false)
	m.RecordSMS("otp", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SMSSends.WithLabelValues("otp", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SMSSends.WithLabelValues("otp", "failure")))

	m.SetOfficeConnected("OfficeA", true)
	m.SetOfficeConnected("OfficeB", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OfficeConnected.WithLabelValues("OfficeA")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OfficeConnected.WithLabelValues("OfficeB")))

	m.RecordNotificationRun("OfficeA", "month", 4, true)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NotificationRecords.WithLabelValues("OfficeA", "month")))

	m.RecordRequest("/health", "GET", "200", 0.01)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/health", "GET", "200")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
