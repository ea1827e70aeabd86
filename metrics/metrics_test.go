package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kakungulu256/rcms/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.PaymentRecorded("cash")
	m.PaymentRecorded("cash")
	m.PaymentRecorded("bank")
	m.PaymentReversed(true)
	m.PaymentReversed(false)
	m.Rejected("already_reversed")
	m.Skipped(2, 1)
	m.AuditCompleted(7, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsRecorded.WithLabelValues("cash")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsReversed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnabsorbedReversals))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("already_reversed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorruptAllocations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateReversals))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.TenantsAudited))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.PaymentRecorded("cash")
		m.PaymentReversed(true)
		m.PaymentEdited()
		m.Rejected("x")
		m.ObserveAllocation("record", time.Now())
		m.Skipped(1, 1)
		m.AuditCompleted(1, time.Now())
	})
}

func TestHandler_ExposesNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Skipped(1, 0)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rcms_corrupt_allocations_total 1"))
}
