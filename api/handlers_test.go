/*
handlers_test.go - HTTP tests for the rent ledger API

Tests for:
- Recording, previewing and listing payments
- Statement output
- Edit and reversal rules surfaced as 409 codes
- 400/404 error mapping
- /metrics exposition
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
	"github.com/Kakungulu256/rcms/ledger/store"
	"github.com/Kakungulu256/rcms/metrics"
	"github.com/Kakungulu256/rcms/rental"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router  http.Handler
	handler *Handler
	mem     *store.Memory
}

// newTestAPI serves a memory-backed service whose clock reads 2024-03-20.
func newTestAPI(t *testing.T, lookahead int) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	reg := prometheus.NewRegistry()

	var seq int64
	svc := rental.NewService(mem,
		rental.WithMetrics(metrics.New(reg)),
		rental.WithClock(func() time.Time { return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC) }),
		rental.WithIDGenerator(func() string { return fmt.Sprintf("p-%03d", atomic.AddInt64(&seq, 1)) }),
		rental.WithLookahead(lookahead),
	)
	h := NewHandler(svc, nil)
	router := NewRouter(h, RouterConfig{Metrics: metrics.Handler(reg)})
	return &testAPI{router: router, handler: h, mem: mem}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, strings.NewReader(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seed creates house-1 at rent 1000 and tenant-1 moving in 2024-01-01.
func (a *testAPI) seed(t *testing.T) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/houses", map[string]any{"id": "house-1", "name": "Plot 12", "monthly_rent": 1000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/api/tenants", map[string]any{
		"id": "tenant-1", "house_id": "house-1", "name": "A. Tenant", "move_in_date": "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) pay(t *testing.T, amount any, on string) PaymentResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/tenants/tenant-1/payments", map[string]any{
		"amount": amount, "method": "cash", "payment_date": on,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[PaymentResponse](t, rec)
}

// =============================================================================
// RECORD / PREVIEW / STATEMENT
// =============================================================================

func TestRecordPayment_FillsOldestMonthFirst(t *testing.T) {
	// GIVEN: A tenant owing January through March
	a := newTestAPI(t, 12)
	a.seed(t)

	// WHEN: 2500 is paid on 2024-03-15
	resp := a.pay(t, 2500, "2024-03-15")

	// THEN: January and February are covered and March gets the rest
	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-02": "1000.00", "2024-03": "500.00"}, resp.Payment.Allocation.Strings())
	assert.Equal(t, "0.00", resp.Payment.Unapplied.String())
	assert.Equal(t, "posted", resp.Payment.State)
	assert.Equal(t, "2024-03-15", resp.Payment.PaymentDate)
	assert.Empty(t, resp.Warning)
}

func TestRecordPayment_AcceptsStringAmount(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)

	resp := a.pay(t, "1000.50", "2024-01-05")

	assert.Equal(t, "1000.50", resp.Payment.Amount.String())
	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-02": "0.50"}, resp.Payment.Allocation.Strings())
}

func TestRecordPayment_WarnsAboutUnappliedAmount(t *testing.T) {
	// GIVEN: No prepayment window
	a := newTestAPI(t, 0)
	a.seed(t)

	// WHEN: More than January through March is paid
	resp := a.pay(t, 5000, "2024-03-15")

	// THEN: The excess is kept unapplied and reported
	assert.Equal(t, "2000.00", resp.Payment.Unapplied.String())
	assert.Contains(t, resp.Warning, "2024-03")
}

func TestPreviewPayment_DoesNotWrite(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)

	rec := a.do(t, http.MethodPost, "/api/tenants/tenant-1/payments/preview", map[string]any{"amount": 1500, "payment_date": "2024-03-15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[PreviewResponse](t, rec)

	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-02": "500.00"}, preview.Allocation.Strings())
	assert.Equal(t, "0.00", preview.Remaining.String())
	require.NotEmpty(t, preview.Months)
	assert.Equal(t, "2024-01", preview.Months[0].Month)
	assert.Equal(t, "1000.00", preview.Months[0].Rent.String())

	rec = a.do(t, http.MethodGet, "/api/tenants/tenant-1/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PaymentDTO](t, rec))
}

func TestGetStatement(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	a.pay(t, 2500, "2024-03-15")

	rec := a.do(t, http.MethodGet, "/api/tenants/tenant-1/statement?through=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[StatementDTO](t, rec)

	require.Len(t, st.Lines, 3)
	assert.Equal(t, "paid", st.Lines[0].Status)
	assert.Equal(t, "partial", st.Lines[2].Status)
	assert.Equal(t, "500.00", st.Lines[2].Due.String())
	assert.Equal(t, "500.00", st.TotalDue.String())
}

func TestRentHistory_RateChangeAppliesFromEffectiveMonth(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)

	rec := a.do(t, http.MethodPost, "/api/houses/house-1/rent-history", map[string]any{
		"effective_date": "2024-03-01", "amount": 1200,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	house := decode[HouseDTO](t, rec)
	require.Len(t, house.RentHistory, 1)
	assert.Equal(t, "house", house.RentHistory[0].Source)

	a.pay(t, 1000, "2024-01-05")
	a.pay(t, 1000, "2024-02-05")
	resp := a.pay(t, 1200, "2024-03-05")

	assert.Equal(t, map[string]string{"2024-03": "1200.00"}, resp.Payment.Allocation.Strings())
}

func TestRentHistory_MidMonthChangeStartsNextMonth(t *testing.T) {
	// GIVEN: Rent rises to 1200 effective 2024-03-15
	a := newTestAPI(t, 12)
	a.seed(t)
	rec := a.do(t, http.MethodPost, "/api/houses/house-1/rent-history", map[string]any{
		"effective_date": "2024-03-15", "amount": 1200,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: January to March are paid at the old rate
	a.pay(t, 1000, "2024-01-05")
	a.pay(t, 1000, "2024-02-05")
	resp := a.pay(t, 1000, "2024-03-20")

	// THEN: March is still billed at 1000 and fully covered
	assert.Equal(t, map[string]string{"2024-03": "1000.00"}, resp.Payment.Allocation.Strings())
	assert.Equal(t, "0.00", resp.Payment.Unapplied.String())
}

func TestTenantRentHistory_RejectsHouseSource(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)

	rec := a.do(t, http.MethodPost, "/api/tenants/tenant-1/rent-history", map[string]any{
		"effective_date": "2024-02-01", "amount": 900, "source": "house",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// REVERSE / EDIT
// =============================================================================

func TestReversePayment_UnwindsNewestMonth(t *testing.T) {
	// GIVEN: January and February paid by separate payments
	a := newTestAPI(t, 12)
	a.seed(t)
	jan := a.pay(t, 1000, "2024-01-05")
	a.pay(t, 1000, "2024-02-05")

	// WHEN: January's payment is reversed
	rec := a.do(t, http.MethodPost, "/api/payments/"+jan.Payment.ID+"/reverse", map[string]any{
		"reversal_date": "2024-02-20", "reason": "cheque bounced",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rev := decode[PaymentResponse](t, rec)

	// THEN: February is unwound, not January
	assert.Equal(t, map[string]string{"2024-02": "-1000.00"}, rev.Payment.Allocation.Strings())
	assert.Equal(t, "-1000.00", rev.Payment.Amount.String())
	assert.Equal(t, "reversal", rev.Payment.State)
	assert.Equal(t, jan.Payment.ID, rev.Payment.ReversedPaymentID)

	rec = a.do(t, http.MethodGet, "/api/payments/"+jan.Payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reversed", decode[PaymentDTO](t, rec).State)
}

func TestReversePayment_EmptyBodyDefaultsToToday(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	p := a.pay(t, 1000, "2024-01-05")

	rec := a.do(t, http.MethodPost, "/api/payments/"+p.Payment.ID+"/reverse", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-03-20", decode[PaymentResponse](t, rec).Payment.PaymentDate)
}

func TestReversePayment_Conflicts(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	p := a.pay(t, 1000, "2024-01-05")

	rec := a.do(t, http.MethodPost, "/api/payments/"+p.Payment.ID+"/reverse", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rev := decode[PaymentResponse](t, rec)

	tests := []struct {
		name string
		id   string
		code string
	}{
		{"second reversal", p.Payment.ID, ledger.CodeAlreadyReversed},
		{"reversal of a reversal", rev.Payment.ID, ledger.CodeReversalOfReversal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/payments/"+tt.id+"/reverse", nil)
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}

	rec = a.do(t, http.MethodGet, "/api/tenants/tenant-1/payments", nil)
	assert.Len(t, decode[[]PaymentDTO](t, rec), 2)
}

func TestEditPayment_LatestInCurrentMonth(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	p := a.pay(t, 2500, "2024-03-15")

	rec := a.do(t, http.MethodPut, "/api/payments/"+p.Payment.ID, map[string]any{"amount": 2000, "notes": "typo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[PaymentResponse](t, rec)

	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-02": "1000.00"}, edited.Payment.Allocation.Strings())
	assert.Equal(t, "typo", edited.Payment.Notes)
	assert.Equal(t, "2024-03-15", edited.Payment.PaymentDate)
}

func TestEditPayment_OlderPaymentRejected(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	older := a.pay(t, 1000, "2024-03-01")
	a.pay(t, 1000, "2024-03-10")

	rec := a.do(t, http.MethodPut, "/api/payments/"+older.Payment.ID, map[string]any{"amount": 500})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ledger.CodeEditNotAllowed, decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrors(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/tenants/tenant-1/payments", "{", http.StatusBadRequest, "invalid_json"},
		{"negative amount", http.MethodPost, "/api/tenants/tenant-1/payments",
			map[string]any{"amount": -5, "method": "cash", "payment_date": "2024-03-01"}, http.StatusBadRequest, "validation_error"},
		{"unknown method", http.MethodPost, "/api/tenants/tenant-1/payments",
			map[string]any{"amount": 5, "method": "card", "payment_date": "2024-03-01"}, http.StatusBadRequest, "validation_error"},
		{"missing date", http.MethodPost, "/api/tenants/tenant-1/payments",
			map[string]any{"amount": 5, "method": "cash"}, http.StatusBadRequest, "validation_error"},
		{"bad date", http.MethodPost, "/api/tenants/tenant-1/payments",
			map[string]any{"amount": 5, "method": "cash", "payment_date": "March"}, http.StatusBadRequest, "validation_error"},
		{"unknown tenant", http.MethodPost, "/api/tenants/nobody/payments",
			map[string]any{"amount": 5, "method": "cash", "payment_date": "2024-03-01"}, http.StatusNotFound, "not_found"},
		{"unknown payment", http.MethodGet, "/api/payments/nope", nil, http.StatusNotFound, "not_found"},
		{"reverse unknown payment", http.MethodPost, "/api/payments/nope/reverse", nil, http.StatusNotFound, "not_found"},
		{"unknown house", http.MethodGet, "/api/houses/nope", nil, http.StatusNotFound, "not_found"},
		{"tenant in unknown house", http.MethodPost, "/api/tenants",
			map[string]any{"name": "B", "house_id": "nope", "move_in_date": "2024-01-01"}, http.StatusNotFound, "not_found"},
		{"move-out before move-in", http.MethodPost, "/api/tenants",
			map[string]any{"name": "B", "house_id": "house-1", "move_in_date": "2024-05-01", "move_out_date": "2024-04-01"}, http.StatusBadRequest, "validation_error"},
		{"existing house id", http.MethodPost, "/api/houses",
			map[string]any{"id": "house-1", "name": "Other", "monthly_rent": 500}, http.StatusConflict, "duplicate_house"},
		{"existing tenant id", http.MethodPost, "/api/tenants",
			map[string]any{"id": "tenant-1", "name": "B", "house_id": "house-1", "move_in_date": "2024-01-01"}, http.StatusConflict, "duplicate_tenant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	a.pay(t, 1000, "2024-01-05")
	a.do(t, http.MethodPost, "/api/tenants/tenant-1/payments", map[string]any{"amount": -1, "method": "cash", "payment_date": "2024-01-05"})

	rec := a.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `rcms_payments_recorded_total{method="cash"} 1`)
	assert.Contains(t, body, `rcms_rejections_total{code="validation_error"} 1`)
}

func TestListTenants(t *testing.T) {
	a := newTestAPI(t, 12)
	a.seed(t)
	require.NoError(t, a.mem.SaveTenant(context.Background(), ledger.Tenant{
		ID: "tenant-2", HouseID: "house-1", Name: "Second", MoveInDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}))

	rec := a.do(t, http.MethodGet, "/api/tenants", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tenants := decode[[]TenantDTO](t, rec)
	require.Len(t, tenants, 2)
	ids := []string{tenants[0].ID, tenants[1].ID}
	assert.ElementsMatch(t, []string{"tenant-1", "tenant-2"}, ids)
}
