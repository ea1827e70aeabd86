/*
handlers.go - HTTP API handlers for the rent ledger

PURPOSE:
  Exposes the rent ledger via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every decision to rental.Service.

ENDPOINTS:
  Houses:
    POST   /api/houses                          Create house
    GET    /api/houses/{id}                     Get house
    POST   /api/houses/{id}/rent-history        Append house rent entry

  Tenants:
    GET    /api/tenants                         List tenants
    POST   /api/tenants                         Create tenant
    GET    /api/tenants/{id}                    Get tenant
    POST   /api/tenants/{id}/rent-history       Append override/manual entry
    GET    /api/tenants/{id}/payments           Payment history
    GET    /api/tenants/{id}/statement          Rent/paid/due per month
    POST   /api/tenants/{id}/payments/preview   Allocation preview
    POST   /api/tenants/{id}/payments           Record payment

  Payments:
    GET    /api/payments/{id}                   Get payment
    PUT    /api/payments/{id}                   Edit latest payment
    POST   /api/payments/{id}/reverse           Reverse payment

ERROR HANDLING:
  Errors are returned as {error, code, details} with:
  - 400: validation_error, invalid_json
  - 404: not_found
  - 409: already_reversed, reversal_of_reversal, edit_not_allowed,
         reversal_not_absorbable, duplicate_payment, duplicate_house,
         duplicate_tenant
  - 500: internal_error

SECURITY NOTE:
  No authentication or authorization. RecordedBy is taken from the request.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Kakungulu256/rcms/factory"
	"github.com/Kakungulu256/rcms/ledger"
	"github.com/Kakungulu256/rcms/rental"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *rental.Service
	Logger  *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(svc *rental.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger.With(zap.String("component", "api"))}
}

// =============================================================================
// HOUSE HANDLERS
// =============================================================================

// CreateHouse creates a house.
// POST /api/houses
func (h *Handler) CreateHouse(w http.ResponseWriter, r *http.Request) {
	var req CreateHouseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entries, err := parseEntries(req.RentHistory, ledger.SourceHouse)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	house, err := h.Service.CreateHouse(r.Context(), ledger.House{
		ID:          ledger.HouseID(strings.TrimSpace(req.ID)),
		Name:        req.Name,
		MonthlyRent: req.MonthlyRent,
		RentHistory: entries,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHouseDTO(*house))
}

// GetHouse returns a house.
// GET /api/houses/{id}
func (h *Handler) GetHouse(w http.ResponseWriter, r *http.Request) {
	house, err := h.Service.GetHouse(r.Context(), ledger.HouseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHouseDTO(*house))
}

// AppendHouseRentEntry records a house-wide rate change.
// POST /api/houses/{id}/rent-history
func (h *Handler) AppendHouseRentEntry(w http.ResponseWriter, r *http.Request) {
	var req factory.RentEntryJSON
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := toEntry(req, ledger.SourceHouse)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	house, err := h.Service.AppendHouseRentEntry(r.Context(), ledger.HouseID(chi.URLParam(r, "id")), entry)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHouseDTO(*house))
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns all tenants.
// GET /api/tenants
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Service.ListTenants(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]TenantDTO, 0, len(tenants))
	for _, t := range tenants {
		dtos = append(dtos, toTenantDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant creates a tenant in an existing house.
// POST /api/tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t := ledger.Tenant{
		ID:           ledger.TenantID(strings.TrimSpace(req.ID)),
		HouseID:      ledger.HouseID(strings.TrimSpace(req.HouseID)),
		Name:         req.Name,
		RentOverride: req.RentOverride,
	}
	if req.MoveInDate != "" {
		moveIn, err := factory.ParseDate(req.MoveInDate)
		if err != nil {
			h.writeLedgerError(w, &ledger.ValidationError{Field: "move_in_date", Message: err.Error()})
			return
		}
		t.MoveInDate = moveIn
	}
	if req.MoveOutDate != "" {
		moveOut, err := factory.ParseDate(req.MoveOutDate)
		if err != nil {
			h.writeLedgerError(w, &ledger.ValidationError{Field: "move_out_date", Message: err.Error()})
			return
		}
		t.MoveOutDate = &moveOut
	}
	entries, err := parseEntries(req.RentHistory, ledger.SourceOverride)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	t.RentHistory = entries

	tenant, err := h.Service.CreateTenant(r.Context(), t)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(*tenant))
}

// GetTenant returns a tenant.
// GET /api/tenants/{id}
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.Service.GetTenant(r.Context(), ledger.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(*tenant))
}

// AppendTenantRentEntry records an override or manual rate for one tenant.
// POST /api/tenants/{id}/rent-history
func (h *Handler) AppendTenantRentEntry(w http.ResponseWriter, r *http.Request) {
	var req factory.RentEntryJSON
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := toEntry(req, ledger.SourceOverride)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	tenant, err := h.Service.AppendTenantRentEntry(r.Context(), ledger.TenantID(chi.URLParam(r, "id")), entry)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(*tenant))
}

// ListPayments returns the tenant's payments and reversals in ledger order.
// GET /api/tenants/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.ListPayments(r.Context(), ledger.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p, ledger.StateOf(p, payments)))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStatement returns rent, paid and due per month.
// GET /api/tenants/{id}/statement?through=YYYY-MM-DD
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	var through time.Time
	if raw := r.URL.Query().Get("through"); raw != "" {
		parsed, err := factory.ParseDate(raw)
		if err != nil {
			h.writeLedgerError(w, &ledger.ValidationError{Field: "through", Message: err.Error()})
			return
		}
		through = parsed
	}

	st, err := h.Service.Statement(r.Context(), ledger.TenantID(chi.URLParam(r, "id")), through)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PreviewPayment shows the allocation a payment would receive. Nothing is
// written.
// POST /api/tenants/{id}/payments/preview
func (h *Handler) PreviewPayment(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	paidOn, ok := h.optionalDate(w, "payment_date", req.PaymentDate)
	if !ok {
		return
	}

	plan, err := h.Service.Preview(r.Context(), ledger.TenantID(chi.URLParam(r, "id")), req.Amount, paidOn)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(plan))
}

// RecordPayment allocates and stores a payment.
// POST /api/tenants/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentDate == "" {
		h.writeLedgerError(w, &ledger.ValidationError{Field: "payment_date", Message: "required"})
		return
	}
	paidOn, ok := h.optionalDate(w, "payment_date", req.PaymentDate)
	if !ok {
		return
	}

	res, err := h.Service.RecordPayment(r.Context(), rental.RecordPaymentInput{
		TenantID:    ledger.TenantID(chi.URLParam(r, "id")),
		Amount:      req.Amount,
		Method:      ledger.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		PaymentDate: paidOn,
		Reference:   req.Reference,
		Notes:       req.Notes,
		RecordedBy:  req.RecordedBy,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := PaymentResponse{Payment: toPaymentDTO(res.Payment, ledger.StatePosted)}
	if res.Payment.Unapplied.IsPositive() {
		resp.Warning = fmt.Sprintf("%s exceeds the rent due through %s and was left unapplied",
			res.Payment.Unapplied, lastMonth(res.Plan.Months))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetPayment returns one payment with its current state.
// GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.Service.GetPayment(ctx, ledger.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	payments, err := h.Service.ListPayments(ctx, p.TenantID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, ledger.StateOf(*p, payments)))
}

// EditPayment changes amount, method, reference or notes of the tenant's
// latest payment during the month it was made.
// PUT /api/payments/{id}
func (h *Handler) EditPayment(w http.ResponseWriter, r *http.Request) {
	var req EditPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := rental.EditPaymentInput{
		PaymentID: ledger.PaymentID(chi.URLParam(r, "id")),
		Amount:    req.Amount,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if req.Method != nil {
		m := ledger.PaymentMethod(strings.ToLower(strings.TrimSpace(*req.Method)))
		in.Method = &m
	}

	res, err := h.Service.EditPayment(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := PaymentResponse{Payment: toPaymentDTO(res.Payment, ledger.StatePosted)}
	if res.Payment.Unapplied.IsPositive() {
		resp.Warning = fmt.Sprintf("%s exceeds the rent due through %s and was left unapplied",
			res.Payment.Unapplied, lastMonth(res.Plan.Months))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReversePayment appends a reversal of the payment.
// POST /api/payments/{id}/reverse
func (h *Handler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	var req ReversePaymentRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	on, ok := h.optionalDate(w, "reversal_date", req.ReversalDate)
	if !ok {
		return
	}

	res, err := h.Service.ReversePayment(r.Context(), rental.ReversePaymentInput{
		PaymentID:    ledger.PaymentID(chi.URLParam(r, "id")),
		ReversalDate: on,
		Reason:       req.Reason,
		RecordedBy:   req.RecordedBy,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := PaymentResponse{Payment: toPaymentDTO(res.Payment, ledger.StateReversal)}
	if res.Payment.Unapplied.IsPositive() {
		resp.Warning = fmt.Sprintf("reversal not fully absorbed: %s could not be matched to a paid month",
			res.Payment.Unapplied)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// HEALTH
// =============================================================================

// pinger is implemented by stores backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Service.Store().(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Warn("Health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps the ledger error taxonomy onto HTTP responses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var (
		validation *ledger.ValidationError
		conflict   *ledger.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Error(), nil)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", notFoundMessage(err), err)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Code, conflict.Message, err)
	case errors.Is(err, ledger.ErrAlreadyReversed):
		writeError(w, http.StatusConflict, ledger.CodeAlreadyReversed, "This payment was already reversed", err)
	case errors.Is(err, ledger.ErrDuplicatePayment):
		writeError(w, http.StatusConflict, "duplicate_payment", "A payment with this id already exists", err)
	case errors.Is(err, ledger.ErrDuplicateHouse):
		writeError(w, http.StatusConflict, "duplicate_house", "A house with this id already exists", err)
	case errors.Is(err, ledger.ErrDuplicateTenant):
		writeError(w, http.StatusConflict, "duplicate_tenant", "A tenant with this id already exists", err)
	default:
		h.Logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err)
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrTenantNotFound):
		return "Tenant not found"
	case errors.Is(err, ledger.ErrHouseNotFound):
		return "House not found"
	}
	return "Payment not found"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body", err)
		return false
	}
	return true
}

// optionalDate parses raw, treating "" as the zero time.
func (h *Handler) optionalDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	d, err := factory.ParseDate(raw)
	if err != nil {
		h.writeLedgerError(w, &ledger.ValidationError{Field: field, Message: err.Error()})
		return time.Time{}, false
	}
	return d, true
}

func toEntry(j factory.RentEntryJSON, defaultSource ledger.RentSource) (ledger.RentHistoryEntry, error) {
	if strings.TrimSpace(j.Source) == "" {
		j.Source = string(defaultSource)
	}
	return j.ToEntry()
}

func parseEntries(in []factory.RentEntryJSON, defaultSource ledger.RentSource) ([]ledger.RentHistoryEntry, error) {
	var out []ledger.RentHistoryEntry
	for _, j := range in {
		e, err := toEntry(j, defaultSource)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func lastMonth(months []ledger.MonthKey) string {
	if len(months) == 0 {
		return "move-in"
	}
	return string(months[len(months)-1])
}
