/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a house, a
	tenant and a payment history that demonstrate one allocation rule each.

AVAILABLE SCENARIOS:

	fifo-waterfall:    2500 against rent 1000 covers Jan, Feb and half of Mar
	rate-change:       House rate rises to 1200 in March; April's 1200 covers April
	reversal-lifo:     Reversing January's payment unwinds February first
	reverse-reversal:  Reversing a reversal is refused and writes nothing

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create house and tenant through rental.Service
 3. Record payments and reversals through rental.Service

	Every write goes through the same path as the API, so the stored
	allocations are exactly what a live request would produce.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "reversal-lifo"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Payment handlers
  - rental/service.go: Write path
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
	"github.com/Kakungulu256/rcms/rental"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fifo-waterfall",
		Name:        "Oldest Month First",
		Description: "2500 paid on 2024-03-15 against rent 1000 from January: Jan 1000, Feb 1000, Mar 500",
	},
	{
		ID:          "rate-change",
		Name:        "Mid-Tenancy Rate Change",
		Description: "House rent rises to 1200 from 2024-03-01; an April payment of 1200 covers April exactly",
	},
	{
		ID:          "reversal-lifo",
		Name:        "Reversal Unwinds Newest First",
		Description: "January and February paid separately; reversing January's payment takes February",
	},
	{
		ID:          "reverse-reversal",
		Name:        "Reversal of a Reversal",
		Description: "A reversed payment whose reversal cannot itself be reversed",
	},
}

// resetter is implemented by stores that can drop all data.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var load func(ctx context.Context) error
	switch req.ScenarioID {
	case "fifo-waterfall":
		load = h.loadFIFOScenario
	case "rate-change":
		load = h.loadRateChangeScenario
	case "reversal-lifo":
		load = h.loadReversalScenario
	case "reverse-reversal":
		load = h.loadReverseReversalScenario
	default:
		writeError(w, http.StatusBadRequest, "unknown_scenario", "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase drops all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Service.Store().(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedTenant creates house-<suffix> and tenant-<suffix> moving in 2024-01-01.
func (h *Handler) seedTenant(ctx context.Context, suffix, name string, history []ledger.RentHistoryEntry) (ledger.TenantID, error) {
	house, err := h.Service.CreateHouse(ctx, ledger.House{
		ID:          ledger.HouseID("house-" + suffix),
		Name:        "Plot " + suffix,
		MonthlyRent: ledger.NewMoneyFromInt(1000),
		RentHistory: history,
	})
	if err != nil {
		return "", err
	}
	tenant, err := h.Service.CreateTenant(ctx, ledger.Tenant{
		ID:         ledger.TenantID("tenant-" + suffix),
		HouseID:    house.ID,
		Name:       name,
		MoveInDate: date(2024, 1, 1),
	})
	if err != nil {
		return "", err
	}
	return tenant.ID, nil
}

func (h *Handler) pay(ctx context.Context, tenantID ledger.TenantID, amount int64, on time.Time, ref string) (ledger.Payment, error) {
	res, err := h.Service.RecordPayment(ctx, rental.RecordPaymentInput{
		TenantID:    tenantID,
		Amount:      ledger.NewMoneyFromInt(amount),
		Method:      ledger.MethodCash,
		PaymentDate: on,
		Reference:   ref,
		RecordedBy:  "scenario",
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	return res.Payment, nil
}

func (h *Handler) loadFIFOScenario(ctx context.Context) error {
	tenantID, err := h.seedTenant(ctx, "a", "Amina Nakato", nil)
	if err != nil {
		return err
	}
	_, err = h.pay(ctx, tenantID, 2500, date(2024, 3, 15), "A-1")
	return err
}

func (h *Handler) loadRateChangeScenario(ctx context.Context) error {
	history := []ledger.RentHistoryEntry{{
		EffectiveDate: date(2024, 3, 1),
		Amount:        ledger.NewMoneyFromInt(1200),
		Source:        ledger.SourceHouse,
		Note:          "annual review",
	}}
	tenantID, err := h.seedTenant(ctx, "b", "Brian Okello", history)
	if err != nil {
		return err
	}

	payments := []struct {
		amount int64
		on     time.Time
	}{
		{1000, date(2024, 1, 5)},
		{1000, date(2024, 2, 5)},
		{1200, date(2024, 3, 5)},
		{1200, date(2024, 4, 5)},
	}
	for i, p := range payments {
		if _, err := h.pay(ctx, tenantID, p.amount, p.on, fmt.Sprintf("B-%d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadReversalScenario(ctx context.Context) error {
	tenantID, err := h.seedTenant(ctx, "c", "Carol Namuli", nil)
	if err != nil {
		return err
	}
	jan, err := h.pay(ctx, tenantID, 1000, date(2024, 1, 5), "C-1")
	if err != nil {
		return err
	}
	if _, err := h.pay(ctx, tenantID, 1000, date(2024, 2, 5), "C-2"); err != nil {
		return err
	}
	_, err = h.Service.ReversePayment(ctx, rental.ReversePaymentInput{
		PaymentID:    jan.ID,
		ReversalDate: date(2024, 2, 20),
		Reason:       "cheque bounced",
		RecordedBy:   "scenario",
	})
	return err
}

func (h *Handler) loadReverseReversalScenario(ctx context.Context) error {
	tenantID, err := h.seedTenant(ctx, "d", "David Mugisha", nil)
	if err != nil {
		return err
	}
	p, err := h.pay(ctx, tenantID, 1000, date(2024, 1, 5), "D-1")
	if err != nil {
		return err
	}
	rev, err := h.Service.ReversePayment(ctx, rental.ReversePaymentInput{
		PaymentID:    p.ID,
		ReversalDate: date(2024, 1, 20),
		Reason:       "entered twice",
		RecordedBy:   "scenario",
	})
	if err != nil {
		return err
	}

	_, err = h.Service.ReversePayment(ctx, rental.ReversePaymentInput{PaymentID: rev.Payment.ID, RecordedBy: "scenario"})
	if !errors.Is(err, ledger.ErrReverseReversal) {
		return fmt.Errorf("reversing reversal %s: expected %v, got %v", rev.Payment.ID, ledger.ErrReverseReversal, err)
	}
	return nil
}
