/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are JSON numbers with two decimals on output. Requests accept a
  number or a numeric string.

DATES:
  Request dates are "YYYY-MM-DD" (RFC3339 also accepted). Months are
  "YYYY-MM".

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rent_history.go: RentEntryJSON
*/
package api

import (
	"time"

	"github.com/Kakungulu256/rcms/factory"
	"github.com/Kakungulu256/rcms/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HOUSES / TENANTS
// =============================================================================

type HouseDTO struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	MonthlyRent ledger.Money            `json:"monthly_rent"`
	RentHistory []factory.RentEntryJSON `json:"rent_history"`
	CreatedAt   string                  `json:"created_at,omitempty"`
}

type CreateHouseRequest struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	MonthlyRent ledger.Money            `json:"monthly_rent"`
	RentHistory []factory.RentEntryJSON `json:"rent_history"`
}

type TenantDTO struct {
	ID           string                  `json:"id"`
	HouseID      string                  `json:"house_id"`
	Name         string                  `json:"name"`
	MoveInDate   string                  `json:"move_in_date"`
	MoveOutDate  string                  `json:"move_out_date,omitempty"`
	RentOverride *ledger.Money           `json:"rent_override,omitempty"`
	RentHistory  []factory.RentEntryJSON `json:"rent_history"`
	CreatedAt    string                  `json:"created_at,omitempty"`
}

type CreateTenantRequest struct {
	ID           string                  `json:"id"`
	HouseID      string                  `json:"house_id"`
	Name         string                  `json:"name"`
	MoveInDate   string                  `json:"move_in_date"`
	MoveOutDate  string                  `json:"move_out_date"`
	RentOverride *ledger.Money           `json:"rent_override"`
	RentHistory  []factory.RentEntryJSON `json:"rent_history"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	Amount            ledger.Money      `json:"amount"`
	Method            string            `json:"method"`
	PaymentDate       string            `json:"payment_date"`
	Allocation        ledger.Allocation `json:"allocation"`
	Unapplied         ledger.Money      `json:"unapplied"`
	IsReversal        bool              `json:"is_reversal"`
	ReversedPaymentID string            `json:"reversed_payment_id,omitempty"`
	State             string            `json:"state"`
	Reference         string            `json:"reference,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	RecordedBy        string            `json:"recorded_by,omitempty"`
	AllocationError   string            `json:"allocation_error,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

type RecordPaymentRequest struct {
	Amount      ledger.Money `json:"amount"`
	Method      string       `json:"method"`
	PaymentDate string       `json:"payment_date"`
	Reference   string       `json:"reference"`
	Notes       string       `json:"notes"`
	RecordedBy  string       `json:"recorded_by"`
}

type PreviewRequest struct {
	Amount      ledger.Money `json:"amount"`
	PaymentDate string       `json:"payment_date"`
}

// PreviewResponse shows how a payment would be spread without recording it.
type PreviewResponse struct {
	Allocation ledger.Allocation `json:"allocation"`
	Remaining  ledger.Money      `json:"remaining"`
	Months     []MonthDueDTO     `json:"months"`
}

type MonthDueDTO struct {
	Month   string       `json:"month"`
	Rent    ledger.Money `json:"rent"`
	Paid    ledger.Money `json:"paid"`
	Applied ledger.Money `json:"applied"`
}

// EditPaymentRequest carries only the editable fields. Absent fields keep
// their stored value.
type EditPaymentRequest struct {
	Amount    *ledger.Money `json:"amount"`
	Method    *string       `json:"method"`
	Reference *string       `json:"reference"`
	Notes     *string       `json:"notes"`
}

type ReversePaymentRequest struct {
	ReversalDate string `json:"reversal_date"`
	Reason       string `json:"reason"`
	RecordedBy   string `json:"recorded_by"`
}

// PaymentResponse is returned by every write.
type PaymentResponse struct {
	Payment PaymentDTO `json:"payment"`
	Warning string     `json:"warning,omitempty"`
}

// =============================================================================
// STATEMENT
// =============================================================================

type StatementLineDTO struct {
	Month  string       `json:"month"`
	Rent   ledger.Money `json:"rent"`
	Paid   ledger.Money `json:"paid"`
	Due    ledger.Money `json:"due"`
	Status string       `json:"status"`
}

type StatementDTO struct {
	TenantID string             `json:"tenant_id"`
	Lines    []StatementLineDTO `json:"lines"`
	TotalDue ledger.Money       `json:"total_due"`
	Skipped  []SkippedDTO       `json:"skipped,omitempty"`
}

type SkippedDTO struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toHouseDTO(h ledger.House) HouseDTO {
	return HouseDTO{
		ID:          string(h.ID),
		Name:        h.Name,
		MonthlyRent: h.MonthlyRent,
		RentHistory: toRentEntries(h.RentHistory),
		CreatedAt:   formatTime(h.CreatedAt),
	}
}

func toTenantDTO(t ledger.Tenant) TenantDTO {
	dto := TenantDTO{
		ID:           string(t.ID),
		HouseID:      string(t.HouseID),
		Name:         t.Name,
		MoveInDate:   t.MoveInDate.Format(dateLayout),
		RentOverride: t.RentOverride,
		RentHistory:  toRentEntries(t.RentHistory),
		CreatedAt:    formatTime(t.CreatedAt),
	}
	if t.MoveOutDate != nil {
		dto.MoveOutDate = t.MoveOutDate.Format(dateLayout)
	}
	return dto
}

func toRentEntries(entries []ledger.RentHistoryEntry) []factory.RentEntryJSON {
	out := make([]factory.RentEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, factory.FromEntry(e))
	}
	return out
}

func toPaymentDTO(p ledger.Payment, state ledger.PaymentState) PaymentDTO {
	dto := PaymentDTO{
		ID:                string(p.ID),
		TenantID:          string(p.TenantID),
		Amount:            p.Amount,
		Method:            string(p.Method),
		PaymentDate:       p.PaymentDate.Format(dateLayout),
		Allocation:        p.Allocation,
		Unapplied:         p.Unapplied,
		IsReversal:        p.IsReversal,
		ReversedPaymentID: string(p.ReversedPaymentID),
		State:             string(state),
		Reference:         p.Reference,
		Notes:             p.Notes,
		RecordedBy:        p.RecordedBy,
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
	if dto.Allocation == nil {
		dto.Allocation = ledger.Allocation{}
	}
	if p.AllocationErr != nil {
		dto.AllocationError = p.AllocationErr.Error()
	}
	return dto
}

func toStatementDTO(st ledger.Statement) StatementDTO {
	dto := StatementDTO{TenantID: string(st.TenantID), Lines: []StatementLineDTO{}, TotalDue: st.TotalDue}
	for _, l := range st.Lines {
		dto.Lines = append(dto.Lines, StatementLineDTO{
			Month:  string(l.Month),
			Rent:   l.Rent,
			Paid:   l.Paid,
			Due:    l.Due,
			Status: string(l.Status),
		})
	}
	for _, sp := range st.Skipped {
		dto.Skipped = append(dto.Skipped, SkippedDTO{PaymentID: string(sp.PaymentID), Reason: string(sp.Reason)})
	}
	return dto
}

func toPreviewResponse(plan ledger.Plan) PreviewResponse {
	resp := PreviewResponse{
		Allocation: plan.Result.Allocation,
		Remaining:  plan.Result.Remaining,
		Months:     []MonthDueDTO{},
	}
	for _, m := range plan.Months {
		resp.Months = append(resp.Months, MonthDueDTO{
			Month:   string(m),
			Rent:    plan.Rent.Get(m),
			Paid:    plan.Paid.Get(m),
			Applied: ledger.MonthAmounts(plan.Result.Allocation).Get(m),
		})
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
