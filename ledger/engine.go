package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// SNAPSHOT - Everything a plan is computed from
// =============================================================================

// Snapshot is the already-fetched state of one tenant. Plans computed from the
// same snapshot are identical.
type Snapshot struct {
	Tenant   Tenant
	House    House
	Payments []Payment
}

func (s Snapshot) find(id PaymentID) (Payment, bool) {
	for _, p := range s.Payments {
		if p.ID == id {
			return p, true
		}
	}
	return Payment{}, false
}

func (s Snapshot) without(id PaymentID) []Payment {
	out := make([]Payment, 0, len(s.Payments))
	for _, p := range s.Payments {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// Plan is an allocation decision plus the inputs that produced it.
type Plan struct {
	Result  AllocationResult
	Months  []MonthKey
	Rent    MonthAmounts
	Paid    MonthAmounts
	Skipped []SkippedPayment
}

// =============================================================================
// PLANNERS
// =============================================================================

// PlanPayment allocates a new payment of amount made on paidOn.
func PlanPayment(s Snapshot, amount Money, paidOn time.Time, lookahead int) (Plan, error) {
	if !amount.IsPositive() {
		return Plan{}, &ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", amount)}
	}
	if paidOn.IsZero() {
		return Plan{}, &ValidationError{Field: "payment_date", Message: "required"}
	}
	return planForward(s.Tenant, s.House, s.Payments, amount, paidOn, lookahead), nil
}

// PlanReversal unwinds targetID against the current paid-by-month balance.
func PlanReversal(s Snapshot, targetID PaymentID) (Plan, error) {
	target, ok := s.find(targetID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, targetID)
	}
	if err := CheckReversible(target, FindReversal(targetID, s.Payments)); err != nil {
		return Plan{}, err
	}

	replay := Replay(s.Payments)
	res := AllocateReversal(target.Amount, replay.Paid)
	if len(res.Allocation) == 0 {
		return Plan{}, &ConflictError{
			Code:      CodeReversalNotAbsorbable,
			PaymentID: targetID,
			Message:   "no month has a paid balance left to reverse",
		}
	}
	return Plan{Result: res, Months: replay.Paid.Months(), Paid: replay.Paid, Skipped: replay.Skipped}, nil
}

// PlanEdit recomputes targetID's allocation for a new amount as if it were a
// fresh payment on its recorded date, excluding it from the snapshot.
func PlanEdit(s Snapshot, targetID PaymentID, amount Money, now time.Time, lookahead int) (Plan, error) {
	target, ok := s.find(targetID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, targetID)
	}
	if err := CheckEditable(target, s.Payments, now); err != nil {
		return Plan{}, err
	}
	if !amount.IsPositive() {
		return Plan{}, &ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", amount)}
	}
	return planForward(s.Tenant, s.House, s.without(targetID), amount, target.PaymentDate, lookahead), nil
}

func planForward(t Tenant, h House, payments []Payment, amount Money, paidOn time.Time, lookahead int) Plan {
	months := BillingMonths(t, paidOn, lookahead)
	rent := RentByMonth(months, t.RentHistory, h.RentHistory, FallbackRent(t, h))
	replay := Replay(payments)
	return Plan{
		Result:  Allocate(amount, months, replay.Paid, rent),
		Months:  months,
		Rent:    rent,
		Paid:    replay.Paid,
		Skipped: replay.Skipped,
	}
}
