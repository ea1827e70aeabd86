package ledger

import "time"

// =============================================================================
// STATEMENT - Per-month rent vs paid
// =============================================================================

type MonthStatus string

const (
	StatusPaid     MonthStatus = "paid"
	StatusPartial  MonthStatus = "partial"
	StatusUnpaid   MonthStatus = "unpaid"
	StatusOverpaid MonthStatus = "overpaid"
)

type StatementLine struct {
	Month  MonthKey
	Rent   Money
	Paid   Money
	Due    Money
	Status MonthStatus
}

// Statement is the tenant's month-by-month position.
type Statement struct {
	TenantID TenantID
	Lines    []StatementLine
	TotalDue Money
	Skipped  []SkippedPayment
}

func statusOf(rent, paid Money) MonthStatus {
	switch {
	case paid.GreaterThan(rent):
		return StatusOverpaid
	case paid.Equal(rent):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	}
	return StatusUnpaid
}

// BuildStatement lists every month from move-in through through (capped at
// move-out), plus any later month that already carries a paid balance.
func BuildStatement(s Snapshot, through time.Time) Statement {
	months := BillingMonths(s.Tenant, through, 0)
	replay := Replay(s.Payments)
	if len(months) > 0 {
		last := months[len(months)-1]
		for _, m := range replay.Paid.Months() {
			if m.After(last) && replay.Paid[m].IsPositive() {
				months = append(months, m)
			}
		}
	}
	rent := RentByMonth(months, s.Tenant.RentHistory, s.House.RentHistory, FallbackRent(s.Tenant, s.House))

	st := Statement{TenantID: s.Tenant.ID, TotalDue: ZeroMoney(), Skipped: replay.Skipped}
	for _, m := range months {
		r, p := rent.Get(m), replay.Paid.Get(m)
		due := r.Sub(p).Max(ZeroMoney())
		st.Lines = append(st.Lines, StatementLine{Month: m, Rent: r, Paid: p, Due: due, Status: statusOf(r, p)})
		st.TotalDue = st.TotalDue.Add(due)
	}
	return st
}
