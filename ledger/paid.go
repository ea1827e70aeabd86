package ledger

import (
	"fmt"
	"sort"
)

// =============================================================================
// PAID-BY-MONTH REPLAY
// =============================================================================

type SkipReason string

const (
	SkipCorruptAllocation SkipReason = "corrupt_allocation"
	SkipDuplicateReversal SkipReason = "duplicate_reversal"
)

// SkippedPayment is a payment the replay ignored.
type SkippedPayment struct {
	PaymentID PaymentID
	Reason    SkipReason
	Err       error
}

func (s SkippedPayment) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", s.PaymentID, s.Reason, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.PaymentID, s.Reason)
}

// ReplayResult is the derived paid-by-month map plus whatever was ignored
// while building it.
type ReplayResult struct {
	Paid    MonthAmounts
	Skipped []SkippedPayment
}

// Replay folds payments into a per-month paid balance.
//
// Payments contribute +|v| per allocation entry, reversals -|v|. Only the
// first reversal (by payment date, creation time, then ID) of a given payment
// counts; later ones are reported as duplicates. Payments whose stored
// allocation failed to decode are reported as corrupt. The result does not
// depend on the input order.
func Replay(payments []Payment) ReplayResult {
	ordered := append([]Payment(nil), payments...)
	SortPayments(ordered)

	res := ReplayResult{Paid: MonthAmounts{}}
	reversed := make(map[PaymentID]bool)

	for _, p := range ordered {
		if p.AllocationErr != nil {
			res.Skipped = append(res.Skipped, SkippedPayment{PaymentID: p.ID, Reason: SkipCorruptAllocation, Err: p.AllocationErr})
			continue
		}
		if p.IsReversal {
			if reversed[p.ReversedPaymentID] {
				res.Skipped = append(res.Skipped, SkippedPayment{PaymentID: p.ID, Reason: SkipDuplicateReversal})
				continue
			}
			reversed[p.ReversedPaymentID] = true
		}
		for m, v := range p.Allocation {
			if v.IsZero() {
				continue
			}
			delta := v.Abs()
			if p.IsReversal {
				delta = delta.Neg()
			}
			res.Paid[m] = res.Paid.Get(m).Add(delta)
		}
	}
	return res
}

// PaidByMonth is Replay without the skip report.
func PaidByMonth(payments []Payment) MonthAmounts {
	return Replay(payments).Paid
}

// SortPayments orders payments by payment date, then creation time, then ID.
func SortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return paymentLess(payments[i], payments[j])
	})
}

func paymentLess(a, b Payment) bool {
	if !a.PaymentDate.Equal(b.PaymentDate) {
		return a.PaymentDate.Before(b.PaymentDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
