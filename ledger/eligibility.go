package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// PAYMENT STATE
// =============================================================================
//
//   Posted --reverse--> Reversed   (terminal)
//   Posted --edit-----> Posted     (latest payment, current month only)
//   Reversal                       (terminal, cannot be reversed)

type PaymentState string

const (
	StatePosted   PaymentState = "posted"
	StateReversed PaymentState = "reversed"
	StateReversal PaymentState = "reversal"
)

// StateOf derives p's state from the tenant's payment list.
func StateOf(p Payment, payments []Payment) PaymentState {
	if p.IsReversal {
		return StateReversal
	}
	if FindReversal(p.ID, payments) != nil {
		return StateReversed
	}
	return StatePosted
}

// FindReversal returns the first reversal of id in payments, or nil.
func FindReversal(id PaymentID, payments []Payment) *Payment {
	for i := range payments {
		if payments[i].IsReversal && payments[i].ReversedPaymentID == id {
			return &payments[i]
		}
	}
	return nil
}

// =============================================================================
// RULES
// =============================================================================

// CheckReversible rejects reversal of a reversal and a second reversal.
// existing is the stored reversal of target, if any.
func CheckReversible(target Payment, existing *Payment) error {
	if target.IsReversal {
		return &ConflictError{
			Code:      CodeReversalOfReversal,
			PaymentID: target.ID,
			Message:   "this payment is itself a reversal and cannot be reversed; record a new payment instead",
		}
	}
	if existing != nil {
		return &ConflictError{
			Code:      CodeAlreadyReversed,
			PaymentID: target.ID,
			Message:   fmt.Sprintf("this payment was already reversed by %s", existing.ID),
		}
	}
	return nil
}

// LatestEditable returns the most recent non-reversal, non-reversed payment,
// or nil if there is none.
func LatestEditable(payments []Payment) *Payment {
	var latest *Payment
	for i := range payments {
		p := payments[i]
		if p.IsReversal || FindReversal(p.ID, payments) != nil {
			continue
		}
		if latest == nil || paymentLess(*latest, p) {
			latest = &payments[i]
		}
	}
	return latest
}

// CheckEditable allows editing only the latest editable payment of the tenant
// while its payment date is in now's calendar month.
func CheckEditable(target Payment, payments []Payment, now time.Time) error {
	reject := func(msg string) error {
		return &ConflictError{Code: CodeEditNotAllowed, PaymentID: target.ID, Message: msg}
	}
	if target.IsReversal {
		return reject("reversals cannot be edited")
	}
	if FindReversal(target.ID, payments) != nil {
		return reject("this payment has been reversed; record a new payment instead")
	}
	if latest := LatestEditable(payments); latest == nil || latest.ID != target.ID {
		return reject("only the most recent payment can be edited; reverse this payment and record a new one instead")
	}
	if MonthOf(target.PaymentDate) != MonthOf(now) {
		return reject(fmt.Sprintf("payments can only be edited during the month they were made (%s)", MonthOf(target.PaymentDate)))
	}
	return nil
}
