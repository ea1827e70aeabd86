package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - Sparse per-month breakdown of a payment
// =============================================================================

// Allocation is the persisted month breakdown of a payment. It is sparse: a
// month with nothing applied is absent, never stored as zero. Reversal
// allocations carry negative amounts.
type Allocation map[MonthKey]Money

func (a Allocation) Sum() Money {
	total := ZeroMoney()
	for _, v := range a {
		total = total.Add(v)
	}
	return total
}

func (a Allocation) Months() []MonthKey {
	return MonthAmounts(a).Months()
}

// Strings renders the allocation with fixed two-place amounts. Used for logs,
// events and test comparisons.
func (a Allocation) Strings() map[string]string {
	out := make(map[string]string, len(a))
	for m, v := range a {
		out[string(m)] = v.String()
	}
	return out
}

// MarshalJSON emits {"YYYY-MM": amount, ...} with keys in month order.
func (a Allocation) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, m := range a.Months() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%s", m, a[m].String())
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (a *Allocation) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAllocation(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAllocation decodes a stored allocation record.
//
// Malformed JSON or an invalid month key makes the whole record unreadable and
// returns an error. Individual values that are null, non-numeric or zero are
// dropped. An empty string decodes to an empty allocation.
func ParseAllocation(raw string) (Allocation, error) {
	alloc := Allocation{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return alloc, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode allocation: %w", err)
	}
	for key, value := range entries {
		month, err := ParseMonthKey(key)
		if err != nil {
			return nil, fmt.Errorf("decode allocation: %w", err)
		}
		var d decimal.Decimal
		if err := d.UnmarshalJSON(value); err != nil {
			continue
		}
		m := NewMoneyFromDecimal(d)
		if m.IsZero() {
			continue
		}
		alloc[month] = m
	}
	return alloc, nil
}

// =============================================================================
// WATERFALLS
// =============================================================================

// AllocationResult is the output of either waterfall. Order lists the months
// in the order they were consumed.
type AllocationResult struct {
	Allocation Allocation
	Remaining  Money
	Order      []MonthKey
}

// Allocate applies amount to months oldest-unpaid-first.
//
// For each month ascending: due = max(rent - paid, 0); months with no due are
// skipped; applied = min(due, remaining). Whatever is left after the last
// month is returned as Remaining.
func Allocate(amount Money, months []MonthKey, paid, rent MonthAmounts) AllocationResult {
	ordered := uniqueSorted(months)
	res := AllocationResult{Allocation: Allocation{}, Remaining: amount.Abs()}

	for _, m := range ordered {
		if !res.Remaining.IsPositive() {
			break
		}
		due := rent.Get(m).Sub(paid.Get(m))
		if !due.IsPositive() {
			continue
		}
		applied := due.Min(res.Remaining)
		if applied.IsZero() {
			continue
		}
		res.Allocation[m] = applied
		res.Order = append(res.Order, m)
		res.Remaining = res.Remaining.Sub(applied)
	}
	return res
}

// AllocateReversal unwinds amount from the most recently paid months first.
//
// Only months with a positive paid balance are considered, newest first.
// The allocation records negative amounts; Remaining is the magnitude that
// could not be absorbed.
func AllocateReversal(amount Money, paid MonthAmounts) AllocationResult {
	res := AllocationResult{Allocation: Allocation{}, Remaining: amount.Abs()}

	months := paid.Months()
	for i := len(months) - 1; i >= 0; i-- {
		if !res.Remaining.IsPositive() {
			break
		}
		m := months[i]
		balance := paid[m]
		if !balance.IsPositive() {
			continue
		}
		applied := balance.Min(res.Remaining)
		if applied.IsZero() {
			continue
		}
		res.Allocation[m] = applied.Neg()
		res.Order = append(res.Order, m)
		res.Remaining = res.Remaining.Sub(applied)
	}
	return res
}

func uniqueSorted(months []MonthKey) []MonthKey {
	out := append([]MonthKey(nil), months...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, m := range out {
		if i > 0 && m == out[n-1] {
			continue
		}
		out[n] = m
		n++
	}
	return out[:n]
}
