package ledger_test

import (
	"testing"

	"github.com/Kakungulu256/rcms/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) ledger.Money { return ledger.MustParseMoney(s) }

func amounts(kv map[string]string) ledger.MonthAmounts {
	out := ledger.MonthAmounts{}
	for k, v := range kv {
		out[ledger.MonthKey(k)] = money(v)
	}
	return out
}

func flatRent(months []ledger.MonthKey, v string) ledger.MonthAmounts {
	out := ledger.MonthAmounts{}
	for _, m := range months {
		out[m] = money(v)
	}
	return out
}

// =============================================================================
// FORWARD WATERFALL
// =============================================================================

func TestAllocate_OldestFirst(t *testing.T) {
	// GIVEN: Three unpaid months at 1000
	// WHEN: Allocating 2500
	// THEN: Jan and Feb are filled, March gets the rest

	months := []ledger.MonthKey{"2024-01", "2024-02", "2024-03"}
	res := ledger.Allocate(money("2500"), months, nil, flatRent(months, "1000"))

	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-02": "1000.00", "2024-03": "500.00"}, res.Allocation.Strings())
	assert.True(t, res.Remaining.IsZero())
	assert.Equal(t, months, res.Order)
}

func TestAllocate_SkipsSatisfiedMonthsMidSequence(t *testing.T) {
	// GIVEN: February is already fully paid, January and March are not
	// WHEN: Allocating 1500
	// THEN: February is skipped and receives nothing

	months := []ledger.MonthKey{"2024-01", "2024-02", "2024-03"}
	paid := amounts(map[string]string{"2024-02": "1000"})
	res := ledger.Allocate(money("1500"), months, paid, flatRent(months, "1000"))

	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-03": "500.00"}, res.Allocation.Strings())
	_, hasFeb := res.Allocation["2024-02"]
	assert.False(t, hasFeb, "sparse allocation must not hold an explicit zero")
}

func TestAllocate_PartiallyPaidMonthGetsOnlyDue(t *testing.T) {
	months := []ledger.MonthKey{"2024-01", "2024-02"}
	paid := amounts(map[string]string{"2024-01": "400"})
	res := ledger.Allocate(money("800"), months, paid, flatRent(months, "1000"))

	assert.Equal(t, map[string]string{"2024-01": "600.00", "2024-02": "200.00"}, res.Allocation.Strings())
}

func TestAllocate_OverpaidMonthIsNotDue(t *testing.T) {
	months := []ledger.MonthKey{"2024-01", "2024-02"}
	paid := amounts(map[string]string{"2024-01": "1200"})
	res := ledger.Allocate(money("300"), months, paid, flatRent(months, "1000"))

	assert.Equal(t, map[string]string{"2024-02": "300.00"}, res.Allocation.Strings())
}

func TestAllocate_RemainingBeyondWindow(t *testing.T) {
	// GIVEN: Two months of 1000 due
	// WHEN: Paying 2600
	// THEN: 600 remains unapplied

	months := []ledger.MonthKey{"2024-01", "2024-02"}
	res := ledger.Allocate(money("2600"), months, nil, flatRent(months, "1000"))
	assert.Equal(t, "600.00", res.Remaining.String())
}

func TestAllocate_ZeroRentMonthSkipped(t *testing.T) {
	months := []ledger.MonthKey{"2024-01", "2024-02"}
	rent := amounts(map[string]string{"2024-01": "0", "2024-02": "500"})
	res := ledger.Allocate(money("200"), months, nil, rent)
	assert.Equal(t, map[string]string{"2024-02": "200.00"}, res.Allocation.Strings())
}

func TestAllocate_UnorderedInputProcessedAscending(t *testing.T) {
	months := []ledger.MonthKey{"2024-03", "2024-01", "2024-02", "2024-01"}
	res := ledger.Allocate(money("1000"), months, nil, flatRent(months, "1000"))
	assert.Equal(t, map[string]string{"2024-01": "1000.00"}, res.Allocation.Strings())
}

func TestAllocate_Conservation(t *testing.T) {
	// GIVEN: Awkward cent amounts across many months
	// WHEN: Allocating a range of payment sizes
	// THEN: sum(allocation) + remaining == amount exactly

	months := ledger.Months(date(2023, 1, 1), date(2024, 12, 1), 0)
	rent := flatRent(months, "333.33")
	paid := amounts(map[string]string{"2023-02": "100.01", "2023-05": "333.33", "2024-01": "0.99"})

	for _, amt := range []string{"0.01", "1.005", "333.33", "999.99", "4000.17", "12345.67", "99999"} {
		a := money(amt)
		res := ledger.Allocate(a, months, paid, rent)
		assert.True(t, res.Allocation.Sum().Add(res.Remaining).Equal(a), "conservation broken for %s", amt)
		for m, v := range res.Allocation {
			assert.True(t, v.IsPositive(), "month %s holds non-positive %s", m, v)
		}
	}
}

func TestAllocate_OldestFirstProperty(t *testing.T) {
	// GIVEN: Mixed prior payments
	// WHEN: Allocating
	// THEN: Once a month with due is not fully satisfied, no later month appears

	months := ledger.Months(date(2024, 1, 1), date(2024, 12, 1), 0)
	rent := flatRent(months, "1000")
	paid := amounts(map[string]string{"2024-02": "1000", "2024-04": "250", "2024-07": "1000"})
	res := ledger.Allocate(money("3100"), months, paid, rent)

	sawShort := false
	for _, m := range months {
		due := rent.Get(m).Sub(paid.Get(m))
		if !due.IsPositive() {
			continue
		}
		applied, ok := res.Allocation[m]
		if sawShort {
			assert.False(t, ok, "month %s allocated after an unsatisfied earlier month", m)
			continue
		}
		if !ok || applied.LessThan(due) {
			sawShort = true
		}
	}
}

// =============================================================================
// REVERSE WATERFALL
// =============================================================================

func TestAllocateReversal_LIFO(t *testing.T) {
	// GIVEN: Jan, Feb and Apr have paid balances
	// WHEN: Reversing 1500
	// THEN: April is unwound first, then February

	paid := amounts(map[string]string{"2024-01": "1000", "2024-02": "1000", "2024-04": "700"})
	res := ledger.AllocateReversal(money("1500"), paid)

	assert.Equal(t, map[string]string{"2024-04": "-700.00", "2024-02": "-800.00"}, res.Allocation.Strings())
	assert.Equal(t, []ledger.MonthKey{"2024-04", "2024-02"}, res.Order)
	assert.True(t, res.Remaining.IsZero())

	for i := 1; i < len(res.Order); i++ {
		assert.True(t, res.Order[i-1] >= res.Order[i], "reversal order must be non-increasing")
	}
}

func TestAllocateReversal_IgnoresNonPositiveMonths(t *testing.T) {
	paid := amounts(map[string]string{"2024-01": "500", "2024-02": "-100", "2024-03": "0"})
	res := ledger.AllocateReversal(money("-300"), paid)
	assert.Equal(t, map[string]string{"2024-01": "-300.00"}, res.Allocation.Strings())
}

func TestAllocateReversal_NotFullyAbsorbed(t *testing.T) {
	paid := amounts(map[string]string{"2024-01": "400"})
	res := ledger.AllocateReversal(money("1000"), paid)

	assert.Equal(t, map[string]string{"2024-01": "-400.00"}, res.Allocation.Strings())
	assert.Equal(t, "600.00", res.Remaining.String())
}

func TestAllocateReversal_NothingPaid(t *testing.T) {
	res := ledger.AllocateReversal(money("100"), nil)
	assert.Empty(t, res.Allocation)
	assert.Equal(t, "100.00", res.Remaining.String())
}

// =============================================================================
// PERSISTED FORM
// =============================================================================

func TestAllocation_JSONIsOrderedAndSparse(t *testing.T) {
	alloc := ledger.Allocation{"2024-02": money("1000"), "2024-01": money("12.5")}
	b, err := alloc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"2024-01":12.50,"2024-02":1000.00}`, string(b))
}

func TestParseAllocation_ToleratesBadValues(t *testing.T) {
	// GIVEN: A stored record with a zero, a null and a non-numeric value
	// WHEN: Parsing it
	// THEN: Only the real amounts survive

	alloc, err := ledger.ParseAllocation(`{"2024-01": 1000, "2024-02": 0, "2024-03": null, "2024-04": "NaN", "2024-05": "250.255"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2024-01": "1000.00", "2024-05": "250.26"}, alloc.Strings())
}

func TestParseAllocation_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "  "} {
		alloc, err := ledger.ParseAllocation(raw)
		require.NoError(t, err)
		assert.Empty(t, alloc)
	}
}

func TestParseAllocation_Malformed(t *testing.T) {
	_, err := ledger.ParseAllocation(`{"2024-01": 10`)
	assert.Error(t, err)

	_, err = ledger.ParseAllocation(`{"January": 10}`)
	assert.Error(t, err)

	_, err = ledger.ParseAllocation(`[1,2]`)
	assert.Error(t, err)
}
