package ledger_test

import (
	"testing"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonths_InclusiveRange(t *testing.T) {
	// GIVEN: Move-in mid-January, through mid-March
	// WHEN: Generating the month sequence
	// THEN: January, February and March are all included

	months := ledger.Months(date(2024, 1, 20), date(2024, 3, 5), 0)
	assert.Equal(t, []ledger.MonthKey{"2024-01", "2024-02", "2024-03"}, months)
}

func TestMonths_ExtraMonthsAppended(t *testing.T) {
	months := ledger.Months(date(2024, 11, 1), date(2024, 12, 31), 2)
	assert.Equal(t, []ledger.MonthKey{"2024-11", "2024-12", "2025-01", "2025-02"}, months)
}

func TestMonths_MoveInAfterThrough_Empty(t *testing.T) {
	// GIVEN: Move-in is after the through date
	// WHEN: Generating months, even with lookahead
	// THEN: The sequence is empty, not an error

	assert.Empty(t, ledger.Months(date(2024, 5, 1), date(2024, 4, 30), 3))
}

func TestMonths_Deterministic(t *testing.T) {
	a := ledger.Months(date(2020, 2, 29), date(2024, 2, 29), 6)
	b := ledger.Months(date(2020, 2, 29), date(2024, 2, 29), 6)
	assert.Equal(t, a, b)
	assert.Len(t, a, 49+6)
}

func TestMonthKey_LexicographicIsChronological(t *testing.T) {
	months := ledger.Months(date(1999, 6, 1), date(2001, 6, 1), 0)
	for i := 1; i < len(months); i++ {
		assert.True(t, months[i-1] < months[i], "%s should sort before %s", months[i-1], months[i])
		assert.True(t, months[i-1].FirstDay().Before(months[i].FirstDay()))
	}
}

func TestMonthKey_ParseAndStep(t *testing.T) {
	m, err := ledger.ParseMonthKey("2024-12")
	require.NoError(t, err)
	assert.Equal(t, ledger.MonthKey("2025-01"), m.Next())
	assert.Equal(t, ledger.MonthKey("2024-11"), m.Prev())

	_, err = ledger.ParseMonthKey("2024-13")
	assert.Error(t, err)
	assert.False(t, ledger.MonthKey("24-01").Valid())
}

func TestBillingMonths_CappedAtMoveOut(t *testing.T) {
	// GIVEN: A tenant who moved out in February
	// WHEN: Computing the billing window with lookahead
	// THEN: No month after February is included

	out := date(2024, 2, 10)
	tenant := ledger.Tenant{MoveInDate: date(2024, 1, 1), MoveOutDate: &out}

	months := ledger.BillingMonths(tenant, date(2024, 3, 15), 12)
	assert.Equal(t, []ledger.MonthKey{"2024-01", "2024-02"}, months)
}
