package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - Calendar month token, string order == chronological order
// =============================================================================

const monthLayout = "2006-01"

// MonthKey is a "YYYY-MM" token.
type MonthKey string

func MonthOf(t time.Time) MonthKey { return MonthKey(t.Format(monthLayout)) }

func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return MonthOf(t), nil
}

// FirstDay returns midnight UTC on the first day of the month.
func (m MonthKey) FirstDay() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m MonthKey) Valid() bool {
	_, err := time.Parse(monthLayout, string(m))
	return err == nil
}

func (m MonthKey) Next() MonthKey { return MonthOf(m.FirstDay().AddDate(0, 1, 0)) }
func (m MonthKey) Prev() MonthKey { return MonthOf(m.FirstDay().AddDate(0, -1, 0)) }
func (m MonthKey) Before(o MonthKey) bool { return m < o }
func (m MonthKey) After(o MonthKey) bool { return m > o }
func (m MonthKey) String() string { return string(m) }

// FirstOfMonth truncates t to midnight UTC on the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// MONTH SEQUENCE - The months an obligation spans
// =============================================================================

// Months lists every month from moveIn's month through through's month,
// inclusive, then extraMonths further consecutive months.
//
// A moveIn after through yields an empty sequence; no extra months are
// appended to an empty base. The result depends only on its arguments.
func Months(moveIn, through time.Time, extraMonths int) []MonthKey {
	start := FirstOfMonth(moveIn)
	end := FirstOfMonth(through)
	if start.After(end) {
		return nil
	}

	var months []MonthKey
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		months = append(months, MonthOf(cur))
	}
	for i := 0; i < extraMonths; i++ {
		months = append(months, months[len(months)-1].Next())
	}
	return months
}

// BillingMonths is the month window used when applying a payment made on
// paidOn: the tenant's months through paidOn plus lookahead, never extending
// past the move-out month.
func BillingMonths(t Tenant, paidOn time.Time, lookahead int) []MonthKey {
	months := Months(t.MoveInDate, paidOn, lookahead)
	if t.MoveOutDate == nil {
		return months
	}
	last := MonthOf(*t.MoveOutDate)
	for i, m := range months {
		if m.After(last) {
			return months[:i]
		}
	}
	return months
}
