package ledger

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// RENT HISTORY - Effective-dated rate changes
// =============================================================================

type RentSource string

const (
	SourceHouse    RentSource = "house"
	SourceOverride RentSource = "override"
	SourceManual   RentSource = "manual"
)

func (s RentSource) Valid() bool {
	return s == SourceHouse || s == SourceOverride || s == SourceManual
}

// RentHistoryEntry means "starting on EffectiveDate, rent is Amount".
// Entries are appended, never edited; later dates supersede earlier ones.
type RentHistoryEntry struct {
	EffectiveDate time.Time
	Amount        Money
	Source        RentSource
	Note          string
}

// EffectiveMonth is the month EffectiveDate falls in. An entry dated after
// the 1st first applies to the following month.
func (e RentHistoryEntry) EffectiveMonth() MonthKey { return MonthOf(e.EffectiveDate) }

// effectiveDay is EffectiveDate at midnight UTC.
func (e RentHistoryEntry) effectiveDay() time.Time {
	y, m, d := e.EffectiveDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AppliesTo reports whether the entry is effective on the first day of month.
func (e RentHistoryEntry) AppliesTo(month MonthKey) bool {
	return !e.effectiveDay().After(month.FirstDay())
}

func (e RentHistoryEntry) Validate() error {
	if e.EffectiveDate.IsZero() {
		return &ValidationError{Field: "effective_date", Message: "required"}
	}
	if e.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("must not be negative, got %s", e.Amount)}
	}
	if !e.Source.Valid() {
		return &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", e.Source)}
	}
	return nil
}

// =============================================================================
// TIMELINE - Merged, ordered view of tenant and house entries
// =============================================================================

// RentTimeline is ordered by effective date; on the same date house entries
// come before override/manual entries so a tenant-specific rate wins ties.
type RentTimeline []RentHistoryEntry

func sourceRank(s RentSource) int {
	if s == SourceHouse {
		return 0
	}
	return 1
}

// BuildTimeline selects and orders the entries used for resolution:
//   - tenant has non-house entries: house entries + those tenant entries
//   - else house has entries: house entries alone
//   - else the tenant's raw entries
func BuildTimeline(tenantHistory, houseHistory []RentHistoryEntry) RentTimeline {
	var overrides []RentHistoryEntry
	for _, e := range tenantHistory {
		if e.Source != SourceHouse {
			overrides = append(overrides, e)
		}
	}

	var merged []RentHistoryEntry
	switch {
	case len(overrides) > 0:
		merged = make([]RentHistoryEntry, 0, len(houseHistory)+len(overrides))
		merged = append(merged, houseHistory...)
		merged = append(merged, overrides...)
	case len(houseHistory) > 0:
		merged = append([]RentHistoryEntry(nil), houseHistory...)
	default:
		merged = append([]RentHistoryEntry(nil), tenantHistory...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		di, dj := merged[i].effectiveDay(), merged[j].effectiveDay()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return sourceRank(merged[i].Source) < sourceRank(merged[j].Source)
	})
	return RentTimeline(merged)
}

// RentFor returns the amount of the last entry effective on or before the
// first day of month, or fallback when none is.
func (t RentTimeline) RentFor(month MonthKey, fallback Money) Money {
	rent := fallback
	for _, e := range t {
		if !e.AppliesTo(month) {
			break
		}
		rent = e.Amount
	}
	return rent
}

// RentForMonth resolves the rent for a single month.
func RentForMonth(month MonthKey, tenantHistory, houseHistory []RentHistoryEntry, fallback Money) Money {
	return BuildTimeline(tenantHistory, houseHistory).RentFor(month, fallback)
}

// RentByMonth resolves every month of a sequence against one timeline.
func RentByMonth(months []MonthKey, tenantHistory, houseHistory []RentHistoryEntry, fallback Money) MonthAmounts {
	timeline := BuildTimeline(tenantHistory, houseHistory)
	rent := make(MonthAmounts, len(months))
	for _, m := range months {
		rent[m] = timeline.RentFor(m, fallback)
	}
	return rent
}

// =============================================================================
// MONTH AMOUNTS
// =============================================================================

// MonthAmounts maps months to amounts. A missing month reads as zero.
type MonthAmounts map[MonthKey]Money

func (a MonthAmounts) Get(m MonthKey) Money {
	if v, ok := a[m]; ok {
		return v
	}
	return ZeroMoney()
}

// Months returns the keys in ascending order.
func (a MonthAmounts) Months() []MonthKey {
	months := make([]MonthKey, 0, len(a))
	for m := range a {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months
}
