/*
Package factory provides JSON to Go rent-history conversion.

PURPOSE:
  Houses and tenants store their rent history as a serialized list of
  effective-dated entries. The factory turns those blobs into typed
  ledger.RentHistoryEntry values and back.

JSON SCHEMA:
  [
    {"effective_date": "2024-03-01", "amount": 1200, "source": "house", "note": "annual review"},
    {"effectiveDate": "2024-06", "amount": "950.00", "source": "override"}
  ]

KEY FEATURES:
  - Accepts snake_case and legacy camelCase date keys
  - Dates as YYYY-MM-DD, YYYY-MM or RFC3339; normalized to UTC midnight
  - Amount as JSON number or quoted decimal
  - Validates every entry; an unknown source is rejected
  - Writes entries in effective-date order with snake_case keys

USAGE:
  entries, err := factory.ParseRentHistory(row.RentHistoryJSON)
  blob, err := factory.MarshalRentHistory(tenant.RentHistory)

SEE ALSO:
  - ledger/rent.go: RentHistoryEntry and timeline resolution
  - store/sqlite/sqlite.go: Reads and writes these blobs
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RentEntryJSON is the JSON representation of one rent-history entry.
type RentEntryJSON struct {
	EffectiveDate       string       `json:"effective_date"`
	LegacyEffectiveDate string       `json:"effectiveDate,omitempty"`
	Amount              ledger.Money `json:"amount"`
	Source              string       `json:"source"`
	Note                string       `json:"note,omitempty"`
}

var dateLayouts = []string{"2006-01-02", "2006-01", time.RFC3339}

// ParseDate accepts the date layouts used in rent-history blobs.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
}

// =============================================================================
// PARSE / MARSHAL
// =============================================================================

// ParseRentHistory decodes a stored blob. An empty blob is an empty history.
func ParseRentHistory(raw string) ([]ledger.RentHistoryEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var items []RentEntryJSON
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse rent history: %w", err)
	}

	entries := make([]ledger.RentHistoryEntry, 0, len(items))
	for i, item := range items {
		e, err := item.ToEntry()
		if err != nil {
			return nil, fmt.Errorf("rent history entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ToEntry converts and validates one JSON entry.
func (j RentEntryJSON) ToEntry() (ledger.RentHistoryEntry, error) {
	dateStr := j.EffectiveDate
	if dateStr == "" {
		dateStr = j.LegacyEffectiveDate
	}
	if dateStr == "" {
		return ledger.RentHistoryEntry{}, &ledger.ValidationError{Field: "effective_date", Message: "required"}
	}
	effective, err := ParseDate(dateStr)
	if err != nil {
		return ledger.RentHistoryEntry{}, &ledger.ValidationError{Field: "effective_date", Message: err.Error()}
	}

	e := ledger.RentHistoryEntry{
		EffectiveDate: effective,
		Amount:        j.Amount,
		Source:        ledger.RentSource(strings.ToLower(strings.TrimSpace(j.Source))),
		Note:          j.Note,
	}
	if err := e.Validate(); err != nil {
		return ledger.RentHistoryEntry{}, err
	}
	return e, nil
}

// FromEntry is the inverse of ToEntry.
func FromEntry(e ledger.RentHistoryEntry) RentEntryJSON {
	return RentEntryJSON{
		EffectiveDate: e.EffectiveDate.Format("2006-01-02"),
		Amount:        e.Amount,
		Source:        string(e.Source),
		Note:          e.Note,
	}
}

// MarshalRentHistory encodes entries ordered by effective date. An empty
// history encodes as "".
func MarshalRentHistory(entries []ledger.RentHistoryEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	ordered := append([]ledger.RentHistoryEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveDate.Before(ordered[j].EffectiveDate)
	})

	items := make([]RentEntryJSON, len(ordered))
	for i, e := range ordered {
		items[i] = FromEntry(e)
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rent history: %w", err)
	}
	return string(b), nil
}
