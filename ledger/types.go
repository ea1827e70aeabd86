/*
Package ledger provides the rent ledger and allocation engine.

PURPOSE:
  Decides which calendar months a tenant's payment (or payment reversal)
  satisfies, given the tenant's payment history and an effective-dated rent
  schedule. Every decision is reproducible from stored data alone: the
  per-month "already paid" balance is always recomputed by replaying the
  payment rows, never stored separately.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount rounded to cents after every operation
  - Payment: an immutable ledger row carrying its month allocation
  - Tenant/House: the fields of the surrounding records the engine reads
  - Tenant/House/Payment IDs: type-safe identifiers

DESIGN PRINCIPLES:
  1. Purity: the engine consumes a snapshot and returns a result, no I/O
  2. Precision: decimal.Decimal rounded half away from zero at cents
  3. Immutability: payments are corrected by reversals, not edits
     (one bounded exception, see eligibility.go)
  4. Replayability: paid-by-month is derived, never persisted

USAGE:
  plan, err := ledger.PlanPayment(snapshot, ledger.NewMoney(2500), paidOn, 12)
  payment.Allocation = plan.Result.Allocation

SEE ALSO:
  - month.go: MonthKey and month sequences
  - rent.go: effective-dated rent resolution
  - paid.go: paid-by-month replay
  - allocation.go: forward and reversal waterfalls
  - eligibility.go: reversal and edit rules
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount rounded to cents
// =============================================================================

// MoneyPlaces is the number of decimal places every Money value is rounded to.
const MoneyPlaces = 2

// Money is a single-currency amount. Every constructor and arithmetic method
// rounds the result to MoneyPlaces using round-half-away-from-zero.
type Money struct {
	Value decimal.Decimal
}

func round(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

func NewMoney(value float64) Money { return Money{Value: round(decimal.NewFromFloat(value))} }

func NewMoneyFromInt(value int64) Money { return Money{Value: round(decimal.NewFromInt(value))} }

func NewMoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: round(d)} }

// ParseMoney parses a decimal string such as "1200", "1200.5" or "-99.995".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{Value: round(d)}, nil
}

// MustParseMoney is ParseMoney for literals in tests and fixtures.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func ZeroMoney() Money { return Money{Value: round(decimal.Zero)} }

func (m Money) Add(b Money) Money { return Money{Value: round(m.Value.Add(b.Value))} }
func (m Money) Sub(b Money) Money { return Money{Value: round(m.Value.Sub(b.Value))} }
func (m Money) Neg() Money { return Money{Value: round(m.Value.Neg())} }
func (m Money) Abs() Money { return Money{Value: round(m.Value.Abs())} }
func (m Money) IsZero() bool { return m.Value.IsZero() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) Equal(b Money) bool { return m.Value.Equal(b.Value) }
func (m Money) GreaterThan(b Money) bool { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool { return m.Value.LessThan(b.Value) }
func (m Money) Cmp(b Money) int { return m.Value.Cmp(b.Value) }

func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}

func (m Money) Max(b Money) Money {
	if m.GreaterThan(b) {
		return m
	}
	return b
}

func (m Money) String() string { return m.Value.StringFixed(MoneyPlaces) }

// MarshalJSON writes the amount as a bare JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.Value = round(d)
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type HouseID string
type PaymentID string

// =============================================================================
// PAYMENT - One row of the tenant's payment stream
// =============================================================================

type PaymentMethod string

const (
	MethodCash PaymentMethod = "cash"
	MethodBank PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool { return m == MethodCash || m == MethodBank }

// Payment is a recorded payment or reversal.
//
// INVARIANTS:
//   - Non-reversal: Amount > 0 and ReversedPaymentID is empty.
//   - Reversal: Amount < 0, IsReversal, ReversedPaymentID names exactly one
//     non-reversal payment.
//   - Allocation sums to |Amount| minus Unapplied.
//
// Allocation is the persisted audit record the paid-by-month replay reads back.
type Payment struct {
	ID                PaymentID
	TenantID          TenantID
	Amount            Money
	Method            PaymentMethod
	PaymentDate       time.Time
	Allocation        Allocation
	Unapplied         Money
	IsReversal        bool
	ReversedPaymentID PaymentID
	Reference         string
	Notes             string
	RecordedBy        string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// AllocationErr is set by storage when the persisted allocation could not
	// be decoded. Such a payment is skipped during replay.
	AllocationErr error
}

// =============================================================================
// TENANT / HOUSE - Fields of the surrounding records the engine reads
// =============================================================================

type Tenant struct {
	ID           TenantID
	HouseID      HouseID
	Name         string
	MoveInDate   time.Time
	MoveOutDate  *time.Time
	RentOverride *Money
	RentHistory  []RentHistoryEntry // entries with a non-house source
	CreatedAt    time.Time
}

type House struct {
	ID          HouseID
	Name        string
	MonthlyRent Money
	RentHistory []RentHistoryEntry // entries with SourceHouse
	CreatedAt   time.Time
}

// FallbackRent is the rent used for months no history entry covers: the
// tenant's explicit override when set, else the house's current rent.
func FallbackRent(t Tenant, h House) Money {
	if t.RentOverride != nil {
		return *t.RentOverride
	}
	return h.MonthlyRent
}
