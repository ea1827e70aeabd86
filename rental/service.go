/*
service.go - Rent ledger write path

PURPOSE:
  Wraps the pure allocation engine with everything a write needs: per-tenant
  serialization, a read-plan-write transaction, logging, metrics and domain
  events. The engine decides; this package persists the decision.

INVARIANT:
  At most one allocation, reversal or edit runs per tenant at a time, and its
  snapshot, plan and write share one store transaction. A rejected request
  writes nothing.

WRITE SEQUENCE:
  1. Validate the request
  2. Lock the tenant (TenantLocks)
  3. WithTx: LoadSnapshot -> Plan* -> AppendPayment / ReplacePayment
  4. Unlock, then log skipped rows, count metrics, publish the event

  A failed publish is logged. The committed payment stands.

SEE ALSO:
  - ledger/engine.go: PlanPayment, PlanReversal, PlanEdit
  - ledger/store.go: TxStore
  - events/events.go: PaymentEvent
*/
package rental

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kakungulu256/rcms/events"
	"github.com/Kakungulu256/rcms/ledger"
	"github.com/Kakungulu256/rcms/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLookahead is the number of future months a payment may prepay.
const DefaultLookahead = 12

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store     ledger.TxStore
	locks     *TenantLocks
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	now       func() time.Time
	newID     func() string
	lookahead int
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.With(zap.String("component", "rental"))
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now. Tests pin the edit window with it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func WithLookahead(months int) Option {
	return func(s *Service) { s.lookahead = months }
}

func NewService(store ledger.TxStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		locks:     NewTenantLocks(),
		logger:    zap.NewNop(),
		publisher: events.Nop{},
		now:       time.Now,
		newID:     uuid.NewString,
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() ledger.TxStore { return s.store }

func (s *Service) Lookahead() int { return s.lookahead }

// =============================================================================
// REQUESTS
// =============================================================================

type RecordPaymentInput struct {
	TenantID    ledger.TenantID
	Amount      ledger.Money
	Method      ledger.PaymentMethod
	PaymentDate time.Time
	Reference   string
	Notes       string
	RecordedBy  string
}

type ReversePaymentInput struct {
	PaymentID ledger.PaymentID
	// ReversalDate defaults to today.
	ReversalDate time.Time
	Reason       string
	RecordedBy   string
}

// EditPaymentInput changes the editable fields of the latest payment. Nil
// fields keep their stored value.
type EditPaymentInput struct {
	PaymentID ledger.PaymentID
	Amount    *ledger.Money
	Method    *ledger.PaymentMethod
	Reference *string
	Notes     *string
}

// Result is a committed payment and the plan that produced it.
type Result struct {
	Payment ledger.Payment
	Plan    ledger.Plan
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// RecordPayment allocates a new payment oldest-unpaid-month first and stores
// it. Whatever the billing window cannot absorb is kept as Unapplied.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Result, error) {
	if err := validateRecord(in); err != nil {
		return nil, s.reject("record", err)
	}
	paidOn := dateOnly(in.PaymentDate)

	started := time.Now()
	unlock := s.locks.Lock(in.TenantID)
	var res Result
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		snap, err := ledger.LoadSnapshot(ctx, tx, in.TenantID)
		if err != nil {
			return err
		}
		plan, err := ledger.PlanPayment(snap, in.Amount, paidOn, s.lookahead)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		p := ledger.Payment{
			ID:          ledger.PaymentID(s.newID()),
			TenantID:    in.TenantID,
			Amount:      in.Amount,
			Method:      in.Method,
			PaymentDate: paidOn,
			Allocation:  plan.Result.Allocation,
			Unapplied:   plan.Result.Remaining,
			Reference:   strings.TrimSpace(in.Reference),
			Notes:       strings.TrimSpace(in.Notes),
			RecordedBy:  in.RecordedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.AppendPayment(ctx, p); err != nil {
			return fmt.Errorf("append payment: %w", err)
		}
		res = Result{Payment: p, Plan: plan}
		return nil
	})
	unlock()
	s.metrics.ObserveAllocation("record", started)
	if err != nil {
		return nil, s.reject("record", err)
	}

	s.reportSkipped(in.TenantID, res.Plan.Skipped)
	s.metrics.PaymentRecorded(string(in.Method))
	if res.Payment.Unapplied.IsPositive() {
		s.logger.Info("Payment exceeds billing window",
			zap.String("tenant_id", string(in.TenantID)),
			zap.String("payment_id", string(res.Payment.ID)),
			zap.String("unapplied", res.Payment.Unapplied.String()))
	}
	s.logger.Info("Payment recorded",
		zap.String("tenant_id", string(in.TenantID)),
		zap.String("payment_id", string(res.Payment.ID)),
		zap.String("amount", in.Amount.String()),
		zap.Any("allocation", res.Payment.Allocation.Strings()))
	s.publish(ctx, events.PaymentRecorded, res.Payment)
	return &res, nil
}

// ReversePayment appends a reversal row that unwinds the target's amount from
// the most recently paid months. A reversal the paid balance cannot fully
// absorb is still stored; the shortfall is kept as Unapplied and reported.
func (s *Service) ReversePayment(ctx context.Context, in ReversePaymentInput) (*Result, error) {
	if in.PaymentID == "" {
		return nil, s.reject("reverse", &ledger.ValidationError{Field: "payment_id", Message: "required"})
	}
	target, err := s.store.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if target == nil {
		return nil, s.reject("reverse", fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, in.PaymentID))
	}

	on := in.ReversalDate
	if on.IsZero() {
		on = s.now()
	}
	on = dateOnly(on)

	started := time.Now()
	unlock := s.locks.Lock(target.TenantID)
	var res Result
	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		existing, err := tx.ReversalOf(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("find reversal: %w", err)
		}
		if existing != nil {
			return ledger.CheckReversible(*target, existing)
		}
		snap, err := ledger.LoadSnapshot(ctx, tx, target.TenantID)
		if err != nil {
			return err
		}
		plan, err := ledger.PlanReversal(snap, in.PaymentID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		p := ledger.Payment{
			ID:                ledger.PaymentID(s.newID()),
			TenantID:          target.TenantID,
			Amount:            target.Amount.Abs().Neg(),
			Method:            target.Method,
			PaymentDate:       on,
			Allocation:        plan.Result.Allocation,
			Unapplied:         plan.Result.Remaining,
			IsReversal:        true,
			ReversedPaymentID: target.ID,
			Reference:         target.Reference,
			Notes:             strings.TrimSpace(in.Reason),
			RecordedBy:        in.RecordedBy,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.AppendPayment(ctx, p); err != nil {
			return fmt.Errorf("append reversal: %w", err)
		}
		res = Result{Payment: p, Plan: plan}
		return nil
	})
	unlock()
	s.metrics.ObserveAllocation("reverse", started)
	if err != nil {
		return nil, s.reject("reverse", err)
	}

	s.reportSkipped(target.TenantID, res.Plan.Skipped)
	unabsorbed := res.Payment.Unapplied.IsPositive()
	s.metrics.PaymentReversed(unabsorbed)
	if unabsorbed {
		s.logger.Warn("Reversal not fully absorbed",
			zap.String("tenant_id", string(target.TenantID)),
			zap.String("payment_id", string(res.Payment.ID)),
			zap.String("reversed_payment_id", string(target.ID)),
			zap.String("shortfall", res.Payment.Unapplied.String()))
	}
	s.logger.Info("Payment reversed",
		zap.String("tenant_id", string(target.TenantID)),
		zap.String("payment_id", string(res.Payment.ID)),
		zap.String("reversed_payment_id", string(target.ID)),
		zap.Any("allocation", res.Payment.Allocation.Strings()))
	s.publish(ctx, events.PaymentReversed, res.Payment)
	return &res, nil
}

// EditPayment rewrites the tenant's most recent payment during the month it
// was made. The allocation is recomputed as if the payment were recorded
// fresh with the new amount.
func (s *Service) EditPayment(ctx context.Context, in EditPaymentInput) (*Result, error) {
	if err := validateEdit(in); err != nil {
		return nil, s.reject("edit", err)
	}
	target, err := s.store.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if target == nil {
		return nil, s.reject("edit", fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, in.PaymentID))
	}

	started := time.Now()
	unlock := s.locks.Lock(target.TenantID)
	var res Result
	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		snap, err := ledger.LoadSnapshot(ctx, tx, target.TenantID)
		if err != nil {
			return err
		}
		current, ok := findPayment(snap.Payments, in.PaymentID)
		if !ok {
			return fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, in.PaymentID)
		}
		amount := current.Amount
		if in.Amount != nil {
			amount = *in.Amount
		}

		now := s.now()
		plan, err := ledger.PlanEdit(snap, in.PaymentID, amount, now, s.lookahead)
		if err != nil {
			return err
		}

		p := current
		p.Amount = amount
		p.Allocation = plan.Result.Allocation
		p.Unapplied = plan.Result.Remaining
		if in.Method != nil {
			p.Method = *in.Method
		}
		if in.Reference != nil {
			p.Reference = strings.TrimSpace(*in.Reference)
		}
		if in.Notes != nil {
			p.Notes = strings.TrimSpace(*in.Notes)
		}
		p.UpdatedAt = now.UTC()
		if err := tx.ReplacePayment(ctx, p); err != nil {
			return fmt.Errorf("replace payment: %w", err)
		}
		res = Result{Payment: p, Plan: plan}
		return nil
	})
	unlock()
	s.metrics.ObserveAllocation("edit", started)
	if err != nil {
		return nil, s.reject("edit", err)
	}

	s.reportSkipped(target.TenantID, res.Plan.Skipped)
	s.metrics.PaymentEdited()
	s.logger.Info("Payment edited",
		zap.String("tenant_id", string(target.TenantID)),
		zap.String("payment_id", string(res.Payment.ID)),
		zap.String("amount", res.Payment.Amount.String()),
		zap.Any("allocation", res.Payment.Allocation.Strings()))
	s.publish(ctx, events.PaymentEdited, res.Payment)
	return &res, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Preview computes the allocation a payment would receive without writing.
func (s *Service) Preview(ctx context.Context, tenantID ledger.TenantID, amount ledger.Money, paidOn time.Time) (ledger.Plan, error) {
	if paidOn.IsZero() {
		paidOn = s.now()
	}
	snap, err := ledger.LoadSnapshot(ctx, s.store, tenantID)
	if err != nil {
		return ledger.Plan{}, err
	}
	plan, err := ledger.PlanPayment(snap, amount, dateOnly(paidOn), s.lookahead)
	if err != nil {
		return ledger.Plan{}, err
	}
	s.reportSkipped(tenantID, plan.Skipped)
	return plan, nil
}

// Statement reports rent, paid and due per month through the given date
// (today when zero).
func (s *Service) Statement(ctx context.Context, tenantID ledger.TenantID, through time.Time) (ledger.Statement, error) {
	if through.IsZero() {
		through = s.now()
	}
	snap, err := ledger.LoadSnapshot(ctx, s.store, tenantID)
	if err != nil {
		return ledger.Statement{}, err
	}
	st := ledger.BuildStatement(snap, through)
	s.reportSkipped(tenantID, st.Skipped)
	return st, nil
}

func (s *Service) ListPayments(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTenantNotFound, tenantID)
	}
	return s.store.PaymentsByTenant(ctx, tenantID)
}

func (s *Service) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, id)
	}
	return p, nil
}

// AuditReport is the outcome of replaying one tenant's ledger.
type AuditReport struct {
	TenantID   ledger.TenantID
	Payments   int
	Paid       ledger.MonthAmounts
	Skipped    []ledger.SkippedPayment
	Unabsorbed []ledger.PaymentID
}

// Audit replays the tenant's payments from storage and reports rows the
// replay ignored and reversals stored with a shortfall.
func (s *Service) Audit(ctx context.Context, tenantID ledger.TenantID) (AuditReport, error) {
	payments, err := s.store.PaymentsByTenant(ctx, tenantID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("list payments: %w", err)
	}
	replay := ledger.Replay(payments)
	report := AuditReport{TenantID: tenantID, Payments: len(payments), Paid: replay.Paid, Skipped: replay.Skipped}
	for _, p := range payments {
		if p.IsReversal && p.Unapplied.IsPositive() {
			report.Unabsorbed = append(report.Unabsorbed, p.ID)
		}
	}
	s.reportSkipped(tenantID, replay.Skipped)
	return report, nil
}

// =============================================================================
// HOUSES / TENANTS
// =============================================================================

func (s *Service) CreateHouse(ctx context.Context, h ledger.House) (*ledger.House, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if h.MonthlyRent.IsNegative() {
		return nil, &ledger.ValidationError{Field: "monthly_rent", Message: "must not be negative"}
	}
	for _, e := range h.RentHistory {
		if err := validateEntry(e, ledger.SourceHouse); err != nil {
			return nil, err
		}
	}
	if h.ID == "" {
		h.ID = ledger.HouseID(s.newID())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now().UTC()
	}
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		existing, err := tx.GetHouse(ctx, h.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateHouse, h.ID)
		}
		if err := tx.SaveHouse(ctx, h); err != nil {
			return fmt.Errorf("save house: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Service) GetHouse(ctx context.Context, id ledger.HouseID) (*ledger.House, error) {
	h, err := s.store.GetHouse(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrHouseNotFound, id)
	}
	return h, nil
}

func (s *Service) CreateTenant(ctx context.Context, t ledger.Tenant) (*ledger.Tenant, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if t.HouseID == "" {
		return nil, &ledger.ValidationError{Field: "house_id", Message: "required"}
	}
	if t.MoveInDate.IsZero() {
		return nil, &ledger.ValidationError{Field: "move_in_date", Message: "required"}
	}
	t.MoveInDate = dateOnly(t.MoveInDate)
	if t.MoveOutDate != nil {
		out := dateOnly(*t.MoveOutDate)
		if out.Before(t.MoveInDate) {
			return nil, &ledger.ValidationError{Field: "move_out_date", Message: "must not be before move_in_date"}
		}
		t.MoveOutDate = &out
	}
	if t.RentOverride != nil && t.RentOverride.IsNegative() {
		return nil, &ledger.ValidationError{Field: "rent_override", Message: "must not be negative"}
	}
	for _, e := range t.RentHistory {
		if err := validateEntry(e, ledger.SourceOverride, ledger.SourceManual); err != nil {
			return nil, err
		}
	}
	if t.ID == "" {
		t.ID = ledger.TenantID(s.newID())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		house, err := tx.GetHouse(ctx, t.HouseID)
		if err != nil {
			return err
		}
		if house == nil {
			return fmt.Errorf("%w: %s", ledger.ErrHouseNotFound, t.HouseID)
		}
		existing, err := tx.GetTenant(ctx, t.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateTenant, t.ID)
		}
		return tx.SaveTenant(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) GetTenant(ctx context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTenantNotFound, id)
	}
	return t, nil
}

func (s *Service) ListTenants(ctx context.Context) ([]ledger.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// AppendHouseRentEntry records a house-wide rate change.
func (s *Service) AppendHouseRentEntry(ctx context.Context, id ledger.HouseID, e ledger.RentHistoryEntry) (*ledger.House, error) {
	if e.Source == "" {
		e.Source = ledger.SourceHouse
	}
	if err := validateEntry(e, ledger.SourceHouse); err != nil {
		return nil, err
	}
	e.EffectiveDate = dateOnly(e.EffectiveDate)

	var out ledger.House
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		h, err := tx.GetHouse(ctx, id)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%w: %s", ledger.ErrHouseNotFound, id)
		}
		h.RentHistory = append(h.RentHistory, e)
		out = *h
		return tx.SaveHouse(ctx, *h)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("House rent entry appended",
		zap.String("house_id", string(id)),
		zap.String("effective_date", e.EffectiveDate.Format("2006-01-02")),
		zap.String("amount", e.Amount.String()))
	return &out, nil
}

// AppendTenantRentEntry records a tenant override or manual rate. It takes
// the tenant lock so a concurrent allocation never sees half a schedule.
func (s *Service) AppendTenantRentEntry(ctx context.Context, id ledger.TenantID, e ledger.RentHistoryEntry) (*ledger.Tenant, error) {
	if e.Source == "" {
		e.Source = ledger.SourceOverride
	}
	if err := validateEntry(e, ledger.SourceOverride, ledger.SourceManual); err != nil {
		return nil, err
	}
	e.EffectiveDate = dateOnly(e.EffectiveDate)

	unlock := s.locks.Lock(id)
	defer unlock()

	var out ledger.Tenant
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		t, err := tx.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: %s", ledger.ErrTenantNotFound, id)
		}
		t.RentHistory = append(t.RentHistory, e)
		out = *t
		return tx.SaveTenant(ctx, *t)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Tenant rent entry appended",
		zap.String("tenant_id", string(id)),
		zap.String("source", string(e.Source)),
		zap.String("effective_date", e.EffectiveDate.Format("2006-01-02")),
		zap.String("amount", e.Amount.String()))
	return &out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateRecord(in RecordPaymentInput) error {
	if in.TenantID == "" {
		return &ledger.ValidationError{Field: "tenant_id", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", in.Amount)}
	}
	if !in.Method.Valid() {
		return &ledger.ValidationError{Field: "method", Message: fmt.Sprintf("must be cash or bank, got %q", in.Method)}
	}
	if in.PaymentDate.IsZero() {
		return &ledger.ValidationError{Field: "payment_date", Message: "required"}
	}
	return nil
}

func validateEdit(in EditPaymentInput) error {
	if in.PaymentID == "" {
		return &ledger.ValidationError{Field: "payment_id", Message: "required"}
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", *in.Amount)}
	}
	if in.Method != nil && !in.Method.Valid() {
		return &ledger.ValidationError{Field: "method", Message: fmt.Sprintf("must be cash or bank, got %q", *in.Method)}
	}
	return nil
}

func validateEntry(e ledger.RentHistoryEntry, allowed ...ledger.RentSource) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, src := range allowed {
		if e.Source == src {
			return nil
		}
	}
	return &ledger.ValidationError{Field: "source", Message: fmt.Sprintf("%q is not allowed here", e.Source)}
}

func findPayment(payments []ledger.Payment, id ledger.PaymentID) (ledger.Payment, bool) {
	for _, p := range payments {
		if p.ID == id {
			return p, true
		}
	}
	return ledger.Payment{}, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// reject counts a refused write and passes the error through.
func (s *Service) reject(op string, err error) error {
	var (
		conflict *ledger.ConflictError
		code     string
	)
	switch {
	case errors.As(err, &conflict):
		code = conflict.Code
	case errors.Is(err, ledger.ErrAlreadyReversed):
		code = ledger.CodeAlreadyReversed
	case errors.Is(err, ledger.ErrValidation):
		code = "validation_error"
	case ledger.IsNotFound(err):
		code = "not_found"
	default:
		s.logger.Error("Ledger write failed", zap.String("operation", op), zap.Error(err))
		return err
	}
	s.metrics.Rejected(code)
	s.logger.Info("Ledger write rejected",
		zap.String("operation", op),
		zap.String("code", code),
		zap.Error(err))
	return err
}

func (s *Service) reportSkipped(tenantID ledger.TenantID, skipped []ledger.SkippedPayment) {
	if len(skipped) == 0 {
		return
	}
	var corrupt, duplicate int
	for _, sp := range skipped {
		switch sp.Reason {
		case ledger.SkipCorruptAllocation:
			corrupt++
		case ledger.SkipDuplicateReversal:
			duplicate++
		}
		s.logger.Warn("Payment skipped during replay",
			zap.String("tenant_id", string(tenantID)),
			zap.String("payment_id", string(sp.PaymentID)),
			zap.String("reason", string(sp.Reason)),
			zap.NamedError("cause", sp.Err))
	}
	s.metrics.Skipped(corrupt, duplicate)
}

func (s *Service) publish(ctx context.Context, typ events.EventType, p ledger.Payment) {
	event := events.NewPaymentEvent(typ, p, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish payment event",
			zap.String("type", string(typ)),
			zap.String("payment_id", string(p.ID)),
			zap.Error(err))
	}
}
