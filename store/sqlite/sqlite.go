/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists houses, tenants and the append-only payment stream. The engine
  reads tenant snapshots through this store and writes planned payments back
  inside one database transaction.

APPEND-ONLY ENFORCEMENT:
  - Payments are inserted; the only UPDATE is ReplacePayment (bounded edit)
  - No DELETE statements on payments
  - Corrections via reversal rows only

KEY TABLES:
  houses:   Building-level rent and house-sourced rent history
  tenants:  Move-in/out, rent override, override/manual rent history
  payments: Payments and reversals with their allocation_json audit record

INDEXES:
  - idx_payments_tenant_date: Replay hot path
  - idx_payments_unique_reversal: At most one reversal per payment

CORRUPT ROWS:
  A payment whose allocation_json cannot be decoded is still returned, with
  AllocationErr set, so one bad row never makes a tenant unreadable.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection.
  WithTx holds the write lock for the whole read-plan-write sequence.

USAGE:
  store, err := sqlite.New("./data/rcms.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is versioned with golang-migrate (migrations/*.sql, embedded) and
  applied on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - factory/rent_history.go: Rent-history blob codec
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Kakungulu256/rcms/factory"
	"github.com/Kakungulu256/rcms/ledger"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reset deletes all data. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payments", "tenants", "houses"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) PaymentsByTenant(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsByTenant(ctx, s.db, tenantID)
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

func (s *Store) ReversalOf(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reversalOf(ctx, s.db, id)
}

func (s *Store) AppendPayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPayment(ctx, s.db, p)
}

func (s *Store) ReplacePayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replacePayment(ctx, s.db, p)
}

const paymentColumns = `id, tenant_id, amount, method, payment_date, allocation_json, unapplied,
	is_reversal, reversed_payment_id, reference, notes, recorded_by, created_at, updated_at`

func paymentsByTenant(ctx context.Context, q querier, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = ? ORDER BY payment_date, created_at, id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payments: %w", err)
	}
	ledger.SortPayments(payments)
	return payments, nil
}

func getPayment(ctx context.Context, q querier, id ledger.PaymentID) (*ledger.Payment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func reversalOf(ctx context.Context, q querier, id ledger.PaymentID) (*ledger.Payment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reversed_payment_id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func appendPayment(ctx context.Context, q querier, p ledger.Payment) error {
	alloc, err := p.Allocation.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.TenantID,
		p.Amount.String(),
		p.Method,
		p.PaymentDate.Format(dateLayout),
		string(alloc),
		p.Unapplied.String(),
		p.IsReversal,
		nullString(string(p.ReversedPaymentID)),
		nullString(p.Reference),
		nullString(p.Notes),
		nullString(p.RecordedBy),
		formatTimestamp(p.CreatedAt),
		formatTimestamp(p.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrTenantNotFound, p.TenantID)
		}
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "reversed_payment_id") {
				return fmt.Errorf("%w: %s", ledger.ErrAlreadyReversed, p.ReversedPaymentID)
			}
			return fmt.Errorf("%w: %s", ledger.ErrDuplicatePayment, p.ID)
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func replacePayment(ctx context.Context, q querier, p ledger.Payment) error {
	alloc, err := p.Allocation.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE payments
		SET amount = ?, method = ?, allocation_json = ?, unapplied = ?,
		    reference = ?, notes = ?, updated_at = ?
		WHERE id = ? AND is_reversal = 0`,
		p.Amount.String(),
		p.Method,
		string(alloc),
		p.Unapplied.String(),
		nullString(p.Reference),
		nullString(p.Notes),
		formatTimestamp(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to replace payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to replace payment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, p.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (ledger.Payment, error) {
	var (
		p                                  ledger.Payment
		amount, unapplied, method, payDate string
		allocJSON, createdAt, updatedAt    string
		reversedID, ref, notes, recordedBy sql.NullString
	)
	err := row.Scan(&p.ID, &p.TenantID, &amount, &method, &payDate, &allocJSON, &unapplied,
		&p.IsReversal, &reversedID, &ref, &notes, &recordedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	if p.Amount, err = ledger.ParseMoney(amount); err != nil {
		return p, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	if p.Unapplied, err = ledger.ParseMoney(unapplied); err != nil {
		return p, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	if p.PaymentDate, err = time.Parse(dateLayout, payDate); err != nil {
		return p, fmt.Errorf("payment %s: invalid payment_date: %w", p.ID, err)
	}
	p.Method = ledger.PaymentMethod(method)
	p.ReversedPaymentID = ledger.PaymentID(reversedID.String)
	p.Reference = ref.String
	p.Notes = notes.String
	p.RecordedBy = recordedBy.String
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)

	p.Allocation, p.AllocationErr = ledger.ParseAllocation(allocJSON)
	if p.AllocationErr != nil {
		p.Allocation = ledger.Allocation{}
	}
	return p, nil
}

// =============================================================================
// HOUSES
// =============================================================================

func (s *Store) SaveHouse(ctx context.Context, h ledger.House) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHouse(ctx, s.db, h)
}

func (s *Store) GetHouse(ctx context.Context, id ledger.HouseID) (*ledger.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHouse(ctx, s.db, id)
}

func saveHouse(ctx context.Context, q querier, h ledger.House) error {
	history, err := factory.MarshalRentHistory(h.RentHistory)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO houses (id, name, monthly_rent, rent_history_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			monthly_rent = excluded.monthly_rent,
			rent_history_json = excluded.rent_history_json`,
		h.ID, h.Name, h.MonthlyRent.String(), history, formatTimestamp(h.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save house: %w", err)
	}
	return nil
}

func getHouse(ctx context.Context, q querier, id ledger.HouseID) (*ledger.House, error) {
	var (
		h                        ledger.House
		rent, history, createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, monthly_rent, rent_history_json, created_at FROM houses WHERE id = ?`, id,
	).Scan(&h.ID, &h.Name, &rent, &history, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get house: %w", err)
	}

	if h.MonthlyRent, err = ledger.ParseMoney(rent); err != nil {
		return nil, fmt.Errorf("house %s: %w", id, err)
	}
	if h.RentHistory, err = factory.ParseRentHistory(history); err != nil {
		return nil, fmt.Errorf("house %s: %w", id, err)
	}
	h.CreatedAt = parseTimestamp(createdAt)
	return &h, nil
}

// =============================================================================
// TENANTS
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, t ledger.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTenant(ctx, s.db, t)
}

func (s *Store) GetTenant(ctx context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTenant(ctx, s.db, id)
}

func (s *Store) ListTenants(ctx context.Context) ([]ledger.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTenants(ctx, s.db)
}

const tenantColumns = `id, house_id, name, move_in_date, move_out_date, rent_override, rent_history_json, created_at`

func saveTenant(ctx context.Context, q querier, t ledger.Tenant) error {
	history, err := factory.MarshalRentHistory(t.RentHistory)
	if err != nil {
		return err
	}
	var moveOut, override sql.NullString
	if t.MoveOutDate != nil {
		moveOut = nullString(t.MoveOutDate.Format(dateLayout))
	}
	if t.RentOverride != nil {
		override = nullString(t.RentOverride.String())
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			house_id = excluded.house_id,
			name = excluded.name,
			move_in_date = excluded.move_in_date,
			move_out_date = excluded.move_out_date,
			rent_override = excluded.rent_override,
			rent_history_json = excluded.rent_history_json`,
		t.ID, t.HouseID, t.Name, t.MoveInDate.Format(dateLayout), moveOut, override, history, formatTimestamp(t.CreatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrHouseNotFound, t.HouseID)
		}
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func getTenant(ctx context.Context, q querier, id ledger.TenantID) (*ledger.Tenant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listTenants(ctx context.Context, q querier) ([]ledger.Tenant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []ledger.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(row scanner) (ledger.Tenant, error) {
	var (
		t                          ledger.Tenant
		moveIn, history, createdAt string
		moveOut, override          sql.NullString
	)
	err := row.Scan(&t.ID, &t.HouseID, &t.Name, &moveIn, &moveOut, &override, &history, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("failed to scan tenant: %w", err)
	}

	if t.MoveInDate, err = time.Parse(dateLayout, moveIn); err != nil {
		return t, fmt.Errorf("tenant %s: invalid move_in_date: %w", t.ID, err)
	}
	if moveOut.Valid {
		d, err := time.Parse(dateLayout, moveOut.String)
		if err != nil {
			return t, fmt.Errorf("tenant %s: invalid move_out_date: %w", t.ID, err)
		}
		t.MoveOutDate = &d
	}
	if override.Valid {
		m, err := ledger.ParseMoney(override.String)
		if err != nil {
			return t, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		t.RentOverride = &m
	}
	if t.RentHistory, err = factory.ParseRentHistory(history); err != nil {
		return t, fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	t.CreatedAt = parseTimestamp(createdAt)
	return t, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open transaction. It takes no locks:
// WithTx already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) PaymentsByTenant(ctx context.Context, id ledger.TenantID) ([]ledger.Payment, error) {
	return paymentsByTenant(ctx, ts.tx, id)
}

func (ts *txStore) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return getPayment(ctx, ts.tx, id)
}

func (ts *txStore) ReversalOf(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return reversalOf(ctx, ts.tx, id)
}

func (ts *txStore) AppendPayment(ctx context.Context, p ledger.Payment) error {
	return appendPayment(ctx, ts.tx, p)
}

func (ts *txStore) ReplacePayment(ctx context.Context, p ledger.Payment) error {
	return replacePayment(ctx, ts.tx, p)
}

func (ts *txStore) SaveHouse(ctx context.Context, h ledger.House) error {
	return saveHouse(ctx, ts.tx, h)
}

func (ts *txStore) GetHouse(ctx context.Context, id ledger.HouseID) (*ledger.House, error) {
	return getHouse(ctx, ts.tx, id)
}

func (ts *txStore) SaveTenant(ctx context.Context, t ledger.Tenant) error {
	return saveTenant(ctx, ts.tx, t)
}

func (ts *txStore) GetTenant(ctx context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	return getTenant(ctx, ts.tx, id)
}

func (ts *txStore) ListTenants(ctx context.Context) ([]ledger.Tenant, error) {
	return listTenants(ctx, ts.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
