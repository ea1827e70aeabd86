/*
store.go - Persistence interfaces for houses, tenants and payments

PURPOSE:
  Defines the boundary between the engine's write path and the database.
  The engine itself never touches a Store: the write path reads a Snapshot
  through these interfaces, plans, then writes the resulting payment.

APPEND-ONLY CONTRACT:
  Payments are appended. The only rewrite is ReplacePayment, used by the
  bounded latest-payment edit; every other correction is a reversal row.
  A payment may have at most one reversal: AppendPayment returns
  ErrAlreadyReversed when a second reversal of the same payment is written.

MISSING ROWS:
  Get* methods return (nil, nil) when the row does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with embedded migrations
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - rental/service.go: The write path using TxStore
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

// PaymentReader is the injected source of a tenant's payment history.
type PaymentReader interface {
	// PaymentsByTenant returns every payment and reversal of the tenant,
	// ordered by payment date, creation time, then ID. Rows whose allocation
	// could not be decoded are returned with AllocationErr set.
	PaymentsByTenant(ctx context.Context, tenantID TenantID) ([]Payment, error)
}

type Store interface {
	PaymentReader

	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)

	// ReversalOf returns the reversal of id, if any.
	ReversalOf(ctx context.Context, id PaymentID) (*Payment, error)

	AppendPayment(ctx context.Context, p Payment) error

	// ReplacePayment overwrites an existing payment. Only the edit path uses it.
	ReplacePayment(ctx context.Context, p Payment) error

	SaveHouse(ctx context.Context, h House) error
	GetHouse(ctx context.Context, id HouseID) (*House, error)

	SaveTenant(ctx context.Context, t Tenant) error
	GetTenant(ctx context.Context, id TenantID) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore runs a read-plan-write sequence atomically.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// LoadSnapshot reads the tenant, its house and its payments.
func LoadSnapshot(ctx context.Context, s Store, tenantID TenantID) (Snapshot, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	if tenant == nil {
		return Snapshot{}, ErrTenantNotFound
	}
	house, err := s.GetHouse(ctx, tenant.HouseID)
	if err != nil {
		return Snapshot{}, err
	}
	if house == nil {
		return Snapshot{}, ErrHouseNotFound
	}
	payments, err := s.PaymentsByTenant(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Tenant: *tenant, House: *house, Payments: payments}, nil
}
