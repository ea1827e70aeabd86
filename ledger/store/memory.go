// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Kakungulu256/rcms/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	houses    map[ledger.HouseID]ledger.House
	tenants   map[ledger.TenantID]ledger.Tenant
	payments  map[ledger.PaymentID]ledger.Payment
	reversals map[ledger.PaymentID]ledger.PaymentID // target -> reversal
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.houses = make(map[ledger.HouseID]ledger.House)
	m.tenants = make(map[ledger.TenantID]ledger.Tenant)
	m.payments = make(map[ledger.PaymentID]ledger.Payment)
	m.reversals = make(map[ledger.PaymentID]ledger.PaymentID)
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *Memory) PaymentsByTenant(_ context.Context, tenantID ledger.TenantID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentsByTenantLocked(tenantID), nil
}

func (m *Memory) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPaymentLocked(id), nil
}

func (m *Memory) ReversalOf(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reversalOfLocked(id), nil
}

func (m *Memory) AppendPayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(p)
}

func (m *Memory) ReplacePayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(p)
}

func (m *Memory) SaveHouse(_ context.Context, h ledger.House) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.houses[h.ID] = copyHouse(h)
	return nil
}

func (m *Memory) GetHouse(_ context.Context, id ledger.HouseID) (*ledger.House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getHouseLocked(id), nil
}

func (m *Memory) SaveTenant(_ context.Context, t ledger.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = copyTenant(t)
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTenantLocked(id), nil
}

func (m *Memory) ListTenants(_ context.Context) ([]ledger.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTenantsLocked(), nil
}

// =============================================================================
// LOCKED HELPERS - Callers hold mu
// =============================================================================

func (m *Memory) paymentsByTenantLocked(tenantID ledger.TenantID) []ledger.Payment {
	var result []ledger.Payment
	for _, p := range m.payments {
		if p.TenantID == tenantID {
			result = append(result, copyPayment(p))
		}
	}
	ledger.SortPayments(result)
	return result
}

func (m *Memory) getPaymentLocked(id ledger.PaymentID) *ledger.Payment {
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	cp := copyPayment(p)
	return &cp
}

func (m *Memory) reversalOfLocked(id ledger.PaymentID) *ledger.Payment {
	rid, ok := m.reversals[id]
	if !ok {
		return nil
	}
	return m.getPaymentLocked(rid)
}

func (m *Memory) appendLocked(p ledger.Payment) error {
	if _, exists := m.payments[p.ID]; exists {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicatePayment, p.ID)
	}
	if p.IsReversal {
		if _, exists := m.reversals[p.ReversedPaymentID]; exists {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyReversed, p.ReversedPaymentID)
		}
		m.reversals[p.ReversedPaymentID] = p.ID
	}
	m.payments[p.ID] = copyPayment(p)
	return nil
}

func (m *Memory) replaceLocked(p ledger.Payment) error {
	if _, exists := m.payments[p.ID]; !exists {
		return fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, p.ID)
	}
	m.payments[p.ID] = copyPayment(p)
	return nil
}

func (m *Memory) getHouseLocked(id ledger.HouseID) *ledger.House {
	h, ok := m.houses[id]
	if !ok {
		return nil
	}
	cp := copyHouse(h)
	return &cp
}

func (m *Memory) getTenantLocked(id ledger.TenantID) *ledger.Tenant {
	t, ok := m.tenants[id]
	if !ok {
		return nil
	}
	cp := copyTenant(t)
	return &cp
}

func (m *Memory) listTenantsLocked() []ledger.Tenant {
	result := make([]ledger.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		result = append(result, copyTenant(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	houses    map[ledger.HouseID]ledger.House
	tenants   map[ledger.TenantID]ledger.Tenant
	payments  map[ledger.PaymentID]ledger.Payment
	reversals map[ledger.PaymentID]ledger.PaymentID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		houses:    make(map[ledger.HouseID]ledger.House, len(m.houses)),
		tenants:   make(map[ledger.TenantID]ledger.Tenant, len(m.tenants)),
		payments:  make(map[ledger.PaymentID]ledger.Payment, len(m.payments)),
		reversals: make(map[ledger.PaymentID]ledger.PaymentID, len(m.reversals)),
	}
	for k, v := range m.houses {
		s.houses[k] = v
	}
	for k, v := range m.tenants {
		s.tenants[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	for k, v := range m.reversals {
		s.reversals[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.houses = s.houses
	m.tenants = s.tenants
	m.payments = s.payments
	m.reversals = s.reversals
}

// txMemoryView runs under the parent's write lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) PaymentsByTenant(_ context.Context, id ledger.TenantID) ([]ledger.Payment, error) {
	return tv.parent.paymentsByTenantLocked(id), nil
}

func (tv *txMemoryView) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return tv.parent.getPaymentLocked(id), nil
}

func (tv *txMemoryView) ReversalOf(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return tv.parent.reversalOfLocked(id), nil
}

func (tv *txMemoryView) AppendPayment(_ context.Context, p ledger.Payment) error {
	return tv.parent.appendLocked(p)
}

func (tv *txMemoryView) ReplacePayment(_ context.Context, p ledger.Payment) error {
	return tv.parent.replaceLocked(p)
}

func (tv *txMemoryView) SaveHouse(_ context.Context, h ledger.House) error {
	tv.parent.houses[h.ID] = copyHouse(h)
	return nil
}

func (tv *txMemoryView) GetHouse(_ context.Context, id ledger.HouseID) (*ledger.House, error) {
	return tv.parent.getHouseLocked(id), nil
}

func (tv *txMemoryView) SaveTenant(_ context.Context, t ledger.Tenant) error {
	tv.parent.tenants[t.ID] = copyTenant(t)
	return nil
}

func (tv *txMemoryView) GetTenant(_ context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	return tv.parent.getTenantLocked(id), nil
}

func (tv *txMemoryView) ListTenants(_ context.Context) ([]ledger.Tenant, error) {
	return tv.parent.listTenantsLocked(), nil
}

// =============================================================================
// COPIES - Stored values never alias caller memory
// =============================================================================

func copyPayment(p ledger.Payment) ledger.Payment {
	if p.Allocation != nil {
		alloc := make(ledger.Allocation, len(p.Allocation))
		for k, v := range p.Allocation {
			alloc[k] = v
		}
		p.Allocation = alloc
	}
	return p
}

func copyHouse(h ledger.House) ledger.House {
	h.RentHistory = append([]ledger.RentHistoryEntry(nil), h.RentHistory...)
	return h
}

func copyTenant(t ledger.Tenant) ledger.Tenant {
	t.RentHistory = append([]ledger.RentHistoryEntry(nil), t.RentHistory...)
	if t.MoveOutDate != nil {
		d := *t.MoveOutDate
		t.MoveOutDate = &d
	}
	if t.RentOverride != nil {
		o := *t.RentOverride
		t.RentOverride = &o
	}
	return t
}
