package rental

import (
	"sync"

	"github.com/Kakungulu256/rcms/ledger"
)

// TenantLocks serializes write-path work per tenant. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[ledger.TenantID]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[ledger.TenantID]*tenantLock)}
}

// Lock blocks until the tenant is free and returns the matching unlock.
func (l *TenantLocks) Lock(id ledger.TenantID) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &tenantLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			tl.mu.Unlock()

			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many tenants currently have a lock entry.
func (l *TenantLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
