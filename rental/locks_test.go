package rental

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTenantLocks_SerializesSameTenant(t *testing.T) {
	locks := NewTenantLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("tenant-1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.Len(), "idle tenants leave no entry behind")
}

func TestTenantLocks_IndependentTenants(t *testing.T) {
	locks := NewTenantLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, locks.Len())
}

func TestTenantLocks_UnlockTwiceIsSafe(t *testing.T) {
	locks := NewTenantLocks()
	unlock := locks.Lock("a")
	unlock()
	assert.NotPanics(t, unlock)
	assert.Equal(t, 0, locks.Len())
}
