// Concurrency tests for the ledger: many goroutines debiting or locking the
// same row must never overdraw it.

package bookkeeper

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
	"github.com/Aidin1998/pincex_spot/testutil"
)

func TestConcurrentDebitNeverOverdraws(t *testing.T) {
	s, db := setupTestService(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "100", nil)

	var ok, rejected atomic.Int64
	wg := sync.WaitGroup{}
	n := 150
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Debit(ctx, user.ID, dec("1"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errors.ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("debit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 100 || rejected.Load() != 50 {
		t.Errorf("expected 100 debits and 50 rejections, got %d and %d", ok.Load(), rejected.Load())
	}
	testutil.AssertDecimal(t, "0", testutil.ReloadUser(t, db, user.ID).Balance)
}

func TestConcurrentLockUnlock(t *testing.T) {
	s, db := setupTestService(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, db, "0", map[models.Symbol]string{models.SymbolETH: "50"})

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Lock(ctx, user.ID, models.SymbolETH, dec("1")); err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			if err := s.Unlock(ctx, user.ID, models.SymbolETH, dec("1")); err != nil {
				t.Errorf("unlock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	a := testutil.ReloadAsset(t, db, user.ID, models.SymbolETH)
	testutil.AssertDecimal(t, "50", a.Amount)
	testutil.AssertDecimal(t, "0", a.LockedAmount)
}
