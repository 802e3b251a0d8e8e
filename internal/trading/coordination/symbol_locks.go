package coordination

import (
	"context"
	"sync"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// SymbolLocks hands out one mutual-exclusion slot per symbol. Matching
// loops and cancellations of the same symbol never overlap; different
// symbols proceed in parallel.
type SymbolLocks struct {
	mu    sync.Mutex
	slots map[models.Symbol]chan struct{}
}

func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{slots: make(map[models.Symbol]chan struct{})}
}

func (l *SymbolLocks) slot(symbol models.Symbol) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[symbol]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[symbol] = s
	}
	return s
}

// Acquire blocks until the symbol's slot is free or ctx is done. The
// returned release func must be called exactly once.
func (l *SymbolLocks) Acquire(ctx context.Context, symbol models.Symbol) (release func(), err error) {
	s := l.slot(symbol)
	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithLock runs fn while holding the symbol's slot.
func (l *SymbolLocks) WithLock(ctx context.Context, symbol models.Symbol, fn func() error) error {
	release, err := l.Acquire(ctx, symbol)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
