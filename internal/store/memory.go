package store

import (
	"context"
	"math/big"
	"sync"
)

// MemoryStore serialises transactions behind one writer lock; reads of committed state proceed concurrently.
type MemoryStore struct {
	writer sync.Mutex
	mu     sync.RWMutex
	cells  map[string]*big.Int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cells: make(map[string]*big.Int)}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	s.writer.Lock()
	tx := &memoryTx{store: s, writes: make(map[string]*big.Int)}
	err := func() (err error) {
		defer s.writer.Unlock()
		if err = fn(WithTx(ctx, tx)); err != nil {
			return err
		}
		s.mu.Lock()
		for k, v := range tx.writes {
			s.cells[k] = v
		}
		s.mu.Unlock()
		return nil
	}()
	if err != nil {
		return err
	}
	tx.hooks.run()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyInt(s.cells[key]), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	writes map[string]*big.Int
	hooks  hooks
}

func (t *memoryTx) Get(ctx context.Context, key string) (*big.Int, error) {
	if v, ok := t.writes[key]; ok {
		return copyInt(v), nil
	}
	return t.store.Get(ctx, key)
}

func (t *memoryTx) Set(_ context.Context, key string, value *big.Int) error {
	t.writes[key] = copyInt(value)
	return nil
}

func (t *memoryTx) AfterCommit(fn func()) {
	t.hooks.add(fn)
}
