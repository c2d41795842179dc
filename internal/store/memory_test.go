package store

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Atomic(ctx, func(ctx context.Context) error {
		return Write(ctx, "a", big.NewInt(5))
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, Write(ctx, "a", big.NewInt(9)))
		v, err := Read(ctx, s, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(9), v.Int64(), "reads see own writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int64())

	missing, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, missing.Sign())
}

func TestMemoryStore_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Atomic(ctx, func(ctx context.Context) error {
		if err := s.Atomic(ctx, func(ctx context.Context) error {
			return Write(ctx, "inner", big.NewInt(1))
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)

	v, _ := s.Get(ctx, "inner")
	assert.Zero(t, v.Sign(), "inner write rolled back with the outer transaction")
}

func TestMemoryStore_AfterCommitOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var fired []string

	_ = s.Atomic(ctx, func(ctx context.Context) error {
		AfterCommit(ctx, func() { fired = append(fired, "ok") })
		return nil
	})
	_ = s.Atomic(ctx, func(ctx context.Context) error {
		AfterCommit(ctx, func() { fired = append(fired, "failed") })
		return errors.New("rollback")
	})
	AfterCommit(ctx, func() { fired = append(fired, "immediate") })

	assert.Equal(t, []string{"ok", "immediate"}, fired)
}

func TestWrite_OutsideTransaction(t *testing.T) {
	assert.ErrorIs(t, Write(context.Background(), "k", big.NewInt(1)), ErrNoTransaction)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v := big.NewInt(3)
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context) error { return Write(ctx, "k", v) }))
	v.SetInt64(100)

	got, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(3), got.Int64())
	got.SetInt64(50)
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(3), again.Int64())
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(ctx, func(ctx context.Context) error {
				v, err := Read(ctx, s, "counter")
				if err != nil {
					return err
				}
				return Write(ctx, "counter", v.Add(v, big.NewInt(1)))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _ := s.Get(ctx, "counter")
	assert.Equal(t, int64(64), v.Int64())
}
