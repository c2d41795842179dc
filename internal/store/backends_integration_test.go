//go:build integration

package store

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/GoPolymarket/intentgate/internal/pkg/retry"
	"github.com/GoPolymarket/intentgate/internal/testutil"
)

func exerciseConcurrentIncrements(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
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

	v, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())
}

func retryForTests() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 100
	return cfg
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	s, err := NewPostgresStore(db, retryForTests(), nil)
	require.NoError(t, err)
	defer s.Close()

	exerciseConcurrentIncrements(t, s)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := testutil.StartRedis(t)
	client := redis.NewClient(&redis.Options{Addr: addr})

	s, err := NewRedisStore(client, RedisStoreConfig{Retry: retryForTests()}, nil)
	require.NoError(t, err)
	defer s.Close()

	exerciseConcurrentIncrements(t, s)
}
