//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/testutil"
)

func TestPostgresRepositories_Integration(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{DSN: testutil.StartPostgres(t)}

	gdb, err := Connect(cfg)
	require.NoError(t, err)
	defer CloseGorm(gdb)
	sdb, err := NewDB(cfg)
	require.NoError(t, err)
	defer sdb.Close()

	t.Run("markets", func(t *testing.T) {
		repo, err := NewPostgresMarketRepo(gdb, nil)
		require.NoError(t, err)

		addr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
		_, err = repo.Get(ctx, addr)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

		info := &model.MarketInfo{Address: addr, Owner: common.HexToAddress("0xa1"), TradingFeeBips: 10, CreatedAt: time.Now()}
		require.NoError(t, repo.Save(ctx, info))
		info.TradingFeeBips = 25
		require.NoError(t, repo.Save(ctx, info))

		got, err := repo.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), got.TradingFeeBips)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("journal", func(t *testing.T) {
		journal, err := NewEventJournal(ctx, sdb)
		require.NoError(t, err)

		evt := &model.Event{ID: "e1", Name: model.EventIntentSignal, Payload: map[string]string{"k": "v"}, CreatedAt: time.Now().UTC()}
		require.NoError(t, journal.Write(ctx, evt))
		require.NoError(t, journal.Write(ctx, evt))

		got, err := journal.List(ctx, model.EventIntentSignal, 10, nil, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.JSONEq(t, `{"k":"v"}`, string(got[0].Payload.(json.RawMessage)))
	})

	t.Run("idempotency", func(t *testing.T) {
		store, err := NewPostgresIdempotencyStore(ctx, sdb)
		require.NoError(t, err)
		exerciseIdempotency(t, store)
	})
}

func TestRedisRepositories_Integration(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(config.RedisConfig{Addr: testutil.StartRedis(t)})
	require.NoError(t, err)
	defer client.Close()

	t.Run("events", func(t *testing.T) {
		sink := NewRedisEventSink(client, "intentgate:events", "intentgate:events:recent", 2)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, sink.Write(ctx, &model.Event{ID: id, Name: model.EventIntentSignal, CreatedAt: time.Now()}))
		}
		got, err := sink.List(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].ID)
	})

	t.Run("idempotency", func(t *testing.T) {
		exerciseIdempotency(t, NewRedisIdempotencyStore(client, time.Minute))
	})
}

func exerciseIdempotency(t *testing.T, store middleware.IdempotencyStore) {
	t.Helper()
	ctx := context.Background()

	rec, found := store.GetOrLock(ctx, "r1:k")
	require.False(t, found)
	assert.Nil(t, rec)

	rec, found = store.GetOrLock(ctx, "r1:k")
	require.True(t, found)
	assert.True(t, rec.Processing)

	store.Save(ctx, "r1:k", 200, []byte(`{"ok":true}`))
	rec, found = store.GetOrLock(ctx, "r1:k")
	require.True(t, found)
	assert.False(t, rec.Processing)
	assert.Equal(t, 200, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))

	_, found = store.GetOrLock(ctx, "r1:other")
	require.False(t, found)
	store.Unlock(ctx, "r1:other")
	_, found = store.GetOrLock(ctx, "r1:other")
	assert.False(t, found)
}
