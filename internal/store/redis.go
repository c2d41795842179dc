package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
	"github.com/GoPolymarket/intentgate/internal/pkg/retry"
)

// absent marks a key that did not exist when the transaction read it.
const absent = "\x00"

// commitScript checks every value read by the transaction is unchanged, then applies the writes.
// KEYS = read keys followed by write keys; ARGV[1] = number of read keys, then expected values, then new values.
var commitScript = redis.NewScript(`
local nr = tonumber(ARGV[1])
for i = 1, nr do
  local cur = redis.call('GET', KEYS[i])
  local want = ARGV[i + 1]
  if want == '\0' then
    if cur then return 0 end
  elseif cur ~= want then
    return 0
  end
end
for j = nr + 1, #KEYS do
  redis.call('SET', KEYS[j], ARGV[j + 1])
end
return 1
`)

type RedisStoreConfig struct {
	// Prefix namespaces keys; wrap it in braces to pin every key to one cluster slot.
	Prefix string
	Retry  retry.Config
}

// RedisStore is an optimistic store: transactions buffer writes and commit with a compare-and-set script.
type RedisStore struct {
	client *redis.Client
	prefix string
	retry  retry.Config
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, cfg RedisStoreConfig, log *slog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis store: nil client")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "{intentgate}:state:"
	}
	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		retry:  cfg.Retry,
		logger: logger.Component(log, "store.redis"),
	}, nil
}

func (s *RedisStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	var committed *redisTx
	err := retry.Do(ctx, s.retry, isConflict, s.onRetry, func() error {
		tx := &redisTx{store: s, reads: make(map[string]string), writes: make(map[string]*big.Int)}
		if err := fn(WithTx(ctx, tx)); err != nil {
			return err
		}
		if err := s.commit(ctx, tx); err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		return err
	}
	committed.hooks.run()
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*big.Int, error) {
	raw, err := s.raw(ctx, key)
	if err != nil {
		return nil, err
	}
	return parseRaw(key, raw)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) commit(ctx context.Context, tx *redisTx) error {
	if len(tx.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.reads)+len(tx.writes))
	args := make([]interface{}, 0, 1+len(tx.reads)+len(tx.writes))
	args = append(args, len(tx.reads))
	for k, v := range tx.reads {
		keys = append(keys, s.prefix+k)
		args = append(args, v)
	}
	for k, v := range tx.writes {
		keys = append(keys, s.prefix+k)
		args = append(args, v.String())
	}

	ok, err := commitScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	if ok != 1 {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) raw(ctx context.Context, key string) (string, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return absent, nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *RedisStore) onRetry(attempt int, err error, backoff time.Duration) {
	metrics.StoreConflicts.WithLabelValues("redis").Inc()
	s.logger.Debug("retrying conflicting transaction", "attempt", attempt, "backoff", backoff, "error", err)
}

type redisTx struct {
	store  *RedisStore
	reads  map[string]string
	writes map[string]*big.Int
	hooks  hooks
}

func (t *redisTx) Get(ctx context.Context, key string) (*big.Int, error) {
	if v, ok := t.writes[key]; ok {
		return copyInt(v), nil
	}
	raw, ok := t.reads[key]
	if !ok {
		var err error
		raw, err = t.store.raw(ctx, key)
		if err != nil {
			return nil, err
		}
		t.reads[key] = raw
	}
	return parseRaw(key, raw)
}

func (t *redisTx) Set(_ context.Context, key string, value *big.Int) error {
	t.writes[key] = copyInt(value)
	return nil
}

func (t *redisTx) AfterCommit(fn func()) {
	t.hooks.add(fn)
}

func parseRaw(key, raw string) (*big.Int, error) {
	if raw == absent {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("state cell %s: malformed value %q", key, raw)
	}
	return v, nil
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
