package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
	"github.com/GoPolymarket/intentgate/internal/pkg/retry"
)

// stateCell is one row of settlement state.
type stateCell struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;type:numeric(78,0);not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (stateCell) TableName() string {
	return "state_cells"
}

// PostgresStore runs each transaction at SERIALIZABLE isolation and retries serialization failures.
type PostgresStore struct {
	db     *gorm.DB
	retry  retry.Config
	logger *slog.Logger
}

func NewPostgresStore(db *gorm.DB, cfg retry.Config, log *slog.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	if err := db.AutoMigrate(&stateCell{}); err != nil {
		return nil, fmt.Errorf("migrate state_cells: %w", err)
	}
	return &PostgresStore{db: db, retry: cfg, logger: logger.Component(log, "store.postgres")}, nil
}

func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	var committed *postgresTx
	err := retry.Do(ctx, s.retry, isSerializationFailure, s.onRetry, func() error {
		tx := &postgresTx{}
		err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			tx.db = gtx
			return fn(WithTx(ctx, tx))
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	committed.hooks.run()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*big.Int, error) {
	return readCell(s.db.WithContext(ctx), key)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) onRetry(attempt int, err error, backoff time.Duration) {
	metrics.StoreConflicts.WithLabelValues("postgres").Inc()
	s.logger.Debug("retrying serialization failure", "attempt", attempt, "backoff", backoff, "error", err)
}

type postgresTx struct {
	db    *gorm.DB
	hooks hooks
}

func (t *postgresTx) Get(ctx context.Context, key string) (*big.Int, error) {
	return readCell(t.db.WithContext(ctx), key)
}

func (t *postgresTx) Set(ctx context.Context, key string, value *big.Int) error {
	cell := stateCell{Key: key, Value: value.String(), UpdatedAt: time.Now().UTC()}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&cell).Error
}

func (t *postgresTx) AfterCommit(fn func()) {
	t.hooks.add(fn)
}

func readCell(db *gorm.DB, key string) (*big.Int, error) {
	var cell stateCell
	err := db.Where("key = ?", key).Take(&cell).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(cell.Value, 10)
	if !ok {
		return nil, fmt.Errorf("state cell %s: malformed value %q", key, cell.Value)
	}
	return v, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
