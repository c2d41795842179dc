package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

type marketRow struct {
	Address        string  `gorm:"column:address;primaryKey;size:42"`
	Owner          string  `gorm:"column:owner;size:42;not null;index"`
	Currency       string  `gorm:"column:currency;size:42;not null"`
	Token          string  `gorm:"column:token;size:42;not null"`
	Reactor        string  `gorm:"column:reactor;size:42;not null"`
	Router         *string `gorm:"column:router;size:42"`
	TradingFeeBips int64   `gorm:"column:trading_fee_bips;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (marketRow) TableName() string { return "markets" }

// PostgresMarketRepo keeps the factory's registry in the markets table.
type PostgresMarketRepo struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewPostgresMarketRepo(db *gorm.DB, logger *slog.Logger) (*PostgresMarketRepo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&marketRow{}); err != nil {
		return nil, err
	}
	return &PostgresMarketRepo{db: db, logger: logger}, nil
}

func (r *PostgresMarketRepo) Get(ctx context.Context, addr common.Address) (*model.MarketInfo, error) {
	var row marketRow
	err := r.db.WithContext(ctx).Where("address = ?", addr.Hex()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("market " + addr.Hex() + " not found")
		}
		return nil, r.logError("market_repo_get_failed", err, "address", addr.Hex())
	}
	return row.toInfo(), nil
}

func (r *PostgresMarketRepo) Save(ctx context.Context, info *model.MarketInfo) error {
	row := marketRowFrom(info)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"router":           row.Router,
			"trading_fee_bips": row.TradingFeeBips,
			"updated_at":       time.Now().UTC(),
		}),
	}).Create(&row).Error
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrConflict, "market already registered", err)
		}
		return r.logError("market_repo_save_failed", err, "address", row.Address)
	}
	return nil
}

func (r *PostgresMarketRepo) List(ctx context.Context) ([]*model.MarketInfo, error) {
	var rows []marketRow
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("market_repo_list_failed", err)
	}
	out := make([]*model.MarketInfo, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toInfo())
	}
	return out, nil
}

func (r *PostgresMarketRepo) logError(event string, err error, args ...any) error {
	r.logger.Error(event, append(args, "error", err)...)
	return err
}

func marketRowFrom(info *model.MarketInfo) marketRow {
	row := marketRow{
		Address:        info.Address.Hex(),
		Owner:          info.Owner.Hex(),
		Currency:       info.Currency.Hex(),
		Token:          info.Token.Hex(),
		Reactor:        info.Reactor.Hex(),
		TradingFeeBips: int64(info.TradingFeeBips),
		CreatedAt:      info.CreatedAt.UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if info.Router != nil {
		router := info.Router.Hex()
		row.Router = &router
	}
	return row
}

func (m marketRow) toInfo() *model.MarketInfo {
	info := &model.MarketInfo{
		Address:        common.HexToAddress(m.Address),
		Owner:          common.HexToAddress(m.Owner),
		Currency:       common.HexToAddress(m.Currency),
		Token:          common.HexToAddress(m.Token),
		Reactor:        common.HexToAddress(m.Reactor),
		TradingFeeBips: uint64(m.TradingFeeBips),
		CreatedAt:      m.CreatedAt.UTC(),
	}
	if m.Router != nil {
		router := common.HexToAddress(*m.Router)
		info.Router = &router
	}
	return info
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
