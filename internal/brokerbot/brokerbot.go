// Package brokerbot provides automated price-makers that trade one token against one currency
// from their own inventory.
package brokerbot

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/store"
)

// PriceMaker is a counterparty that prices trades itself.
//
// Execute* run inside the caller's store transaction, after the counter-asset has already been
// credited to Address(): ExecuteBuy delivers amount of Token() for payment, ExecuteSell pays the
// seller for amount of Token() and returns the proceeds.
type PriceMaker interface {
	Address() common.Address
	Token() common.Address
	Currency() common.Address
	QuoteBuy(ctx context.Context, amount *big.Int) (*big.Int, error)
	QuoteSell(ctx context.Context, amount *big.Int) (*big.Int, error)
	ExecuteBuy(ctx context.Context, buyer common.Address, amount, payment *big.Int) error
	ExecuteSell(ctx context.Context, seller common.Address, amount *big.Int) (*big.Int, error)
}

type Config struct {
	Address   common.Address
	Token     common.Address
	Currency  common.Address
	Price     *big.Int // currency per token unit at zero net position
	Increment *big.Int // price change per token unit bought or sold
}

// Brokerbot quotes on a linear curve: every unit it sells raises its price by Increment,
// every unit it buys lowers it by the same amount.
type Brokerbot struct {
	cfg    Config
	store  store.Store
	ledger ledger.Ledger
	logger *slog.Logger
}

func New(cfg Config, s store.Store, l ledger.Ledger, log *slog.Logger) (*Brokerbot, error) {
	if cfg.Price == nil || cfg.Price.Sign() <= 0 {
		return nil, apperrors.NewInvalidRequest("brokerbot price must be positive")
	}
	if cfg.Increment == nil {
		cfg.Increment = new(big.Int)
	}
	if cfg.Increment.Sign() < 0 {
		return nil, apperrors.NewInvalidRequest("brokerbot increment must be non-negative")
	}
	return &Brokerbot{
		cfg:    cfg,
		store:  s,
		ledger: l,
		logger: logger.Component(log, "brokerbot").With("address", cfg.Address.Hex()),
	}, nil
}

func (b *Brokerbot) Address() common.Address  { return b.cfg.Address }
func (b *Brokerbot) Token() common.Address    { return b.cfg.Token }
func (b *Brokerbot) Currency() common.Address { return b.cfg.Currency }

// Price is the current marginal price of one token unit.
func (b *Brokerbot) Price(ctx context.Context) (*big.Int, error) {
	bought, err := store.Read(ctx, b.store, b.key("bought"))
	if err != nil {
		return nil, err
	}
	sold, err := store.Read(ctx, b.store, b.key("sold"))
	if err != nil {
		return nil, err
	}
	// Units the bot sold push the price up; units it bought push it down.
	position := new(big.Int).Sub(sold, bought)
	price := new(big.Int).Mul(position, b.cfg.Increment)
	return price.Add(price, b.cfg.Price), nil
}

// QuoteBuy is what a buyer pays for amount units: amount*P + inc*amount*(amount-1)/2.
func (b *Brokerbot) QuoteBuy(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	price, err := b.Price(ctx)
	if err != nil {
		return nil, err
	}
	cost := new(big.Int).Mul(amount, price)
	return cost.Add(cost, b.slope(amount, new(big.Int).Sub(amount, big.NewInt(1)))), nil
}

// QuoteSell is what a seller receives for amount units: amount*P - inc*amount*(amount+1)/2.
func (b *Brokerbot) QuoteSell(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	price, err := b.Price(ctx)
	if err != nil {
		return nil, err
	}
	floor := new(big.Int).Mul(b.cfg.Increment, amount)
	if floor.Cmp(price) > 0 {
		return nil, apperrors.Newf(apperrors.ErrInsufficientLiquidity,
			"selling %s units would push the price below zero", amount)
	}
	proceeds := new(big.Int).Mul(amount, price)
	return proceeds.Sub(proceeds, b.slope(amount, new(big.Int).Add(amount, big.NewInt(1)))), nil
}

func (b *Brokerbot) ExecuteBuy(ctx context.Context, buyer common.Address, amount, payment *big.Int) error {
	return b.store.Atomic(ctx, func(ctx context.Context) error {
		cost, err := b.QuoteBuy(ctx, amount)
		if err != nil {
			return err
		}
		if payment == nil || payment.Cmp(cost) < 0 {
			return apperrors.Newf(apperrors.ErrOfferTooLow, "payment %v is below cost %s", payment, cost)
		}
		if err := b.bump(ctx, "sold", amount); err != nil {
			return err
		}
		if err := b.ledger.Transfer(ctx, b.cfg.Token, b.cfg.Address, buyer, amount); err != nil {
			return err
		}
		store.AfterCommit(ctx, func() {
			b.logger.Info("brokerbot sold", "buyer", buyer.Hex(), "amount", amount.String(), "paid", payment.String())
		})
		return nil
	})
}

func (b *Brokerbot) ExecuteSell(ctx context.Context, seller common.Address, amount *big.Int) (*big.Int, error) {
	var proceeds *big.Int
	err := b.store.Atomic(ctx, func(ctx context.Context) error {
		var err error
		proceeds, err = b.QuoteSell(ctx, amount)
		if err != nil {
			return err
		}
		if err := b.bump(ctx, "bought", amount); err != nil {
			return err
		}
		if err := b.ledger.Transfer(ctx, b.cfg.Currency, b.cfg.Address, seller, proceeds); err != nil {
			return err
		}
		store.AfterCommit(ctx, func() {
			b.logger.Info("brokerbot bought", "seller", seller.Hex(), "amount", amount.String(), "paid", proceeds.String())
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proceeds, nil
}

// slope returns inc*n*m/2; n*m is always even for consecutive n, m.
func (b *Brokerbot) slope(n, m *big.Int) *big.Int {
	v := new(big.Int).Mul(n, m)
	v.Mul(v, b.cfg.Increment)
	return v.Rsh(v, 1)
}

func (b *Brokerbot) bump(ctx context.Context, counter string, amount *big.Int) error {
	key := b.key(counter)
	v, err := store.Read(ctx, b.store, key)
	if err != nil {
		return err
	}
	return store.Write(ctx, key, v.Add(v, amount))
}

func (b *Brokerbot) key(counter string) string {
	return "brokerbot:" + strings.ToLower(b.cfg.Address.Hex()) + ":" + counter
}

func positiveAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.NewInvalidRequest("amount must be positive")
	}
	return nil
}
