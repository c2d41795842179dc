package reactor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

const bipsDenominator = 10000

type processConfig struct {
	collector *common.Address
	feeBips   uint64
}

type ProcessOption func(*processConfig)

// WithFee routes the buyer's payment through collector, which keeps feeBips of the execution
// price and forwards the rest to the seller. The buyer still pays exactly the execution price.
func WithFee(collector common.Address, feeBips uint64) ProcessOption {
	return func(c *processConfig) {
		c.collector = &collector
		c.feeBips = feeBips
	}
}

// Process settles sell against buy on behalf of filler. amount may be nil to fill as much as
// both sides allow.
func (r *Reactor) Process(ctx context.Context, filler common.Address, sell *model.Intent, sellSig []byte, buy *model.Intent, buySig []byte, amount *big.Int, opts ...ProcessOption) (fill *model.Fill, err error) {
	started := time.Now()
	defer func() { r.observe(model.FillKindMatch, started, err) }()

	var cfg processConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.feeBips > bipsDenominator {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "fee of %d bips exceeds 100%%", cfg.feeBips)
	}

	if err := validate(sell, buy); err != nil {
		return nil, err
	}
	if sell.TokenOut != buy.TokenIn || sell.TokenIn != buy.TokenOut {
		return nil, apperrors.Newf(apperrors.ErrTokenMismatch,
			"sell %s->%s does not mirror buy %s->%s", sell.TokenOut.Hex(), sell.TokenIn.Hex(), buy.TokenOut.Hex(), buy.TokenIn.Hex())
	}
	if err := r.checkLive(filler, sell, buy); err != nil {
		return nil, err
	}
	if err := r.VerifyPriceMatch(sell, buy); err != nil {
		return nil, err
	}

	err = r.store.Atomic(ctx, func(ctx context.Context) error {
		maxValid, err := r.GetMaxValidAmount(ctx, sell, buy)
		if err != nil {
			return err
		}
		traded := amount
		if traded == nil {
			traded = maxValid
		}
		if traded.Sign() <= 0 {
			return apperrors.New(apperrors.ErrOverFilled, "nothing left to fill", nil)
		}
		if traded.Cmp(maxValid) > 0 {
			return apperrors.Newf(apperrors.ErrOverFilled, "amount %s exceeds remaining capacity %s", traded, maxValid)
		}

		price := r.GetTotalExecutionPrice(buy, sell, traded)
		if price.Sign() == 0 {
			return apperrors.Newf(apperrors.ErrInvalidRequest, "execution price of %s units rounds to zero", traded)
		}
		fee := new(big.Int)
		if cfg.collector != nil {
			fee.Mul(price, new(big.Int).SetUint64(cfg.feeBips))
			fee.Quo(fee, big.NewInt(bipsDenominator))
		}
		proceeds := new(big.Int).Sub(price, fee)

		if err := r.transferFrom(ctx, sell, sellSig, buy.Owner, traded); err != nil {
			return err
		}
		if err := r.credit(ctx, buy, traded); err != nil {
			return err
		}
		if cfg.collector == nil {
			if err := r.transferFrom(ctx, buy, buySig, sell.Owner, price); err != nil {
				return err
			}
		} else {
			if err := r.transferFrom(ctx, buy, buySig, *cfg.collector, price); err != nil {
				return err
			}
			if err := r.ledger.Transfer(ctx, sell.TokenIn, *cfg.collector, sell.Owner, proceeds); err != nil {
				return err
			}
		}

		fill = &model.Fill{
			Seller:    sell.Owner,
			Buyer:     buy.Owner,
			Token:     sell.TokenOut,
			Currency:  sell.TokenIn,
			Amount:    new(big.Int).Set(traded),
			Price:     price,
			Fee:       fee,
			Proceeds:  proceeds,
			Filler:    filler,
			SellNonce: new(big.Int).Set(sell.Nonce),
			BuyNonce:  new(big.Int).Set(buy.Nonce),
			Kind:      model.FillKindMatch,
		}
		r.committed(ctx, fill)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// SignalIntent broadcasts a signed intent for discovery. Nothing is checked or stored.
func (r *Reactor) SignalIntent(_ context.Context, intent *model.Intent, signature []byte) error {
	if intent == nil {
		return apperrors.NewInvalidRequest("intent is required")
	}
	if r.events != nil {
		r.events.Publish(model.EventIntentSignal, model.IntentSignal{
			Owner:      intent.Owner,
			Filler:     intent.Filler,
			TokenOut:   intent.TokenOut,
			AmountOut:  intent.AmountOut,
			TokenIn:    intent.TokenIn,
			AmountIn:   intent.AmountIn,
			Expiration: intent.Expiration,
			Nonce:      intent.Nonce,
			Data:       intent.Data,
			Signature:  signature,
		})
	}
	return nil
}
