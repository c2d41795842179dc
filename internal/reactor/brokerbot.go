package reactor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/brokerbot"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

// BuyFromBrokerbot buys everything the buy intent still wants from pm, at pm's price.
// maxPrice, when set, caps the total currency the caller is willing to see charged.
func (r *Reactor) BuyFromBrokerbot(ctx context.Context, filler common.Address, pm brokerbot.PriceMaker, buy *model.Intent, buySig []byte, maxPrice *big.Int) (fill *model.Fill, err error) {
	started := time.Now()
	defer func() { r.observe(model.FillKindBrokerbotBuy, started, err) }()

	if err := validate(buy); err != nil {
		return nil, err
	}
	if buy.TokenIn != pm.Token() || buy.TokenOut != pm.Currency() {
		return nil, apperrors.Newf(apperrors.ErrTokenMismatch,
			"buy %s->%s does not match brokerbot %s/%s", buy.TokenOut.Hex(), buy.TokenIn.Hex(), pm.Token().Hex(), pm.Currency().Hex())
	}
	if err := r.checkLive(filler, buy); err != nil {
		return nil, err
	}

	err = r.store.Atomic(ctx, func(ctx context.Context) error {
		amount, err := r.buyerRemaining(ctx, buy)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return apperrors.New(apperrors.ErrOverFilled, "buy intent is fully filled", nil)
		}
		cost, err := pm.QuoteBuy(ctx, amount)
		if err != nil {
			return err
		}
		if maxPrice != nil && cost.Cmp(maxPrice) > 0 {
			return apperrors.Newf(apperrors.ErrOfferTooLow, "brokerbot asks %s, above max price %s", cost, maxPrice)
		}
		// cost/amount <= AmountOut/AmountIn, the buyer's signed bid.
		lhs := new(big.Int).Mul(cost, buy.AmountIn)
		rhs := new(big.Int).Mul(buy.AmountOut, amount)
		if lhs.Cmp(rhs) > 0 {
			return apperrors.Newf(apperrors.ErrOfferTooLow, "brokerbot asks %s for %s units, above the signed bid", cost, amount)
		}

		if err := r.transferFrom(ctx, buy, buySig, pm.Address(), cost); err != nil {
			return err
		}
		if err := pm.ExecuteBuy(ctx, buy.Owner, amount, cost); err != nil {
			return err
		}
		if err := r.credit(ctx, buy, amount); err != nil {
			return err
		}

		fill = &model.Fill{
			Seller:   pm.Address(),
			Buyer:    buy.Owner,
			Token:    pm.Token(),
			Currency: pm.Currency(),
			Amount:   amount,
			Price:    cost,
			Fee:      new(big.Int),
			Proceeds: new(big.Int).Set(cost),
			Filler:   filler,
			BuyNonce: new(big.Int).Set(buy.Nonce),
			Kind:     model.FillKindBrokerbotBuy,
		}
		r.committed(ctx, fill)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// SellToBrokerbot sells amount of the sell intent's asset to pm. amount may be nil to sell the
// whole remainder. The seller receives pm's bid, which must be at least the signed ask.
func (r *Reactor) SellToBrokerbot(ctx context.Context, filler common.Address, pm brokerbot.PriceMaker, sell *model.Intent, sellSig []byte, amount *big.Int) (fill *model.Fill, err error) {
	started := time.Now()
	defer func() { r.observe(model.FillKindBrokerbotSell, started, err) }()

	if err := validate(sell); err != nil {
		return nil, err
	}
	if sell.TokenOut != pm.Token() || sell.TokenIn != pm.Currency() {
		return nil, apperrors.Newf(apperrors.ErrTokenMismatch,
			"sell %s->%s does not match brokerbot %s/%s", sell.TokenOut.Hex(), sell.TokenIn.Hex(), pm.Token().Hex(), pm.Currency().Hex())
	}
	if err := r.checkLive(filler, sell); err != nil {
		return nil, err
	}

	err = r.store.Atomic(ctx, func(ctx context.Context) error {
		remaining, err := r.sellerRemaining(ctx, sell)
		if err != nil {
			return err
		}
		traded := amount
		if traded == nil {
			traded = remaining
		}
		if traded.Sign() <= 0 {
			return apperrors.New(apperrors.ErrOverFilled, "nothing left to sell", nil)
		}
		if traded.Cmp(remaining) > 0 {
			return apperrors.Newf(apperrors.ErrOverFilled, "amount %s exceeds remaining %s", traded, remaining)
		}

		bid, err := pm.QuoteSell(ctx, traded)
		if err != nil {
			return err
		}
		// bid/traded >= AmountIn/AmountOut, the seller's signed ask.
		lhs := new(big.Int).Mul(bid, sell.AmountOut)
		rhs := new(big.Int).Mul(sell.AmountIn, traded)
		if lhs.Cmp(rhs) < 0 {
			return apperrors.Newf(apperrors.ErrOfferTooLow, "brokerbot bids %s for %s units, below the signed ask", bid, traded)
		}

		if err := r.transferFrom(ctx, sell, sellSig, pm.Address(), traded); err != nil {
			return err
		}
		proceeds, err := pm.ExecuteSell(ctx, sell.Owner, traded)
		if err != nil {
			return err
		}

		fill = &model.Fill{
			Seller:    sell.Owner,
			Buyer:     pm.Address(),
			Token:     pm.Token(),
			Currency:  pm.Currency(),
			Amount:    new(big.Int).Set(traded),
			Price:     proceeds,
			Fee:       new(big.Int),
			Proceeds:  proceeds,
			Filler:    filler,
			SellNonce: new(big.Int).Set(sell.Nonce),
			Kind:      model.FillKindBrokerbotSell,
		}
		r.committed(ctx, fill)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}
