// Package reactor settles signed intents: a sell intent against a buy intent, or one intent
// against an automated price-maker.
//
// Every settlement runs in one store transaction. Both legs go through the permit layer with the
// reactor as spender, so a failure in either leg leaves no trace in fill state or balances.
package reactor

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
	"github.com/GoPolymarket/intentgate/internal/signer"
	"github.com/GoPolymarket/intentgate/internal/store"
)

// Authorizer is the permit layer as seen by the reactor.
type Authorizer interface {
	Address() common.Address
	PermitWitnessTransferFrom(ctx context.Context, spender common.Address, permit model.Permit, details model.TransferDetails, owner common.Address, witness signer.Witness, signature []byte) error
	Filled(ctx context.Context, owner common.Address, nonce *big.Int) (*big.Int, error)
}

type Option func(*Reactor)

func WithClock(now func() time.Time) Option {
	return func(r *Reactor) { r.now = now }
}

func WithPublisher(pub events.Publisher) Option {
	return func(r *Reactor) { r.events = pub }
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Reactor) { r.logger = logger.Component(log, "reactor") }
}

type Reactor struct {
	address common.Address
	store   store.Store
	permit  Authorizer
	ledger  ledger.Ledger
	now     func() time.Time
	events  events.Publisher
	logger  *slog.Logger
}

// New returns a reactor. address is the spender every intent must be signed for.
func New(address common.Address, s store.Store, permit Authorizer, l ledger.Ledger, opts ...Option) *Reactor {
	r := &Reactor{
		address: address,
		store:   s,
		permit:  permit,
		ledger:  l,
		now:     time.Now,
		logger:  logger.Component(nil, "reactor"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reactor) Address() common.Address {
	return r.address
}

// VerifyPriceMatch fails with OFFER_TOO_LOW unless the buyer's bid per unit covers the seller's ask.
func (r *Reactor) VerifyPriceMatch(sell, buy *model.Intent) error {
	bid := new(big.Int).Mul(buy.AmountOut, sell.AmountOut)
	ask := new(big.Int).Mul(sell.AmountIn, buy.AmountIn)
	if bid.Cmp(ask) < 0 {
		return apperrors.Newf(apperrors.ErrOfferTooLow,
			"bid %s/%s is below ask %s/%s", buy.AmountOut, buy.AmountIn, sell.AmountIn, sell.AmountOut)
	}
	return nil
}

// GetFilledAmount returns how much of intent's TokenOut has been transferred so far.
func (r *Reactor) GetFilledAmount(ctx context.Context, intent *model.Intent) (*big.Int, error) {
	return r.permit.Filled(ctx, intent.Owner, intent.Nonce)
}

// GetMaxValidAmount is the largest asset quantity both sides can still honour: the seller's
// unfilled asset, the asset the buyer has yet to receive, and what the buyer's unspent currency
// pays for at the seller's ask.
func (r *Reactor) GetMaxValidAmount(ctx context.Context, sell, buy *model.Intent) (*big.Int, error) {
	if err := validate(sell, buy); err != nil {
		return nil, err
	}
	if err := r.VerifyPriceMatch(sell, buy); err != nil {
		return nil, err
	}
	sellLeft, err := r.sellerRemaining(ctx, sell)
	if err != nil {
		return nil, err
	}
	buyLeft, err := r.buyerRemaining(ctx, buy)
	if err != nil {
		return nil, err
	}
	affordable, err := r.buyerAffordable(ctx, sell, buy)
	if err != nil {
		return nil, err
	}
	return minInt(sellLeft, buyLeft, affordable), nil
}

// GetTotalExecutionPrice prices amount at the seller's ask, rounding down.
func (r *Reactor) GetTotalExecutionPrice(_, sell *model.Intent, amount *big.Int) *big.Int {
	price := new(big.Int).Mul(amount, sell.AmountIn)
	return price.Quo(price, sell.AmountOut)
}

// sellerRemaining is the unfilled part of the seller's asset cap.
func (r *Reactor) sellerRemaining(ctx context.Context, sell *model.Intent) (*big.Int, error) {
	filled, err := r.GetFilledAmount(ctx, sell)
	if err != nil {
		return nil, err
	}
	return clampZero(new(big.Int).Sub(sell.AmountOut, filled)), nil
}

// buyerRemaining is the part of the buyer's AmountIn not yet received.
func (r *Reactor) buyerRemaining(ctx context.Context, buy *model.Intent) (*big.Int, error) {
	received, err := r.GetReceivedAmount(ctx, buy)
	if err != nil {
		return nil, err
	}
	return clampZero(new(big.Int).Sub(buy.AmountIn, received)), nil
}

// buyerAffordable is how many units the buyer's unspent currency covers at the seller's ask.
func (r *Reactor) buyerAffordable(ctx context.Context, sell, buy *model.Intent) (*big.Int, error) {
	spent, err := r.GetFilledAmount(ctx, buy)
	if err != nil {
		return nil, err
	}
	left := clampZero(new(big.Int).Sub(buy.AmountOut, spent))
	left.Mul(left, sell.AmountOut)
	return left.Quo(left, sell.AmountIn), nil
}

// GetReceivedAmount returns how much of intent's TokenIn its owner has received so far.
func (r *Reactor) GetReceivedAmount(ctx context.Context, intent *model.Intent) (*big.Int, error) {
	return store.Read(ctx, r.store, receivedKey(intent.Owner, intent.Nonce))
}

// credit records amount more of buy's TokenIn delivered to its owner. It must run inside the
// settlement transaction and fails if the total would pass AmountIn.
func (r *Reactor) credit(ctx context.Context, buy *model.Intent, amount *big.Int) error {
	key := receivedKey(buy.Owner, buy.Nonce)
	received, err := store.Read(ctx, r.store, key)
	if err != nil {
		return err
	}
	next := received.Add(received, amount)
	if next.Cmp(buy.AmountIn) > 0 {
		return apperrors.Newf(apperrors.ErrOverFilled,
			"buy %s/%s would receive %s, cap %s", buy.Owner.Hex(), buy.Nonce, next, buy.AmountIn)
	}
	return store.Write(ctx, key, next)
}

func receivedKey(owner common.Address, nonce *big.Int) string {
	return "received:" + strings.ToLower(owner.Hex()) + ":" + nonce.String()
}

func validate(intents ...*model.Intent) error {
	for _, intent := range intents {
		if err := intent.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// checkLive rejects expired intents, then intents that name a different filler.
func (r *Reactor) checkLive(caller common.Address, intents ...*model.Intent) error {
	now := r.now()
	for _, intent := range intents {
		if intent.Expired(now) {
			return apperrors.Newf(apperrors.ErrIntentExpired,
				"intent %s/%s expired at %d", intent.Owner.Hex(), intent.Nonce, intent.Expiration)
		}
	}
	for _, intent := range intents {
		if !intent.AllowsFiller(caller) {
			return apperrors.Newf(apperrors.ErrInvalidFiller,
				"intent %s/%s may only be filled by %s", intent.Owner.Hex(), intent.Nonce, intent.Filler.Hex())
		}
	}
	return nil
}

// transferFrom pulls amount of intent's TokenOut from its owner to `to` under the owner's signature.
func (r *Reactor) transferFrom(ctx context.Context, intent *model.Intent, signature []byte, to common.Address, amount *big.Int) error {
	return r.permit.PermitWitnessTransferFrom(ctx, r.address, intent.Permit(),
		model.TransferDetails{To: to, RequestedAmount: amount},
		intent.Owner, intent, signature)
}

func (r *Reactor) observe(kind string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.TypeOf(err))
	}
	metrics.SettlementsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.SettlementLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (r *Reactor) committed(ctx context.Context, fill *model.Fill) {
	store.AfterCommit(ctx, func() {
		amount, _ := new(big.Float).SetInt(fill.Amount).Float64()
		metrics.TradedVolume.WithLabelValues(fill.Kind).Add(amount)
		r.logger.Info("intent filled",
			"kind", fill.Kind,
			"seller", fill.Seller.Hex(),
			"buyer", fill.Buyer.Hex(),
			"amount", fill.Amount.String(),
			"price", fill.Price.String(),
			"fee", fill.Fee.String())
		if r.events != nil {
			r.events.Publish(model.EventIntentFilled, fill)
		}
	})
}

func minInt(first *big.Int, rest ...*big.Int) *big.Int {
	out := first
	for _, v := range rest {
		if v.Cmp(out) < 0 {
			out = v
		}
	}
	return out
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return v.SetInt64(0)
	}
	return v
}
