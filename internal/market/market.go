// Package market binds one currency/asset pair to the settlement engine: it builds intents for
// the pair, settles matched intents with a trading fee, and answers how much of a signed intent
// is fillable right now.
package market

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/reactor"
)

// Settler is the settlement engine a market routes to.
type Settler interface {
	Address() common.Address
	Process(ctx context.Context, filler common.Address, sell *model.Intent, sellSig []byte, buy *model.Intent, buySig []byte, amount *big.Int, opts ...reactor.ProcessOption) (*model.Fill, error)
}

// Authorization is the part of the permit layer a market reads.
type Authorization interface {
	Address() common.Address
	FindFreeNonce(ctx context.Context, owner common.Address, startWord *big.Int) (*big.Int, error)
	Filled(ctx context.Context, owner common.Address, nonce *big.Int) (*big.Int, error)
}

type SignatureVerifier interface {
	VerifyIntent(ctx context.Context, intent *model.Intent, spender common.Address, signature []byte) error
}

// Executable is the answer to "how much of this intent could settle now".
type Executable struct {
	Amount                *big.Int `json:"amount"`
	Balance               *big.Int `json:"balance"`
	Allowance             *big.Int `json:"allowance"`
	Remaining             *big.Int `json:"remaining"`
	InsufficientLiquidity bool     `json:"insufficientLiquidity"`
}

type Market struct {
	mu   sync.RWMutex
	info model.MarketInfo

	settler  Settler
	auth     Authorization
	ledger   ledger.Ledger
	verifier SignatureVerifier
	repo     Repo
	now      func() time.Time
	logger   *slog.Logger
}

func (m *Market) Info() model.MarketInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := m.info
	if info.Router != nil {
		r := *info.Router
		info.Router = &r
	}
	return info
}

func (m *Market) Address() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info.Address
}

// CreateBuyOrder builds an intent that offers amountOffered of the currency for amountWanted of the token.
func (m *Market) CreateBuyOrder(ctx context.Context, owner common.Address, amountOffered, amountWanted *big.Int, validitySeconds uint64) (*model.Intent, error) {
	info := m.Info()
	return m.createOrder(ctx, info.Address, owner, info.Currency, amountOffered, info.Token, amountWanted, validitySeconds)
}

// CreateSellOrder builds an intent that offers amountOffered of the token for amountWanted of the currency.
func (m *Market) CreateSellOrder(ctx context.Context, owner common.Address, amountOffered, amountWanted *big.Int, validitySeconds uint64) (*model.Intent, error) {
	info := m.Info()
	return m.createOrder(ctx, info.Address, owner, info.Token, amountOffered, info.Currency, amountWanted, validitySeconds)
}

// createOrder starts the nonce search at a word derived from the order's terms and its creation
// second, so repeating a call within the same second builds the same intent while different
// orders land on different nonces.
func (m *Market) createOrder(ctx context.Context, filler, owner, tokenOut common.Address, amountOut *big.Int, tokenIn common.Address, amountIn *big.Int, validitySeconds uint64) (*model.Intent, error) {
	if validitySeconds == 0 {
		return nil, apperrors.NewInvalidRequest("validity must be at least one second")
	}
	if amountOut == nil || amountIn == nil {
		return nil, apperrors.NewInvalidRequest("order amounts are required")
	}
	creation := uint64(m.now().Unix())
	nonce, err := m.auth.FindFreeNonce(ctx, owner, orderStartWord(owner, tokenOut, amountOut, tokenIn, amountIn, creation, validitySeconds))
	if err != nil {
		return nil, err
	}
	intent := &model.Intent{
		Owner:      owner,
		Filler:     filler,
		TokenOut:   tokenOut,
		AmountOut:  copyInt(amountOut),
		TokenIn:    tokenIn,
		AmountIn:   copyInt(amountIn),
		Creation:   creation,
		Expiration: creation + validitySeconds,
		Nonce:      nonce,
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return intent, nil
}

// Process settles a matched pair through the reactor with this market as filler. The trading fee
// is taken out of the seller's proceeds and kept on the market's balance.
func (m *Market) Process(ctx context.Context, caller common.Address, sell *model.Intent, sellSig []byte, buy *model.Intent, buySig []byte, amount *big.Int) (*model.Fill, error) {
	info := m.Info()
	if info.Router != nil && *info.Router != caller {
		return nil, apperrors.Newf(apperrors.ErrUnauthorized, "only router %s may process on this market", info.Router.Hex())
	}
	if sell == nil || buy == nil {
		return nil, apperrors.NewInvalidRequest("sell and buy intents are required")
	}
	if sell.TokenOut != info.Token || sell.TokenIn != info.Currency {
		return nil, apperrors.Newf(apperrors.ErrTokenMismatch, "sell intent does not trade this market's pair")
	}

	fill, err := m.settler.Process(ctx, info.Address, sell, sellSig, buy, buySig, amount,
		reactor.WithFee(info.Address, info.TradingFeeBips))
	if err != nil {
		return nil, err
	}
	m.logger.Info("market settlement",
		"caller", caller.Hex(),
		"amount", fill.Amount.String(),
		"price", fill.Price.String(),
		"fee", fill.Fee.String())
	return fill, nil
}

// ExecutableAmount is min(balance, allowance to the permit layer, unfilled remainder) of intent's TokenOut.
func (m *Market) ExecutableAmount(ctx context.Context, intent *model.Intent) (*Executable, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	balance, err := m.ledger.BalanceOf(ctx, intent.TokenOut, intent.Owner)
	if err != nil {
		return nil, err
	}
	allowance, err := m.ledger.Allowance(ctx, intent.TokenOut, intent.Owner, m.auth.Address())
	if err != nil {
		return nil, err
	}
	filled, err := m.auth.Filled(ctx, intent.Owner, intent.Nonce)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(intent.AmountOut, filled)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	amount := minInt(balance, allowance, remaining)
	return &Executable{
		Amount:                amount,
		Balance:               balance,
		Allowance:             allowance,
		Remaining:             remaining,
		InsufficientLiquidity: amount.Cmp(remaining) < 0,
	}, nil
}

// VerifySignature checks intent was signed by its owner for this market's reactor.
func (m *Market) VerifySignature(ctx context.Context, intent *model.Intent, signature []byte) error {
	return m.verifier.VerifyIntent(ctx, intent, m.Info().Reactor, signature)
}

func (m *Market) SetTradingFee(ctx context.Context, caller common.Address, bips uint64) error {
	if bips > model.MaxFeeBips {
		return apperrors.Newf(apperrors.ErrInvalidRequest, "fee of %d bips exceeds %d", bips, model.MaxFeeBips)
	}
	return m.update(ctx, caller, func(info *model.MarketInfo) {
		info.TradingFeeBips = bips
	})
}

// Withdraw sends retained fees (or anything else the market holds) to `to`.
func (m *Market) Withdraw(ctx context.Context, caller, token, to common.Address, amount *big.Int) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.NewInvalidRequest("withdraw amount must be positive")
	}
	if err := m.ledger.Transfer(ctx, token, m.Address(), to, amount); err != nil {
		return err
	}
	m.logger.Info("market withdrawal", "token", token.Hex(), "to", to.Hex(), "amount", amount.String())
	return nil
}

func (m *Market) requireOwner(caller common.Address) error {
	// Owner is fixed at deploy; update never changes it.
	m.mu.RLock()
	owner := m.info.Owner
	m.mu.RUnlock()
	if caller != owner {
		return apperrors.Newf(apperrors.ErrUnauthorized, "only the market owner %s may do this", owner.Hex())
	}
	return nil
}

// update applies a change to the mutable settings. Identity fields (owner, pair, reactor,
// router, address) are content-addressed and stay as deployed.
func (m *Market) update(ctx context.Context, caller common.Address, apply func(*model.MarketInfo)) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.info
	apply(&next)
	if err := m.repo.Save(ctx, &next); err != nil {
		return err
	}
	m.info = next
	return nil
}

// startWordBits keeps the derived word plus a full FindFreeNonce scan under 248 bits.
const startWordBits = 224

func orderStartWord(owner, tokenOut common.Address, amountOut *big.Int, tokenIn common.Address, amountIn *big.Int, creation, validitySeconds uint64) *big.Int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], creation)
	var validity [8]byte
	binary.BigEndian.PutUint64(validity[:], validitySeconds)
	h := crypto.Keccak256(
		owner.Bytes(),
		tokenOut.Bytes(), common.BigToHash(amountOut).Bytes(),
		tokenIn.Bytes(), common.BigToHash(amountIn).Bytes(),
		buf[:], validity[:],
	)
	word := new(big.Int).SetBytes(h)
	return word.Rsh(word, 256-startWordBits)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func minInt(first *big.Int, rest ...*big.Int) *big.Int {
	out := new(big.Int).Set(first)
	for _, v := range rest {
		if v.Cmp(out) < 0 {
			out.Set(v)
		}
	}
	return out
}
