// Package ledger keeps token balances and allowances in the shared state store.
//
// It plays the role an ERC-20 contract plays on chain: owners approve spenders, and spenders
// move tokens with TransferFrom. An allowance equal to MaxAllowance is never decremented.
package ledger

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/store"
)

// MaxAllowance is treated as an unlimited approval.
var MaxAllowance = new(big.Int).Set(math.MaxBig256)

// Ledger is what the settlement engine needs from an asset ledger.
type Ledger interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error
}

type Book struct {
	store store.Store
}

func New(s store.Store) *Book {
	return &Book{store: s}
}

func BalanceKey(token, owner common.Address) string {
	return "balance:" + hexKey(token) + ":" + hexKey(owner)
}

func AllowanceKey(token, owner, spender common.Address) string {
	return "allowance:" + hexKey(token) + ":" + hexKey(owner) + ":" + hexKey(spender)
}

func (b *Book) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return store.Read(ctx, b.store, BalanceKey(token, owner))
}

func (b *Book) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return store.Read(ctx, b.store, AllowanceKey(token, owner, spender))
}

func (b *Book) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return apperrors.NewInvalidRequest("allowance must be non-negative")
	}
	return b.store.Atomic(ctx, func(ctx context.Context) error {
		return store.Write(ctx, AllowanceKey(token, owner, spender), amount)
	})
}

// Mint credits amount to an account out of thin air. Only the admin surface reaches it.
func (b *Book) Mint(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.NewInvalidRequest("mint amount must be positive")
	}
	return b.store.Atomic(ctx, func(ctx context.Context) error {
		return b.credit(ctx, token, to, amount)
	})
}

func (b *Book) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return apperrors.NewInvalidRequest("transfer amount must be non-negative")
	}
	return b.store.Atomic(ctx, func(ctx context.Context) error {
		return b.move(ctx, token, from, to, amount)
	})
}

func (b *Book) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return apperrors.NewInvalidRequest("transfer amount must be non-negative")
	}
	return b.store.Atomic(ctx, func(ctx context.Context) error {
		if spender != from {
			key := AllowanceKey(token, from, spender)
			allowance, err := store.Read(ctx, b.store, key)
			if err != nil {
				return err
			}
			if allowance.Cmp(amount) < 0 {
				return apperrors.Newf(apperrors.ErrInsufficientAllowance,
					"allowance %s of %s for %s is below %s", allowance, from.Hex(), spender.Hex(), amount)
			}
			if allowance.Cmp(MaxAllowance) != 0 {
				if err := store.Write(ctx, key, allowance.Sub(allowance, amount)); err != nil {
					return err
				}
			}
		}
		return b.move(ctx, token, from, to, amount)
	})
}

func (b *Book) move(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	fromKey := BalanceKey(token, from)
	balance, err := store.Read(ctx, b.store, fromKey)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return apperrors.Newf(apperrors.ErrInsufficientBalance,
			"balance %s of %s in %s is below %s", balance, from.Hex(), token.Hex(), amount)
	}
	if err := store.Write(ctx, fromKey, balance.Sub(balance, amount)); err != nil {
		return err
	}
	return b.credit(ctx, token, to, amount)
}

func (b *Book) credit(ctx context.Context, token, to common.Address, amount *big.Int) error {
	key := BalanceKey(token, to)
	balance, err := store.Read(ctx, b.store, key)
	if err != nil {
		return err
	}
	return store.Write(ctx, key, balance.Add(balance, amount))
}

func hexKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
