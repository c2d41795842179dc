// Package store holds the shared mutable state of the settlement engine: nonce words, fill
// counters, ledger balances and price-maker state, all as unsigned big integers keyed by string.
//
// Every mutation happens inside Store.Atomic. A transaction is carried in the context, and a
// nested Atomic call joins the outer transaction, so a settlement composed of several permit
// transfers commits or rolls back as one unit.
package store

import (
	"context"
	"errors"
	"math/big"
)

// ErrConflict is returned by optimistic backends when a transaction lost a race; Atomic retries it.
var ErrConflict = errors.New("store: transaction conflict")

// ErrNoTransaction is returned when a write is attempted outside Atomic.
var ErrNoTransaction = errors.New("store: write outside transaction")

// Tx is one unit of work. Missing keys read as zero.
type Tx interface {
	Get(ctx context.Context, key string) (*big.Int, error)
	Set(ctx context.Context, key string, value *big.Int) error
	// AfterCommit registers fn to run once the outermost transaction has committed.
	AfterCommit(fn func())
}

type Store interface {
	// Atomic runs fn in a transaction. fn may run more than once on optimistic backends,
	// so it must not have side effects outside the store other than through AfterCommit.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	// Get reads committed state.
	Get(ctx context.Context, key string) (*big.Int, error)
	Close() error
}

type txKey struct{}

func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFrom(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok && tx != nil
}

// Read reads key through the transaction in ctx when there is one, otherwise from committed state.
func Read(ctx context.Context, s Store, key string) (*big.Int, error) {
	if tx, ok := TxFrom(ctx); ok {
		return tx.Get(ctx, key)
	}
	return s.Get(ctx, key)
}

// Write sets key in the transaction carried by ctx.
func Write(ctx context.Context, key string, value *big.Int) error {
	tx, ok := TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if value == nil || value.Sign() < 0 {
		return errors.New("store: values must be non-negative")
	}
	return tx.Set(ctx, key, value)
}

// AfterCommit defers fn until the transaction in ctx commits, or runs it now when there is none.
func AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := TxFrom(ctx); ok {
		tx.AfterCommit(fn)
		return
	}
	fn()
}

type hooks []func()

func (h *hooks) add(fn func()) {
	*h = append(*h, fn)
}

func (h hooks) run() {
	for _, fn := range h {
		fn()
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
