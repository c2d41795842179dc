// Package permit implements signature-based transfers with unordered nonces and partial fills.
//
// A signed permit grants the spender named in the signature the right to move up to
// Permit.Amount of Permit.Token from the owner, in any number of calls, until the deadline.
// Per (owner, nonce) the amount already moved is tracked; once it reaches the permit amount the
// nonce bit is set and the permit is dead. Owners can kill nonces early by setting bits directly.
package permit

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
	"github.com/GoPolymarket/intentgate/internal/signer"
	"github.com/GoPolymarket/intentgate/internal/store"
)

// maxScanWords bounds FindFreeNonce.
const maxScanWords = 1 << 16

var fullWord = new(big.Int).Set(math.MaxBig256)

// SignatureVerifier checks an owner's signature over a permit and its witness.
type SignatureVerifier interface {
	VerifyPermit(ctx context.Context, owner common.Address, permit model.Permit, spender common.Address, witness signer.Witness, signature []byte) error
}

type Option func(*Permit2)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Permit2) { p.now = now }
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *Permit2) { p.events = pub }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Permit2) { p.logger = logger.Component(log, "permit2") }
}

type Permit2 struct {
	address  common.Address
	store    store.Store
	ledger   ledger.Ledger
	verifier SignatureVerifier
	now      func() time.Time
	events   events.Publisher
	logger   *slog.Logger
}

// New returns the authorization layer. address is the account owners approve on the ledger.
func New(address common.Address, s store.Store, l ledger.Ledger, v SignatureVerifier, opts ...Option) *Permit2 {
	p := &Permit2{
		address:  address,
		store:    s,
		ledger:   l,
		verifier: v,
		now:      time.Now,
		logger:   logger.Component(nil, "permit2"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Permit2) Address() common.Address {
	return p.address
}

// PermitWitnessTransferFrom moves details.RequestedAmount of permit.Token from owner to details.To.
// spender must be the account the owner named when signing; it is the caller of this method.
func (p *Permit2) PermitWitnessTransferFrom(ctx context.Context, spender common.Address, permit model.Permit, details model.TransferDetails, owner common.Address, witness signer.Witness, signature []byte) (err error) {
	defer func() {
		metrics.PermitTransfers.WithLabelValues(outcome(err)).Inc()
	}()

	if permit.Amount == nil || permit.Amount.Sign() <= 0 || permit.Nonce == nil || permit.Nonce.Sign() < 0 || permit.Nonce.BitLen() > 256 {
		return apperrors.NewInvalidRequest("permit amount must be positive and nonce a uint256")
	}
	if details.RequestedAmount == nil || details.RequestedAmount.Sign() <= 0 {
		return apperrors.NewInvalidRequest("requested amount must be positive")
	}
	if p.now().Unix() > int64(permit.Deadline) {
		return apperrors.Newf(apperrors.ErrDeadlineExpired, "permit deadline %d has passed", permit.Deadline)
	}
	if err := p.verifier.VerifyPermit(ctx, owner, permit, spender, witness, signature); err != nil {
		return err
	}

	return p.store.Atomic(ctx, func(ctx context.Context) error {
		wordPos, bit := BitmapPositions(permit.Nonce)
		wordKey := nonceWordKey(owner, wordPos)
		word, err := store.Read(ctx, p.store, wordKey)
		if err != nil {
			return err
		}
		if word.Bit(bit) == 1 {
			return apperrors.Newf(apperrors.ErrInvalidNonce, "nonce %s of %s is used or invalidated", permit.Nonce, owner.Hex())
		}

		filledKey := fillKey(owner, permit.Nonce)
		filled, err := store.Read(ctx, p.store, filledKey)
		if err != nil {
			return err
		}
		next := new(big.Int).Add(filled, details.RequestedAmount)
		if next.Cmp(permit.Amount) > 0 {
			return apperrors.Newf(apperrors.ErrOverFilled,
				"nonce %s of %s: %s filled, %s requested, cap %s", permit.Nonce, owner.Hex(), filled, details.RequestedAmount, permit.Amount)
		}
		if err := store.Write(ctx, filledKey, next); err != nil {
			return err
		}
		if next.Cmp(permit.Amount) == 0 {
			if err := store.Write(ctx, wordKey, word.SetBit(word, bit, 1)); err != nil {
				return err
			}
		}

		return p.ledger.TransferFrom(ctx, permit.Token, p.address, owner, details.To, details.RequestedAmount)
	})
}

// InvalidateUnorderedNonces sets every bit of mask in owner's word at wordPos.
func (p *Permit2) InvalidateUnorderedNonces(ctx context.Context, owner common.Address, wordPos, mask *big.Int) error {
	if wordPos == nil || wordPos.Sign() < 0 || wordPos.BitLen() > 248 {
		return apperrors.NewInvalidRequest("word position must fit in 248 bits")
	}
	if mask == nil || mask.Sign() < 0 || mask.BitLen() > 256 {
		return apperrors.NewInvalidRequest("mask must be a uint256")
	}
	return p.store.Atomic(ctx, func(ctx context.Context) error {
		key := nonceWordKey(owner, wordPos)
		word, err := store.Read(ctx, p.store, key)
		if err != nil {
			return err
		}
		if err := store.Write(ctx, key, word.Or(word, mask)); err != nil {
			return err
		}
		store.AfterCommit(ctx, func() {
			metrics.NoncesInvalidated.Inc()
			p.logger.Info("nonces invalidated", "owner", owner.Hex(), "word", wordPos.String(), "mask", mask.Text(16))
			if p.events != nil {
				p.events.Publish(model.EventUnorderedNonceInvalidation, model.NonceInvalidation{
					Owner:   owner,
					WordPos: new(big.Int).Set(wordPos),
					Mask:    new(big.Int).Set(mask),
				})
			}
		})
		return nil
	})
}

func (p *Permit2) NonceBitmap(ctx context.Context, owner common.Address, wordPos *big.Int) (*big.Int, error) {
	return store.Read(ctx, p.store, nonceWordKey(owner, wordPos))
}

// Filled returns how much has been transferred under (owner, nonce).
func (p *Permit2) Filled(ctx context.Context, owner common.Address, nonce *big.Int) (*big.Int, error) {
	return store.Read(ctx, p.store, fillKey(owner, nonce))
}

// FindFreeNonce returns the lowest nonce at or after word startWord whose bit is unset.
// It does not reserve anything; two callers may get the same answer.
func (p *Permit2) FindFreeNonce(ctx context.Context, owner common.Address, startWord *big.Int) (*big.Int, error) {
	if startWord == nil {
		startWord = new(big.Int)
	}
	if startWord.Sign() < 0 {
		return nil, apperrors.NewInvalidRequest("start word must be non-negative")
	}
	wordPos := new(big.Int).Set(startWord)
	for i := 0; i < maxScanWords; i++ {
		if wordPos.BitLen() > 248 {
			break
		}
		word, err := p.NonceBitmap(ctx, owner, wordPos)
		if err != nil {
			return nil, err
		}
		if word.Cmp(fullWord) != 0 {
			for bit := 0; bit < 256; bit++ {
				if word.Bit(bit) == 0 {
					nonce := new(big.Int).Lsh(wordPos, 8)
					return nonce.Or(nonce, big.NewInt(int64(bit))), nil
				}
			}
		}
		wordPos.Add(wordPos, big.NewInt(1))
	}
	return nil, apperrors.Newf(apperrors.ErrConflict, "no free nonce for %s from word %s", owner.Hex(), startWord)
}

// BitmapPositions splits a nonce into its word position and bit index.
func BitmapPositions(nonce *big.Int) (*big.Int, int) {
	wordPos := new(big.Int).Rsh(nonce, 8)
	bit := int(new(big.Int).And(nonce, big.NewInt(0xff)).Int64())
	return wordPos, bit
}

func nonceWordKey(owner common.Address, wordPos *big.Int) string {
	return "nonce:" + strings.ToLower(owner.Hex()) + ":" + wordPos.String()
}

func fillKey(owner common.Address, nonce *big.Int) string {
	return "filled:" + strings.ToLower(owner.Hex()) + ":" + nonce.String()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.TypeOf(err)))
}
