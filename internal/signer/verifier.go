package signer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
)

// ContractVerifier checks signatures of contract owners (EIP-1271).
type ContractVerifier interface {
	Verify(ctx context.Context, contract common.Address, hash []byte, signature []byte) (bool, error)
}

// Verifier recovers signers of permit digests for one domain.
type Verifier struct {
	domain    Domain
	contracts ContractVerifier
	logger    *slog.Logger
}

// NewVerifier returns a verifier. contracts may be nil, in which case only ECDSA owners are accepted.
func NewVerifier(domain Domain, contracts ContractVerifier, log *slog.Logger) *Verifier {
	return &Verifier{
		domain:    domain,
		contracts: contracts,
		logger:    logger.Component(log, "signature-verifier"),
	}
}

func (v *Verifier) Domain() Domain {
	return v.domain
}

// Recover returns the address that produced signature over the typed data.
func (v *Verifier) Recover(typed apitypes.TypedData, signature []byte) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return RecoverHash(hash, signature)
}

// RecoverHash recovers the ECDSA signer of a 32-byte digest. V may be 0/1 or 27/28.
func RecoverHash(hash []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length")
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPermit fails with SIGNATURE_INVALID unless owner signed the combined permit+witness digest for spender.
func (v *Verifier) VerifyPermit(ctx context.Context, owner common.Address, permit model.Permit, spender common.Address, witness Witness, signature []byte) error {
	hash, err := PermitHash(v.domain, permit, spender, witness)
	if err != nil {
		return apperrors.New(apperrors.ErrSignatureInvalid, "cannot hash permit", err)
	}
	recovered, recErr := RecoverHash(hash, signature)
	if recErr == nil && recovered == owner {
		return nil
	}
	if v.contracts != nil {
		ok, err := v.contracts.Verify(ctx, owner, hash, signature)
		if err != nil {
			v.logger.Warn("contract signature check failed", "owner", owner.Hex(), "error", err)
		}
		if ok {
			return nil
		}
	}
	if recErr != nil {
		return apperrors.New(apperrors.ErrSignatureInvalid, "signature invalid", recErr)
	}
	return apperrors.Newf(apperrors.ErrSignatureInvalid, "signature recovers to %s, not owner %s", recovered.Hex(), owner.Hex())
}

// VerifyIntent checks the owner's signature of an intent bound to spender.
func (v *Verifier) VerifyIntent(ctx context.Context, intent *model.Intent, spender common.Address, signature []byte) error {
	if intent == nil {
		return apperrors.NewInvalidRequest("intent is required")
	}
	return v.VerifyPermit(ctx, intent.Owner, intent.Permit(), spender, intent, signature)
}
