package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GoPolymarket/intentgate/internal/model"
)

// Signer holds an owner key and signs permits for one domain.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  Domain
}

// NewSigner parses a hex private key (with or without 0x).
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return NewSignerFromKey(key, domain), nil
}

func NewSignerFromKey(key *ecdsa.PrivateKey, domain Domain) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		domain:  domain,
	}
}

// SignPermit signs the combined permit+witness digest. The returned signature is
// [R || S || V] with V in {27, 28}.
func (s *Signer) SignPermit(permit model.Permit, spender common.Address, witness Witness) ([]byte, error) {
	hash, err := PermitHash(s.domain, permit, spender, witness)
	if err != nil {
		return nil, err
	}
	return s.signHash(hash)
}

// SignIntent signs an intent for settlement through spender (the settlement engine).
func (s *Signer) SignIntent(intent *model.Intent, spender common.Address) ([]byte, error) {
	if intent == nil {
		return nil, fmt.Errorf("intent is required")
	}
	return s.SignPermit(intent.Permit(), spender, intent)
}

func (s *Signer) signHash(hash []byte) ([]byte, error) {
	signature, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	// crypto.Sign yields V in {0,1}; wallets and contracts expect 27/28.
	if signature[64] < 27 {
		signature[64] += 27
	}
	return signature, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) Domain() Domain {
	return s.domain
}
