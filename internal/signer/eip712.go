package signer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/GoPolymarket/intentgate/internal/model"
)

// Constants for EIP-712
const (
	DefaultDomainName    = "Permit2"
	DefaultDomainVersion = "1"

	PermitWitnessTypeName = "PermitWitnessTransferFrom"
	TokenPermissionsName  = "TokenPermissions"
)

// Domain is the signing domain. All five EIP-712 domain fields are always encoded.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
	Salt              common.Hash
}

func (d Domain) typed() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
		Salt:              d.Salt.Hex(),
	}
}

// Separator returns hashStruct(EIP712Domain).
func (d Domain) Separator() (common.Hash, error) {
	td := apitypes.TypedData{
		Types:  apitypes.Types{"EIP712Domain": domainFields},
		Domain: d.typed(),
	}
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(sep), nil
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
	{Name: "salt", Type: "bytes32"},
}

// Witness is application data bound into the permit signature.
type Witness interface {
	WitnessTypeName() string
	WitnessTypes() apitypes.Types
	WitnessMessage() map[string]interface{}
}

// PermitTypedData builds the combined Permit+witness message. The permit is never hashed alone,
// so a signature cannot be replayed under different witness terms or for a different spender.
func PermitTypedData(domain Domain, permit model.Permit, spender common.Address, witness Witness) (apitypes.TypedData, error) {
	if witness == nil {
		return apitypes.TypedData{}, fmt.Errorf("witness is required")
	}
	if permit.Amount == nil || permit.Nonce == nil {
		return apitypes.TypedData{}, fmt.Errorf("permit amount and nonce are required")
	}
	witnessType := witness.WitnessTypeName()
	witnessField := witnessFieldName(witnessType)

	typesDef := apitypes.Types{
		"EIP712Domain": domainFields,
		PermitWitnessTypeName: {
			{Name: "permitted", Type: TokenPermissionsName},
			{Name: "spender", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
			{Name: witnessField, Type: witnessType},
		},
		TokenPermissionsName: {
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
		},
	}
	for name, fields := range witness.WitnessTypes() {
		typesDef[name] = fields
	}

	message := apitypes.TypedDataMessage{
		"permitted": map[string]interface{}{
			"token":  permit.Token.Hex(),
			"amount": (*math.HexOrDecimal256)(new(big.Int).Set(permit.Amount)),
		},
		"spender":    spender.Hex(),
		"nonce":      (*math.HexOrDecimal256)(new(big.Int).Set(permit.Nonce)),
		"deadline":   (*math.HexOrDecimal256)(new(big.Int).SetUint64(permit.Deadline)),
		witnessField: witness.WitnessMessage(),
	}

	return apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: PermitWitnessTypeName,
		Domain:      domain.typed(),
		Message:     message,
	}, nil
}

// PermitHash is the digest an owner signs for the given permit, spender and witness.
func PermitHash(domain Domain, permit model.Permit, spender common.Address, witness Witness) ([]byte, error) {
	typed, err := PermitTypedData(domain, permit, spender, witness)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// IntentHash is the digest for an intent carried as its own permit's witness.
func IntentHash(domain Domain, intent *model.Intent, spender common.Address) ([]byte, error) {
	return PermitHash(domain, intent.Permit(), spender, intent)
}

func witnessFieldName(typeName string) string {
	if typeName == "" {
		return "witness"
	}
	return strings.ToLower(typeName[:1]) + typeName[1:]
}
