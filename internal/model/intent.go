package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

const (
	// IntentTypeName is the EIP-712 struct name of the witness.
	IntentTypeName = "Intent"

	MaxAmountBits    = 160
	MaxTimestampBits = 48
)

// OpenFiller lets any caller submit the settlement.
var OpenFiller = common.Address{}

// Intent is a signed, off-chain declaration of willingness to give up to AmountOut of TokenOut
// in exchange for at least AmountIn of TokenIn, valid until Expiration (unix seconds, inclusive).
type Intent struct {
	Owner      common.Address `json:"owner"`
	Filler     common.Address `json:"filler"`
	TokenOut   common.Address `json:"tokenOut"`
	AmountOut  *big.Int       `json:"amountOut"`
	TokenIn    common.Address `json:"tokenIn"`
	AmountIn   *big.Int       `json:"amountIn"`
	Creation   uint64         `json:"creation"`
	Expiration uint64         `json:"expiration"`
	Nonce      *big.Int       `json:"nonce"`
	Data       hexutil.Bytes  `json:"data"`
}

// Validate checks the structural invariants and the field widths the signing scheme can carry.
func (i *Intent) Validate() error {
	if i == nil {
		return apperrors.NewInvalidRequest("intent is required")
	}
	if i.Owner == (common.Address{}) {
		return apperrors.NewInvalidRequest("intent owner is required")
	}
	if !positive(i.AmountOut) || !positive(i.AmountIn) {
		return apperrors.NewInvalidRequest("intent amounts must be positive")
	}
	if i.AmountOut.BitLen() > MaxAmountBits || i.AmountIn.BitLen() > MaxAmountBits {
		return apperrors.Newf(apperrors.ErrInvalidRequest, "intent amounts must fit in %d bits", MaxAmountBits)
	}
	if i.Expiration <= i.Creation {
		return apperrors.NewInvalidRequest("intent expiration must be after creation")
	}
	if i.Expiration >= 1<<MaxTimestampBits {
		return apperrors.Newf(apperrors.ErrInvalidRequest, "intent timestamps must fit in %d bits", MaxTimestampBits)
	}
	if i.Nonce == nil || i.Nonce.Sign() < 0 || i.Nonce.BitLen() > 256 {
		return apperrors.NewInvalidRequest("intent nonce must be a uint256")
	}
	if i.TokenOut == i.TokenIn {
		return apperrors.NewInvalidRequest("intent must trade two different tokens")
	}
	return nil
}

func (i *Intent) IsOpen() bool {
	return i.Filler == OpenFiller
}

// AllowsFiller reports whether caller may submit a settlement referencing this intent.
func (i *Intent) AllowsFiller(caller common.Address) bool {
	return i.IsOpen() || i.Filler == caller
}

// Expired is true strictly after the expiration second; settling at Expiration itself is allowed.
func (i *Intent) Expired(now time.Time) bool {
	return now.Unix() < 0 || uint64(now.Unix()) > i.Expiration
}

// Permit is the transfer authorization this intent implies for its owner.
func (i *Intent) Permit() Permit {
	return Permit{
		Token:    i.TokenOut,
		Amount:   new(big.Int).Set(i.AmountOut),
		Nonce:    new(big.Int).Set(i.Nonce),
		Deadline: i.Expiration,
	}
}

// UnitPrice is AmountIn per unit of AmountOut, for display.
func (i *Intent) UnitPrice() decimal.Decimal {
	if !positive(i.AmountOut) || i.AmountIn == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(i.AmountIn, 0).DivRound(decimal.NewFromBigInt(i.AmountOut, 0), 18)
}

func (i *Intent) WitnessTypeName() string {
	return IntentTypeName
}

func (i *Intent) WitnessTypes() apitypes.Types {
	return apitypes.Types{
		IntentTypeName: {
			{Name: "owner", Type: "address"},
			{Name: "filler", Type: "address"},
			{Name: "tokenOut", Type: "address"},
			{Name: "amountOut", Type: "uint160"},
			{Name: "tokenIn", Type: "address"},
			{Name: "amountIn", Type: "uint160"},
			{Name: "creation", Type: "uint48"},
			{Name: "expiration", Type: "uint48"},
			{Name: "nonce", Type: "uint256"},
			{Name: "data", Type: "bytes"},
		},
	}
}

// WitnessMessage must be a plain map: apitypes only descends into map[string]interface{} for nested structs.
func (i *Intent) WitnessMessage() map[string]interface{} {
	data := i.Data
	if data == nil {
		data = hexutil.Bytes{}
	}
	return map[string]interface{}{
		"owner":      i.Owner.Hex(),
		"filler":     i.Filler.Hex(),
		"tokenOut":   i.TokenOut.Hex(),
		"amountOut":  u256(i.AmountOut),
		"tokenIn":    i.TokenIn.Hex(),
		"amountIn":   u256(i.AmountIn),
		"creation":   u256(new(big.Int).SetUint64(i.Creation)),
		"expiration": u256(new(big.Int).SetUint64(i.Expiration)),
		"nonce":      u256(i.Nonce),
		"data":       data,
	}
}

func u256(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return (*math.HexOrDecimal256)(new(big.Int))
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
