package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// Amounts travel as JSON numbers; math/big keeps them exact.

type SignedIntent struct {
	Intent    *Intent       `json:"intent" binding:"required"`
	Signature hexutil.Bytes `json:"signature" binding:"required"`
}

type ProcessRequest struct {
	Sell SignedIntent `json:"sell" binding:"required"`
	Buy  SignedIntent `json:"buy" binding:"required"`
	// Amount is optional; nil settles the maximum valid amount.
	Amount *big.Int `json:"amount,omitempty"`
}

type PairRequest struct {
	Sell *Intent `json:"sell" binding:"required"`
	Buy  *Intent `json:"buy" binding:"required"`
}

type AmountResponse struct {
	Amount *big.Int `json:"amount"`
}

type FillResponse struct {
	Fill      *Fill           `json:"fill"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type BrokerbotBuyRequest struct {
	Buy      SignedIntent `json:"buy" binding:"required"`
	MaxPrice *big.Int     `json:"max_price,omitempty"`
}

type BrokerbotSellRequest struct {
	Sell   SignedIntent `json:"sell" binding:"required"`
	Amount *big.Int     `json:"amount,omitempty"`
}

type InvalidateNoncesRequest struct {
	WordPos *big.Int `json:"word_pos" binding:"required"`
	Mask    *big.Int `json:"mask" binding:"required"`
}

type NonceResponse struct {
	Owner common.Address `json:"owner"`
	Nonce *big.Int       `json:"nonce"`
}

type BitmapResponse struct {
	Owner   common.Address `json:"owner"`
	WordPos *big.Int       `json:"word_pos"`
	Bitmap  *big.Int       `json:"bitmap"`
}

type ApproveRequest struct {
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount" binding:"required"`
}

type MintRequest struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount" binding:"required"`
}

type BalanceResponse struct {
	Token     common.Address `json:"token"`
	Owner     common.Address `json:"owner"`
	Balance   *big.Int       `json:"balance"`
	Allowance *big.Int       `json:"permit_allowance"`
}

// MarketRequest identifies a market by its constructor arguments. Owner defaults to the caller.
type MarketRequest struct {
	Owner    *common.Address `json:"owner,omitempty"`
	Currency common.Address  `json:"currency"`
	Token    common.Address  `json:"token"`
	Reactor  common.Address  `json:"reactor"`
	Router   *common.Address `json:"router,omitempty"`
}

type PredictResponse struct {
	Address common.Address `json:"address"`
}

type DeployResponse struct {
	Market  MarketInfo `json:"market"`
	Created bool       `json:"created"`
}

type CreateOrderRequest struct {
	AmountOffered   *big.Int `json:"amount_offered" binding:"required"`
	AmountWanted    *big.Int `json:"amount_wanted" binding:"required"`
	ValiditySeconds uint64   `json:"validity_seconds" binding:"required"`
}

// OrderResponse carries the intent plus the typed data the owner must sign.
type OrderResponse struct {
	Intent    *Intent            `json:"intent"`
	TypedData apitypes.TypedData `json:"typed_data"`
	Hash      hexutil.Bytes      `json:"hash"`
	UnitPrice decimal.Decimal    `json:"unit_price"`
}

type VerifyRequest struct {
	Intent    *Intent       `json:"intent" binding:"required"`
	Signature hexutil.Bytes `json:"signature" binding:"required"`
}

type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type ExecutableRequest struct {
	Intent *Intent `json:"intent" binding:"required"`
}

type FeeRequest struct {
	FeeBips uint64 `json:"fee_bips"`
}

type WithdrawRequest struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount" binding:"required"`
}
