package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	EventUnorderedNonceInvalidation = "UnorderedNonceInvalidation"
	EventIntentSignal               = "IntentSignal"
	EventSecondaryMarketDeployed    = "SecondaryMarketDeployed"
	EventIntentFilled               = "IntentFilled"
)

// Event is the envelope every sink receives.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type NonceInvalidation struct {
	Owner   common.Address `json:"owner"`
	WordPos *big.Int       `json:"wordPos"`
	Mask    *big.Int       `json:"mask"`
}

type IntentSignal struct {
	Owner      common.Address `json:"owner"`
	Filler     common.Address `json:"filler"`
	TokenOut   common.Address `json:"tokenOut"`
	AmountOut  *big.Int       `json:"amountOut"`
	TokenIn    common.Address `json:"tokenIn"`
	AmountIn   *big.Int       `json:"amountIn"`
	Expiration uint64         `json:"expiration"`
	Nonce      *big.Int       `json:"nonce"`
	Data       hexutil.Bytes  `json:"data"`
	Signature  hexutil.Bytes  `json:"signature"`
}

type MarketDeployed struct {
	Owner   common.Address `json:"owner"`
	Address common.Address `json:"address"`
}
