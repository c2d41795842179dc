package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Permit is the envelope a signature covers: up to Amount of Token, single-use Nonce, valid until Deadline.
type Permit struct {
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	Nonce    *big.Int       `json:"nonce"`
	Deadline uint64         `json:"deadline"`
}

// TransferDetails is the per-call part of a permit transfer.
type TransferDetails struct {
	To              common.Address `json:"to"`
	RequestedAmount *big.Int       `json:"requestedAmount"`
}

// Fill summarises one committed settlement.
type Fill struct {
	Seller    common.Address `json:"seller"`
	Buyer     common.Address `json:"buyer"`
	Token     common.Address `json:"token"`
	Currency  common.Address `json:"currency"`
	Amount    *big.Int       `json:"amount"`
	Price     *big.Int       `json:"price"`
	Fee       *big.Int       `json:"fee"`
	Proceeds  *big.Int       `json:"proceeds"`
	Filler    common.Address `json:"filler"`
	SellNonce *big.Int       `json:"sellNonce,omitempty"`
	BuyNonce  *big.Int       `json:"buyNonce,omitempty"`
	Kind      string         `json:"kind"`
}

const (
	FillKindMatch         = "match"
	FillKindBrokerbotBuy  = "brokerbot_buy"
	FillKindBrokerbotSell = "brokerbot_sell"
)
