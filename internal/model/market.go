package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const MaxFeeBips = 10000

// MarketInfo is the immutable identity of one currency/asset venue plus its mutable fee policy.
type MarketInfo struct {
	Address        common.Address  `json:"address"`
	Owner          common.Address  `json:"owner"`
	Currency       common.Address  `json:"currency"`
	Token          common.Address  `json:"token"`
	Reactor        common.Address  `json:"reactor"`
	Router         *common.Address `json:"router,omitempty"`
	TradingFeeBips uint64          `json:"tradingFeeBips"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// RouterAddress returns the zero address when no router is set.
func (m *MarketInfo) RouterAddress() common.Address {
	if m.Router == nil {
		return common.Address{}
	}
	return *m.Router
}

// Relayer is an authenticated API caller; Address is the identity it acts as (filler, owner).
type Relayer struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	ApiKey  string          `json:"api_key"`
	Address common.Address  `json:"address"`
	Rate    RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig defines a relayer's request budget
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`
	Burst int     `json:"burst"`
}
