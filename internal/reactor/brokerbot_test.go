package reactor

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/brokerbot"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

var botAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")

// newBot quotes 10 cash per unit, flat.
func (f *fixture) newBot() *brokerbot.Brokerbot {
	f.t.Helper()
	bot, err := brokerbot.New(brokerbot.Config{
		Address:  botAddr,
		Token:    asset,
		Currency: cash,
		Price:    big.NewInt(10),
	}, f.store, f.book, nil)
	require.NoError(f.t, err)

	ctx := context.Background()
	require.NoError(f.t, f.book.Mint(ctx, asset, botAddr, big.NewInt(1000)))
	require.NoError(f.t, f.book.Mint(ctx, cash, botAddr, big.NewInt(10000)))
	return bot
}

func TestBuyFromBrokerbot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bot := f.newBot()
	buyer := f.party(0, 1200)

	// Bid of 12 per unit; the bot charges 10.
	buy, sig := f.buyIntent(buyer, 1200, 100, 1)

	_, err := f.reactor.BuyFromBrokerbot(ctx, reactorAddr, bot, buy, sig, big.NewInt(999))
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferTooLow), "max price below quote")

	fill, err := f.reactor.BuyFromBrokerbot(ctx, reactorAddr, bot, buy, sig, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(100), fill.Amount.Int64())
	assert.Equal(t, int64(1000), fill.Price.Int64())

	assert.Equal(t, int64(100), f.balance(asset, buyer.Address()))
	assert.Equal(t, int64(200), f.balance(cash, buyer.Address()), "price improvement stays with the buyer")
	assert.Equal(t, int64(11000), f.balance(cash, botAddr))

	// The leftover 200 cash does not reopen the intent.
	_, err = f.reactor.BuyFromBrokerbot(ctx, reactorAddr, bot, buy, sig, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrOverFilled))
	assert.Equal(t, int64(100), f.balance(asset, buyer.Address()))
}

func TestBuyFromBrokerbot_BidBelowQuote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bot := f.newBot()
	buyer := f.party(0, 900)
	buy, sig := f.buyIntent(buyer, 900, 100, 1)

	_, err := f.reactor.BuyFromBrokerbot(ctx, reactorAddr, bot, buy, sig, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferTooLow))
	assert.Equal(t, int64(900), f.balance(cash, buyer.Address()))
}

func TestSellToBrokerbot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bot := f.newBot()
	seller := f.party(100, 0)

	// Ask of 8 per unit; the bot pays 10.
	sell, sig := f.sellIntent(seller, 100, 800, 1)

	fill, err := f.reactor.SellToBrokerbot(ctx, reactorAddr, bot, sell, sig, big.NewInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(400), fill.Proceeds.Int64())
	assert.Equal(t, int64(400), f.balance(cash, seller.Address()))

	fill, err = f.reactor.SellToBrokerbot(ctx, reactorAddr, bot, sell, sig, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(60), fill.Amount.Int64())
	assert.Zero(t, f.balance(asset, seller.Address()))

	_, err = f.reactor.SellToBrokerbot(ctx, reactorAddr, bot, sell, sig, big.NewInt(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrOverFilled))
}

func TestSellToBrokerbot_AskAboveBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bot := f.newBot()
	seller := f.party(100, 0)
	sell, sig := f.sellIntent(seller, 100, 1100, 1)

	_, err := f.reactor.SellToBrokerbot(ctx, reactorAddr, bot, sell, sig, big.NewInt(10))
	assert.True(t, apperrors.Is(err, apperrors.ErrOfferTooLow))
}

func TestBrokerbot_TokenMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bot := f.newBot()
	seller := f.party(100, 0)
	sell, sig := f.sellIntent(seller, 100, 800, 1)

	_, err := f.reactor.BuyFromBrokerbot(ctx, reactorAddr, bot, sell, sig, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenMismatch))
}
