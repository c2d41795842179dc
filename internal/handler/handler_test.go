package handler

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/market"
	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/permit"
	"github.com/GoPolymarket/intentgate/internal/reactor"
	"github.com/GoPolymarket/intentgate/internal/service"
	"github.com/GoPolymarket/intentgate/internal/signer"
	"github.com/GoPolymarket/intentgate/internal/store"
)

var (
	permit2Addr = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	reactorAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	asset       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	cash        = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	fillerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

type api struct {
	t      *testing.T
	router *gin.Engine
	seller *signer.Signer
	buyer  *signer.Signer
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	domain := signer.Domain{
		Name:              signer.DefaultDomainName,
		Version:           signer.DefaultDomainVersion,
		ChainID:           137,
		VerifyingContract: permit2Addr,
		Salt:              crypto.Keccak256Hash([]byte("handler-test")),
	}
	newSigner := func() *signer.Signer {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		return signer.NewSignerFromKey(key, domain)
	}
	a := &api{t: t, seller: newSigner(), buyer: newSigner()}

	bus := events.NewBus(100, nil)
	t.Cleanup(bus.Close)

	s := store.NewMemoryStore()
	book := ledger.New(s)
	verifier := signer.NewVerifier(domain, nil, nil)
	p := permit.New(permit2Addr, s, book, verifier, permit.WithPublisher(bus))
	r := reactor.New(reactorAddr, s, p, book, reactor.WithPublisher(bus))
	factory, err := market.NewFactory(factoryAddr, 0, market.FactoryDeps{
		Settler:  r,
		Auth:     p,
		Ledger:   book,
		Verifier: verifier,
		Events:   bus,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Auth: config.AuthConfig{AdminKey: "admin"},
		Relayers: []config.RelayerConfig{
			{ID: "seller", APIKey: "seller-key", Address: a.seller.Address().Hex()},
			{ID: "buyer", APIKey: "buyer-key", Address: a.buyer.Address().Hex()},
			{ID: "filler", APIKey: "filler-key", Address: fillerAddr.Hex()},
		},
	}
	svc := service.NewSettlementService(service.SettlementDeps{
		Reactor:  r,
		Permit:   p,
		Ledger:   book,
		Factory:  factory,
		Verifier: verifier,
		Bus:      bus,
	})

	a.router = gin.New()
	a.router.Use(middleware.ErrorHandler())
	Register(a.router, RouterDeps{
		Config:      cfg,
		Settlement:  NewSettlementHandler(svc),
		Relayers:    service.NewRelayerManager(cfg.Relayers),
		Idempotency: middleware.NewInMemIdempotencyStore(time.Hour),
	})
	return a
}

func (a *api) call(method, path, key string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key == "admin" {
		req.Header.Set(middleware.HeaderAdminKey, key)
	} else if key != "" {
		req.Header.Set(middleware.HeaderGatewayKey, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) fund(key string, who common.Address, token common.Address, amount int64) {
	a.t.Helper()
	rec := a.call(http.MethodPost, "/v1/admin/ledger/mint", "admin", model.MintRequest{Token: token, To: who, Amount: big.NewInt(amount)})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.call(http.MethodPost, "/v1/ledger/approve", key, model.ApproveRequest{Token: token, Amount: ledger.MaxAllowance})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (a *api) balance(token, owner common.Address) int64 {
	a.t.Helper()
	rec := a.call(http.MethodGet, "/v1/ledger/balance?token="+token.Hex()+"&owner="+owner.Hex(), "filler-key", nil)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.BalanceResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Balance.Int64()
}

func (a *api) sign(owner *signer.Signer, intent *model.Intent) model.SignedIntent {
	a.t.Helper()
	sig, err := owner.SignIntent(intent, reactorAddr)
	require.NoError(a.t, err)
	return model.SignedIntent{Intent: intent, Signature: sig}
}

func intent(owner common.Address, tokenOut common.Address, amountOut int64, tokenIn common.Address, amountIn int64) *model.Intent {
	now := uint64(time.Now().Unix())
	return &model.Intent{
		Owner:      owner,
		TokenOut:   tokenOut,
		AmountOut:  big.NewInt(amountOut),
		TokenIn:    tokenIn,
		AmountIn:   big.NewInt(amountIn),
		Creation:   now - 10,
		Expiration: now + 600,
		Nonce:      big.NewInt(7),
	}
}

func TestHealthAndAuth(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/health", "", nil).Code)

	rec := a.call(http.MethodGet, "/v1/markets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTH_FAILED")

	rec = a.call(http.MethodPost, "/v1/admin/ledger/mint", "seller-key", model.MintRequest{Token: asset, To: fillerAddr, Amount: big.NewInt(1)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMaxValidAmountOverHTTP_RejectsZeroAmounts(t *testing.T) {
	a := newAPI(t)
	sell := intent(a.seller.Address(), asset, 100, cash, 1000)
	buy := intent(a.buyer.Address(), cash, 0, asset, 0)

	rec := a.call(http.MethodPost, "/v1/reactor/max-valid-amount", "filler-key", model.PairRequest{Sell: sell, Buy: buy})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestProcessOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.fund("seller-key", a.seller.Address(), asset, 100)
	a.fund("buyer-key", a.buyer.Address(), cash, 1000)

	req := model.ProcessRequest{
		Sell: a.sign(a.seller, intent(a.seller.Address(), asset, 100, cash, 1000)),
		Buy:  a.sign(a.buyer, intent(a.buyer.Address(), cash, 1000, asset, 100)),
	}

	rec := a.call(http.MethodPost, "/v1/reactor/max-valid-amount", "filler-key", model.PairRequest{Sell: req.Sell.Intent, Buy: req.Buy.Intent})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var maxValid model.AmountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &maxValid))
	assert.Equal(t, int64(100), maxValid.Amount.Int64())

	first := a.call(http.MethodPost, "/v1/reactor/process", "filler-key", req, middleware.HeaderIdempotencyKey, "settle-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	var fill model.FillResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &fill))
	assert.Equal(t, int64(100), fill.Fill.Amount.Int64())
	assert.Equal(t, int64(1000), fill.Fill.Price.Int64())
	assert.Equal(t, "10", fill.UnitPrice.String())

	// The same idempotency key replays the stored response instead of settling again.
	replay := a.call(http.MethodPost, "/v1/reactor/process", "filler-key", req, middleware.HeaderIdempotencyKey, "settle-1")
	assert.Equal(t, first.Body.String(), replay.Body.String())

	again := a.call(http.MethodPost, "/v1/reactor/process", "filler-key", req)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Contains(t, again.Body.String(), "OVER_FILLED")

	assert.Equal(t, int64(1000), a.balance(cash, a.seller.Address()))
	assert.Equal(t, int64(100), a.balance(asset, a.buyer.Address()))

	rec = a.call(http.MethodGet, "/v1/reactor/filled?owner="+a.seller.Address().Hex()+"&nonce=7", "filler-key", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var filled model.AmountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filled))
	assert.Equal(t, int64(100), filled.Amount.Int64())
}

func TestProcessOverHTTP_RejectsTamperedIntent(t *testing.T) {
	a := newAPI(t)
	a.fund("seller-key", a.seller.Address(), asset, 100)
	a.fund("buyer-key", a.buyer.Address(), cash, 1000)

	sell := a.sign(a.seller, intent(a.seller.Address(), asset, 100, cash, 1000))
	sell.Intent.AmountIn = big.NewInt(1)
	req := model.ProcessRequest{
		Sell: sell,
		Buy:  a.sign(a.buyer, intent(a.buyer.Address(), cash, 1000, asset, 100)),
	}
	rec := a.call(http.MethodPost, "/v1/reactor/process", "filler-key", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SIGNATURE_INVALID")
	assert.Equal(t, int64(100), a.balance(asset, a.seller.Address()))
}

func TestNonceInvalidationOverHTTP(t *testing.T) {
	a := newAPI(t)

	rec := a.call(http.MethodPost, "/v1/nonces/invalidate", "seller-key", model.InvalidateNoncesRequest{WordPos: big.NewInt(0), Mask: big.NewInt(0xff)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(http.MethodGet, "/v1/nonces/bitmap?word_pos=0", "seller-key", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bitmap model.BitmapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bitmap))
	assert.Equal(t, int64(0xff), bitmap.Bitmap.Int64())

	rec = a.call(http.MethodGet, "/v1/nonces/free", "seller-key", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var free model.NonceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &free))
	assert.Equal(t, int64(8), free.Nonce.Int64())

	rec = a.call(http.MethodGet, "/v1/events?name="+model.EventUnorderedNonceInvalidation, "seller-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), model.EventUnorderedNonceInvalidation)
}

func TestMarketOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.fund("seller-key", a.seller.Address(), asset, 100)

	deploy := model.MarketRequest{Currency: cash, Token: asset, Reactor: reactorAddr}
	rec := a.call(http.MethodPost, "/v1/factory/predict", "filler-key", deploy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var predicted model.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &predicted))

	rec = a.call(http.MethodPost, "/v1/factory/deploy", "filler-key", deploy)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var deployed model.DeployResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployed))
	assert.Equal(t, predicted.Address, deployed.Market.Address)

	rec = a.call(http.MethodPost, "/v1/factory/deploy", "filler-key", deploy)
	assert.Equal(t, http.StatusOK, rec.Code, "second deploy returns the existing market")

	base := "/v1/markets/" + deployed.Market.Address.Hex()
	rec = a.call(http.MethodPost, base+"/orders/sell", "seller-key", model.CreateOrderRequest{
		AmountOffered: big.NewInt(40), AmountWanted: big.NewInt(400), ValiditySeconds: 60,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order model.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, a.seller.Address(), order.Intent.Owner)
	assert.Equal(t, deployed.Market.Address, order.Intent.Filler)

	// The returned digest is exactly what the owner signs.
	sig, err := a.seller.SignIntent(order.Intent, reactorAddr)
	require.NoError(t, err)
	hash, err := signer.IntentHash(a.seller.Domain(), order.Intent, reactorAddr)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Bytes(hash), order.Hash)

	rec = a.call(http.MethodPost, base+"/verify", "filler-key", model.VerifyRequest{Intent: order.Intent, Signature: sig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified model.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.Valid)

	rec = a.call(http.MethodPost, base+"/executable", "filler-key", model.ExecutableRequest{Intent: order.Intent})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exec market.Executable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, int64(40), exec.Amount.Int64())
	assert.False(t, exec.InsufficientLiquidity)

	rec = a.call(http.MethodPut, base+"/fee", "seller-key", model.FeeRequest{FeeBips: 50})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the owner sets the fee")
	rec = a.call(http.MethodPut, base+"/fee", "filler-key", model.FeeRequest{FeeBips: 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info model.MarketInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, uint64(50), info.TradingFeeBips)
}

func TestBadAddressParam(t *testing.T) {
	a := newAPI(t)
	rec := a.call(http.MethodGet, "/v1/markets/not-an-address", "filler-key", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.call(http.MethodGet, "/v1/markets/"+common.HexToAddress("0x1234").Hex(), "filler-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
