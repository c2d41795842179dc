package service

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/intentgate/internal/brokerbot"
	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/market"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/permit"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/reactor"
	"github.com/GoPolymarket/intentgate/internal/signer"
)

// SettlementService is what the HTTP layer talks to. caller is always the authenticated relayer's address.
type SettlementService struct {
	reactor  *reactor.Reactor
	permit   *permit.Permit2
	ledger   *ledger.Book
	factory  *market.Factory
	bots     *brokerbot.Registry
	verifier *signer.Verifier
	bus      *events.Bus
	logger   *slog.Logger
}

type SettlementDeps struct {
	Reactor  *reactor.Reactor
	Permit   *permit.Permit2
	Ledger   *ledger.Book
	Factory  *market.Factory
	Bots     *brokerbot.Registry
	Verifier *signer.Verifier
	Bus      *events.Bus
	Logger   *slog.Logger
}

func NewSettlementService(deps SettlementDeps) *SettlementService {
	bots := deps.Bots
	if bots == nil {
		bots = brokerbot.NewRegistry()
	}
	return &SettlementService{
		reactor:  deps.Reactor,
		permit:   deps.Permit,
		ledger:   deps.Ledger,
		factory:  deps.Factory,
		bots:     bots,
		verifier: deps.Verifier,
		bus:      deps.Bus,
		logger:   logger.Component(deps.Logger, "settlement-service"),
	}
}

func (s *SettlementService) Process(ctx context.Context, caller common.Address, req *model.ProcessRequest) (*model.FillResponse, error) {
	fill, err := s.reactor.Process(ctx, caller,
		req.Sell.Intent, req.Sell.Signature,
		req.Buy.Intent, req.Buy.Signature,
		req.Amount)
	if err != nil {
		return nil, err
	}
	return fillResponse(fill), nil
}

func (s *SettlementService) MaxValidAmount(ctx context.Context, req *model.PairRequest) (*model.AmountResponse, error) {
	amount, err := s.reactor.GetMaxValidAmount(ctx, req.Sell, req.Buy)
	if err != nil {
		return nil, err
	}
	return &model.AmountResponse{Amount: amount}, nil
}

func (s *SettlementService) Filled(ctx context.Context, owner common.Address, nonce *big.Int) (*model.AmountResponse, error) {
	if nonce == nil || nonce.Sign() < 0 {
		return nil, apperrors.NewInvalidRequest("nonce must be a non-negative integer")
	}
	filled, err := s.permit.Filled(ctx, owner, nonce)
	if err != nil {
		return nil, err
	}
	return &model.AmountResponse{Amount: filled}, nil
}

// Signal verifies the intent before broadcasting it so the stream only carries signed intents.
func (s *SettlementService) Signal(ctx context.Context, req *model.SignedIntent) error {
	if err := req.Intent.Validate(); err != nil {
		return err
	}
	if err := s.verifier.VerifyIntent(ctx, req.Intent, s.reactor.Address(), req.Signature); err != nil {
		return err
	}
	return s.reactor.SignalIntent(ctx, req.Intent, req.Signature)
}

func (s *SettlementService) BuyFromBrokerbot(ctx context.Context, caller, bot common.Address, req *model.BrokerbotBuyRequest) (*model.FillResponse, error) {
	pm, err := s.bots.Get(bot)
	if err != nil {
		return nil, err
	}
	fill, err := s.reactor.BuyFromBrokerbot(ctx, caller, pm, req.Buy.Intent, req.Buy.Signature, req.MaxPrice)
	if err != nil {
		return nil, err
	}
	return fillResponse(fill), nil
}

func (s *SettlementService) SellToBrokerbot(ctx context.Context, caller, bot common.Address, req *model.BrokerbotSellRequest) (*model.FillResponse, error) {
	pm, err := s.bots.Get(bot)
	if err != nil {
		return nil, err
	}
	fill, err := s.reactor.SellToBrokerbot(ctx, caller, pm, req.Sell.Intent, req.Sell.Signature, req.Amount)
	if err != nil {
		return nil, err
	}
	return fillResponse(fill), nil
}

func (s *SettlementService) FreeNonce(ctx context.Context, owner common.Address, startWord *big.Int) (*model.NonceResponse, error) {
	nonce, err := s.permit.FindFreeNonce(ctx, owner, startWord)
	if err != nil {
		return nil, err
	}
	return &model.NonceResponse{Owner: owner, Nonce: nonce}, nil
}

func (s *SettlementService) NonceBitmap(ctx context.Context, owner common.Address, wordPos *big.Int) (*model.BitmapResponse, error) {
	bitmap, err := s.permit.NonceBitmap(ctx, owner, wordPos)
	if err != nil {
		return nil, err
	}
	return &model.BitmapResponse{Owner: owner, WordPos: wordPos, Bitmap: bitmap}, nil
}

func (s *SettlementService) InvalidateNonces(ctx context.Context, caller common.Address, req *model.InvalidateNoncesRequest) error {
	return s.permit.InvalidateUnorderedNonces(ctx, caller, req.WordPos, req.Mask)
}

// Approve defaults the spender to the permit contract, which is the approval every owner needs.
func (s *SettlementService) Approve(ctx context.Context, caller common.Address, req *model.ApproveRequest) error {
	spender := req.Spender
	if spender == (common.Address{}) {
		spender = s.permit.Address()
	}
	return s.ledger.Approve(ctx, req.Token, caller, spender, req.Amount)
}

func (s *SettlementService) Balance(ctx context.Context, token, owner common.Address) (*model.BalanceResponse, error) {
	balance, err := s.ledger.BalanceOf(ctx, token, owner)
	if err != nil {
		return nil, err
	}
	allowance, err := s.ledger.Allowance(ctx, token, owner, s.permit.Address())
	if err != nil {
		return nil, err
	}
	return &model.BalanceResponse{Token: token, Owner: owner, Balance: balance, Allowance: allowance}, nil
}

func (s *SettlementService) Mint(ctx context.Context, req *model.MintRequest) error {
	if req.To == (common.Address{}) {
		return apperrors.NewInvalidRequest("mint recipient is required")
	}
	if err := s.ledger.Mint(ctx, req.Token, req.To, req.Amount); err != nil {
		return err
	}
	s.logger.Info("minted", "token", req.Token.Hex(), "to", req.To.Hex(), "amount", req.Amount.String())
	return nil
}

func (s *SettlementService) PredictMarket(caller common.Address, req *model.MarketRequest) (*model.PredictResponse, error) {
	addr, err := s.factory.Predict(marketOwner(caller, req), req.Currency, req.Token, req.Reactor, req.Router)
	if err != nil {
		return nil, err
	}
	return &model.PredictResponse{Address: addr}, nil
}

func (s *SettlementService) DeployMarket(ctx context.Context, caller common.Address, req *model.MarketRequest) (*model.DeployResponse, error) {
	if req.Owner != nil && *req.Owner != caller {
		return nil, apperrors.Newf(apperrors.ErrUnauthorized, "markets are deployed for the caller %s", caller.Hex())
	}
	m, created, err := s.factory.Deploy(ctx, caller, req.Currency, req.Token, req.Reactor, req.Router)
	if err != nil {
		return nil, err
	}
	return &model.DeployResponse{Market: m.Info(), Created: created}, nil
}

func (s *SettlementService) Market(ctx context.Context, addr common.Address) (*model.MarketInfo, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	info := m.Info()
	return &info, nil
}

func (s *SettlementService) ListMarkets(ctx context.Context) ([]model.MarketInfo, error) {
	return s.factory.List(ctx)
}

// CreateOrder builds a buy (buy=true) or sell intent on a market for the caller and returns the digest to sign.
func (s *SettlementService) CreateOrder(ctx context.Context, caller, addr common.Address, buy bool, req *model.CreateOrderRequest) (*model.OrderResponse, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	var intent *model.Intent
	if buy {
		intent, err = m.CreateBuyOrder(ctx, caller, req.AmountOffered, req.AmountWanted, req.ValiditySeconds)
	} else {
		intent, err = m.CreateSellOrder(ctx, caller, req.AmountOffered, req.AmountWanted, req.ValiditySeconds)
	}
	if err != nil {
		return nil, err
	}
	typed, hash, err := s.typedData(intent, m.Info().Reactor)
	if err != nil {
		return nil, err
	}
	return &model.OrderResponse{
		Intent:    intent,
		TypedData: typed,
		Hash:      hash,
		UnitPrice: intent.UnitPrice(),
	}, nil
}

func (s *SettlementService) ProcessOnMarket(ctx context.Context, caller, addr common.Address, req *model.ProcessRequest) (*model.FillResponse, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	fill, err := m.Process(ctx, caller, req.Sell.Intent, req.Sell.Signature, req.Buy.Intent, req.Buy.Signature, req.Amount)
	if err != nil {
		return nil, err
	}
	return fillResponse(fill), nil
}

func (s *SettlementService) Executable(ctx context.Context, addr common.Address, intent *model.Intent) (*market.Executable, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return m.ExecutableAmount(ctx, intent)
}

// VerifyOnMarket reports a bad signature as a negative answer rather than an error.
func (s *SettlementService) VerifyOnMarket(ctx context.Context, addr common.Address, req *model.VerifyRequest) (*model.VerifyResponse, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := req.Intent.Validate(); err != nil {
		return nil, err
	}
	if err := m.VerifySignature(ctx, req.Intent, req.Signature); err != nil {
		if apperrors.Is(err, apperrors.ErrSignatureInvalid) {
			return &model.VerifyResponse{Valid: false, Reason: err.Error()}, nil
		}
		return nil, err
	}
	return &model.VerifyResponse{Valid: true}, nil
}

func (s *SettlementService) SetTradingFee(ctx context.Context, caller, addr common.Address, bips uint64) (*model.MarketInfo, error) {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := m.SetTradingFee(ctx, caller, bips); err != nil {
		return nil, err
	}
	info := m.Info()
	return &info, nil
}

func (s *SettlementService) Withdraw(ctx context.Context, caller, addr common.Address, req *model.WithdrawRequest) error {
	m, err := s.factory.Get(ctx, addr)
	if err != nil {
		return err
	}
	return m.Withdraw(ctx, caller, req.Token, req.To, req.Amount)
}

func (s *SettlementService) RecentEvents(name string, limit int) []*model.Event {
	if s.bus == nil {
		return nil
	}
	return s.bus.Recent(name, limit)
}

func (s *SettlementService) typedData(intent *model.Intent, spender common.Address) (apitypes.TypedData, []byte, error) {
	typed, err := signer.PermitTypedData(s.verifier.Domain(), intent.Permit(), spender, intent)
	if err != nil {
		return apitypes.TypedData{}, nil, apperrors.New(apperrors.ErrInternal, "cannot build typed data", err)
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return apitypes.TypedData{}, nil, apperrors.New(apperrors.ErrInternal, "cannot hash typed data", err)
	}
	return typed, hash, nil
}

func marketOwner(caller common.Address, req *model.MarketRequest) common.Address {
	if req.Owner != nil {
		return *req.Owner
	}
	return caller
}

func fillResponse(fill *model.Fill) *model.FillResponse {
	resp := &model.FillResponse{Fill: fill, UnitPrice: decimal.Zero}
	if fill.Amount != nil && fill.Amount.Sign() > 0 && fill.Price != nil {
		resp.UnitPrice = decimal.NewFromBigInt(fill.Price, 0).DivRound(decimal.NewFromBigInt(fill.Amount, 0), 18)
	}
	return resp
}
