package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
)

// initCodeHash stands in for the deployed bytecode hash in address derivation.
var initCodeHash = crypto.Keccak256([]byte("SecondaryMarket"))

var saltArgs = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	args := make(abi.Arguments, 5)
	for i := range args {
		args[i] = abi.Argument{Type: addressType}
	}
	return args
}()

// FactoryDeps are the collaborators every market built by a factory shares.
type FactoryDeps struct {
	Settler  Settler
	Auth     Authorization
	Ledger   ledger.Ledger
	Verifier SignatureVerifier
	Repo     Repo
	Events   events.Publisher
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Factory deploys markets at addresses derived from their identity, so an address can be
// predicted before deployment and deploying the same identity twice returns the same market.
type Factory struct {
	address        common.Address
	defaultFeeBips uint64
	deps           FactoryDeps
	logger         *slog.Logger

	mu      sync.Mutex
	markets map[common.Address]*Market
}

func NewFactory(address common.Address, defaultFeeBips uint64, deps FactoryDeps) (*Factory, error) {
	if deps.Settler == nil || deps.Auth == nil || deps.Ledger == nil || deps.Verifier == nil {
		return nil, errors.New("factory: settler, auth, ledger and verifier are required")
	}
	if defaultFeeBips > model.MaxFeeBips {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "default fee of %d bips exceeds %d", defaultFeeBips, model.MaxFeeBips)
	}
	if deps.Repo == nil {
		deps.Repo = NewMemoryRepo()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Factory{
		address:        address,
		defaultFeeBips: defaultFeeBips,
		deps:           deps,
		logger:         logger.Component(deps.Logger, "market-factory"),
		markets:        make(map[common.Address]*Market),
	}, nil
}

func (f *Factory) Address() common.Address {
	return f.address
}

// Predict returns the address Deploy would use for these arguments.
func (f *Factory) Predict(owner, currency, token, reactorAddr common.Address, router *common.Address) (common.Address, error) {
	routerAddr := common.Address{}
	if router != nil {
		routerAddr = *router
	}
	packed, err := saltArgs.Pack(owner, currency, token, reactorAddr, routerAddr)
	if err != nil {
		return common.Address{}, err
	}
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(packed))
	return crypto.CreateAddress2(f.address, salt, initCodeHash), nil
}

// Deploy creates the market or returns the existing one; created reports which.
func (f *Factory) Deploy(ctx context.Context, owner, currency, token, reactorAddr common.Address, router *common.Address) (m *Market, created bool, err error) {
	if owner == (common.Address{}) {
		return nil, false, apperrors.NewInvalidRequest("market owner is required")
	}
	if currency == token {
		return nil, false, apperrors.NewInvalidRequest("currency and token must differ")
	}
	if reactorAddr != f.deps.Settler.Address() {
		return nil, false, apperrors.Newf(apperrors.ErrInvalidRequest, "unknown reactor %s", reactorAddr.Hex())
	}
	if router != nil && *router == (common.Address{}) {
		router = nil
	}
	addr, err := f.Predict(owner, currency, token, reactorAddr, router)
	if err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, err := f.loadLocked(ctx, addr); err == nil {
		return existing, false, nil
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	info := &model.MarketInfo{
		Address:        addr,
		Owner:          owner,
		Currency:       currency,
		Token:          token,
		Reactor:        reactorAddr,
		TradingFeeBips: f.defaultFeeBips,
		CreatedAt:      f.deps.Clock().UTC(),
	}
	if router != nil {
		r := *router
		info.Router = &r
	}
	if err := f.deps.Repo.Save(ctx, info); err != nil {
		return nil, false, err
	}
	m = f.bind(*info)
	f.markets[addr] = m

	f.logger.Info("market deployed", "address", addr.Hex(), "owner", owner.Hex(), "token", token.Hex(), "currency", currency.Hex())
	if f.deps.Events != nil {
		f.deps.Events.Publish(model.EventSecondaryMarketDeployed, model.MarketDeployed{Owner: owner, Address: addr})
	}
	return m, true, nil
}

// Get returns a deployed market.
func (f *Factory) Get(ctx context.Context, addr common.Address) (*Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked(ctx, addr)
}

func (f *Factory) List(ctx context.Context) ([]model.MarketInfo, error) {
	infos, err := f.deps.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.MarketInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, *info)
	}
	return out, nil
}

func (f *Factory) loadLocked(ctx context.Context, addr common.Address) (*Market, error) {
	if m, ok := f.markets[addr]; ok {
		return m, nil
	}
	info, err := f.deps.Repo.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	m := f.bind(*info)
	f.markets[addr] = m
	return m, nil
}

func (f *Factory) bind(info model.MarketInfo) *Market {
	return &Market{
		info:     info,
		settler:  f.deps.Settler,
		auth:     f.deps.Auth,
		ledger:   f.deps.Ledger,
		verifier: f.deps.Verifier,
		repo:     f.deps.Repo,
		now:      f.deps.Clock,
		logger:   logger.Component(f.deps.Logger, "market").With("market", info.Address.Hex()),
	}
}
