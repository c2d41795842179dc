package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/GoPolymarket/intentgate/internal/brokerbot"
	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/events"
	"github.com/GoPolymarket/intentgate/internal/handler"
	"github.com/GoPolymarket/intentgate/internal/ledger"
	"github.com/GoPolymarket/intentgate/internal/market"
	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/permit"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/retry"
	"github.com/GoPolymarket/intentgate/internal/reactor"
	"github.com/GoPolymarket/intentgate/internal/repository"
	"github.com/GoPolymarket/intentgate/internal/service"
	"github.com/GoPolymarket/intentgate/internal/signer"
	"github.com/GoPolymarket/intentgate/internal/store"
)

func main() {
	// 0. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 1. Initialize Logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	baseLog := logger.Get()

	// 2. Initialize Persistence
	var (
		gormDB  *gorm.DB
		sqlDB   *sqlx.DB
		redisDB *redis.Client
	)
	if cfg.Database.DSN != "" {
		if gormDB, err = repository.Connect(cfg.Database); err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		if sqlDB, err = repository.NewDB(cfg.Database); err != nil {
			log.Fatalf("Failed to open sqlx handle: %v", err)
		}
		logger.Info("Connected to PostgreSQL")
	}
	if cfg.Redis.Addr != "" {
		if redisDB, err = repository.NewRedisClient(cfg.Redis); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		logger.Info("Connected to Redis")
	}

	state, err := newStateStore(cfg, gormDB, redisDB)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}
	logger.Info("State store ready", "backend", cfg.Store.Backend)

	// 3. Events
	hub := events.NewHub(baseLog)
	sinks := []events.Sink{hub}
	var journal *repository.EventJournal
	if sqlDB != nil && cfg.Events.Journal {
		if journal, err = repository.NewEventJournal(context.Background(), sqlDB); err != nil {
			log.Fatalf("Failed to initialize event journal: %v", err)
		}
		sinks = append(sinks, journal)
	}
	if redisDB != nil && cfg.Events.Redis {
		sinks = append(sinks, repository.NewRedisEventSink(redisDB, cfg.Redis.EventChannel, cfg.Redis.EventListKey, cfg.Redis.EventListMax))
	}
	bus := events.NewBus(cfg.Events.BufferSize, baseLog, sinks...)

	// 4. Core Services
	permitAddr := common.HexToAddress(cfg.Contracts.Permit2)
	reactorAddr := common.HexToAddress(cfg.Contracts.Reactor)

	var contracts signer.ContractVerifier
	var eip1271 *signer.EIP1271Verifier
	if cfg.Chain.RPCURL != "" {
		eip1271, err = signer.NewEIP1271Verifier(cfg.Chain.RPCURL, cfg.EIP1271CacheTTL(), cfg.EIP1271Timeout(), cfg.Chain.EIP1271Retries)
		if err != nil {
			log.Fatalf("Failed to initialize EIP-1271 verifier: %v", err)
		}
		contracts = eip1271
	}
	verifier := signer.NewVerifier(signer.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.Chain.ID,
		VerifyingContract: permitAddr,
		Salt:              cfg.Domain.DomainSalt(),
	}, contracts, baseLog)

	book := ledger.New(state)
	permit2 := permit.New(permitAddr, state, book, verifier,
		permit.WithPublisher(bus), permit.WithLogger(baseLog))
	settlement := reactor.New(reactorAddr, state, permit2, book,
		reactor.WithPublisher(bus), reactor.WithLogger(baseLog))

	bots := brokerbot.NewRegistry()
	for _, bc := range cfg.Brokerbots {
		bot, err := newBrokerbot(bc, state, book)
		if err != nil {
			log.Fatalf("Failed to initialize brokerbot %s: %v", bc.Address, err)
		}
		bots.Register(bot)
		logger.Info("Brokerbot registered", "address", bot.Address().Hex())
	}

	var marketRepo market.Repo = market.NewMemoryRepo()
	if gormDB != nil {
		if marketRepo, err = repository.NewPostgresMarketRepo(gormDB, baseLog); err != nil {
			log.Fatalf("Failed to initialize market registry: %v", err)
		}
	}
	factory, err := market.NewFactory(common.HexToAddress(cfg.Contracts.Factory), cfg.Market.DefaultFeeBips, market.FactoryDeps{
		Settler:  settlement,
		Auth:     permit2,
		Ledger:   book,
		Verifier: verifier,
		Repo:     marketRepo,
		Events:   bus,
		Logger:   baseLog,
	})
	if err != nil {
		log.Fatalf("Failed to initialize market factory: %v", err)
	}

	svc := service.NewSettlementService(service.SettlementDeps{
		Reactor:  settlement,
		Permit:   permit2,
		Ledger:   book,
		Factory:  factory,
		Bots:     bots,
		Verifier: verifier,
		Bus:      bus,
		Logger:   baseLog,
	})
	relayers := service.NewRelayerManager(cfg.Relayers)

	var idempotency middleware.IdempotencyStore
	var pgIdempotency *repository.PostgresIdempotencyStore
	switch {
	case redisDB != nil:
		idempotency = repository.NewRedisIdempotencyStore(redisDB, cfg.IdempotencyTTL())
	case sqlDB != nil:
		if pgIdempotency, err = repository.NewPostgresIdempotencyStore(context.Background(), sqlDB); err != nil {
			log.Fatalf("Failed to initialize idempotency store: %v", err)
		}
		idempotency = pgIdempotency
	default:
		idempotency = middleware.NewInMemIdempotencyStore(cfg.IdempotencyTTL())
	}

	// 5. Setup Router
	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogMiddleware(baseLog))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	handler.Register(r, handler.RouterDeps{
		Config:      cfg,
		Settlement:  handler.NewSettlementHandler(svc),
		Relayers:    relayers,
		Idempotency: idempotency,
		Stream:      hub,
		Metrics:     promhttp.Handler(),
	})

	// 6. Retention
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go runRetention(ctx, time.Duration(cfg.Database.EventRetentionDays)*24*time.Hour, journal, pgIdempotency, cfg.IdempotencyTTL())

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("intentgate started", "port", cfg.Server.Port, "reactor", reactorAddr.Hex(), "permit2", permitAddr.Hex())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	stop()
	hub.Close()
	bus.Close()
	if eip1271 != nil {
		eip1271.Close()
	}
	if err := state.Close(); err != nil {
		logger.Error("State store close failed", "error", err)
	}
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
	if err := repository.CloseGorm(gormDB); err != nil {
		logger.Error("Postgres close failed", "error", err)
	}
	if redisDB != nil {
		_ = redisDB.Close()
	}

	logger.Info("Server exiting")
}

func newStateStore(cfg *config.Config, gormDB *gorm.DB, redisDB *redis.Client) (store.Store, error) {
	rc := retry.DefaultConfig()
	if cfg.Store.MaxRetries > 0 {
		rc.MaxRetries = cfg.Store.MaxRetries
	}
	switch cfg.Store.Backend {
	case "postgres":
		if gormDB == nil {
			return nil, fmt.Errorf("store.backend postgres needs database.dsn")
		}
		return store.NewPostgresStore(gormDB, rc, logger.Get())
	case "redis":
		if redisDB == nil {
			return nil, fmt.Errorf("store.backend redis needs redis.addr")
		}
		return store.NewRedisStore(redisDB, store.RedisStoreConfig{Prefix: cfg.Store.Prefix, Retry: rc}, logger.Get())
	default:
		return store.NewMemoryStore(), nil
	}
}

func newBrokerbot(bc config.BrokerbotConfig, s store.Store, l ledger.Ledger) (*brokerbot.Brokerbot, error) {
	price, ok := new(big.Int).SetString(bc.Price, 0)
	if !ok {
		return nil, fmt.Errorf("price %q is not an integer", bc.Price)
	}
	increment := new(big.Int)
	if bc.Increment != "" {
		if _, ok := increment.SetString(bc.Increment, 0); !ok {
			return nil, fmt.Errorf("increment %q is not an integer", bc.Increment)
		}
	}
	return brokerbot.New(brokerbot.Config{
		Address:   common.HexToAddress(bc.Address),
		Token:     common.HexToAddress(bc.Token),
		Currency:  common.HexToAddress(bc.Currency),
		Price:     price,
		Increment: increment,
	}, s, l, logger.Get())
}

func runRetention(ctx context.Context, eventRetention time.Duration, journal *repository.EventJournal, idem *repository.PostgresIdempotencyStore, idemTTL time.Duration) {
	if journal == nil && idem == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if journal != nil {
				if err := journal.Cleanup(ctx, eventRetention); err != nil {
					logger.Warn("event journal cleanup failed", "error", err)
				}
			}
			if idem != nil {
				if err := idem.Cleanup(ctx, idemTTL); err != nil {
					logger.Warn("idempotency cleanup failed", "error", err)
				}
			}
		}
	}
}
