package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/service"
)

type RouterDeps struct {
	Config      *config.Config
	Settlement  *SettlementHandler
	Relayers    *service.RelayerManager
	Idempotency middleware.IdempotencyStore
	Stream      http.Handler
	Metrics     http.Handler
}

// Register mounts every route on r. Global middleware is the caller's business.
func Register(r *gin.Engine, deps RouterDeps) {
	h := deps.Settlement

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "intentgate"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Stream != nil {
		r.GET("/v1/events/ws", gin.WrapH(deps.Stream))
	}

	readOnly := deps.Config != nil && deps.Config.Server.ReadOnly

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Relayers))
	v1.Use(middleware.RateLimitMiddleware(deps.Relayers))
	v1.Use(middleware.ReadOnlyMiddleware(readOnly))
	if deps.Idempotency != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.Idempotency))
	}
	{
		v1.GET("/events", h.RecentEvents)

		v1.POST("/reactor/process", h.Process)
		v1.POST("/reactor/max-valid-amount", h.MaxValidAmount)
		v1.GET("/reactor/filled", h.Filled)
		v1.POST("/reactor/signal", h.Signal)
		v1.POST("/brokerbots/:address/buy", h.BuyFromBrokerbot)
		v1.POST("/brokerbots/:address/sell", h.SellToBrokerbot)

		v1.GET("/nonces/free", h.FreeNonce)
		v1.GET("/nonces/bitmap", h.NonceBitmap)
		v1.POST("/nonces/invalidate", h.InvalidateNonces)

		v1.POST("/ledger/approve", h.Approve)
		v1.GET("/ledger/balance", h.Balance)

		v1.POST("/factory/predict", h.PredictMarket)
		v1.POST("/factory/deploy", h.DeployMarket)
		v1.GET("/markets", h.ListMarkets)
		v1.GET("/markets/:address", h.GetMarket)
		v1.POST("/markets/:address/orders/buy", h.CreateBuyOrder)
		v1.POST("/markets/:address/orders/sell", h.CreateSellOrder)
		v1.POST("/markets/:address/process", h.ProcessOnMarket)
		v1.POST("/markets/:address/executable", h.Executable)
		v1.POST("/markets/:address/verify", h.VerifySignature)
		v1.PUT("/markets/:address/fee", h.SetTradingFee)
		v1.POST("/markets/:address/withdraw", h.Withdraw)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(deps.Config))
	admin.Use(middleware.ReadOnlyMiddleware(readOnly))
	{
		admin.POST("/ledger/mint", h.Mint)
	}
}
