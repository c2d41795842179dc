package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
)

func (h *SettlementHandler) PredictMarket(c *gin.Context) {
	var req model.MarketRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.PredictMarket(middleware.Caller(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) DeployMarket(c *gin.Context) {
	var req model.MarketRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.DeployMarket(c.Request.Context(), middleware.Caller(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *SettlementHandler) ListMarkets(c *gin.Context) {
	markets, err := h.svc.ListMarkets(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets})
}

func (h *SettlementHandler) GetMarket(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	info, err := h.svc.Market(c.Request.Context(), addr)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *SettlementHandler) CreateBuyOrder(c *gin.Context) {
	h.createOrder(c, true)
}

func (h *SettlementHandler) CreateSellOrder(c *gin.Context) {
	h.createOrder(c, false)
}

func (h *SettlementHandler) createOrder(c *gin.Context, buy bool) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.CreateOrder(c.Request.Context(), middleware.Caller(c), addr, buy, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) ProcessOnMarket(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.ProcessRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.ProcessOnMarket(c.Request.Context(), middleware.Caller(c), addr, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) Executable(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.ExecutableRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.Executable(c.Request.Context(), addr, req.Intent)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) VerifySignature(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.VerifyRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.VerifyOnMarket(c.Request.Context(), addr, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) SetTradingFee(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.FeeRequest
	if !bind(c, &req) {
		return
	}
	info, err := h.svc.SetTradingFee(c.Request.Context(), middleware.Caller(c), addr, req.FeeBips)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *SettlementHandler) Withdraw(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.WithdrawRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Withdraw(c.Request.Context(), middleware.Caller(c), addr, &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}
