package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
)

func (h *SettlementHandler) Process(c *gin.Context) {
	var req model.ProcessRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.Process(c.Request.Context(), middleware.Caller(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) MaxValidAmount(c *gin.Context) {
	var req model.PairRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.MaxValidAmount(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) Filled(c *gin.Context) {
	owner, ok := requiredAddressQuery(c, "owner")
	if !ok {
		return
	}
	nonce, ok := uintQuery(c, "nonce", nil)
	if !ok {
		return
	}
	resp, err := h.svc.Filled(c.Request.Context(), owner, nonce)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) Signal(c *gin.Context) {
	var req model.SignedIntent
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Signal(c.Request.Context(), &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "signalled"})
}

func (h *SettlementHandler) BuyFromBrokerbot(c *gin.Context) {
	bot, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.BrokerbotBuyRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.BuyFromBrokerbot(c.Request.Context(), middleware.Caller(c), bot, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) SellToBrokerbot(c *gin.Context) {
	bot, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var req model.BrokerbotSellRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.svc.SellToBrokerbot(c.Request.Context(), middleware.Caller(c), bot, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
