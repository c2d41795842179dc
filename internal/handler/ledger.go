package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
)

func (h *SettlementHandler) Approve(c *gin.Context) {
	var req model.ApproveRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Approve(c.Request.Context(), middleware.Caller(c), &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *SettlementHandler) Balance(c *gin.Context) {
	token, ok := requiredAddressQuery(c, "token")
	if !ok {
		return
	}
	owner, ok := addressQuery(c, "owner")
	if !ok {
		return
	}
	resp, err := h.svc.Balance(c.Request.Context(), token, owner)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) Mint(c *gin.Context) {
	var req model.MintRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Mint(c.Request.Context(), &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "minted"})
}
