package handler

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/model"
)

func (h *SettlementHandler) FreeNonce(c *gin.Context) {
	owner, ok := addressQuery(c, "owner")
	if !ok {
		return
	}
	start, ok := uintQuery(c, "start_word", new(big.Int))
	if !ok {
		return
	}
	resp, err := h.svc.FreeNonce(c.Request.Context(), owner, start)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) NonceBitmap(c *gin.Context) {
	owner, ok := addressQuery(c, "owner")
	if !ok {
		return
	}
	wordPos, ok := uintQuery(c, "word_pos", nil)
	if !ok {
		return
	}
	resp, err := h.svc.NonceBitmap(c.Request.Context(), owner, wordPos)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// InvalidateNonces only ever touches the caller's own nonces.
func (h *SettlementHandler) InvalidateNonces(c *gin.Context) {
	var req model.InvalidateNoncesRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.InvalidateNonces(c.Request.Context(), middleware.Caller(c), &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}
