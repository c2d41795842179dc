package handler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/service"
)

type SettlementHandler struct {
	svc *service.SettlementService
}

func NewSettlementHandler(svc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(apperrors.New(apperrors.ErrInvalidRequest, "invalid request body", err))
		return false
	}
	return true
}

func addressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		c.Error(apperrors.NewInvalidRequest(name + " is not an address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// addressQuery falls back to the caller's address when the query parameter is absent.
func addressQuery(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Query(name)
	if raw == "" {
		return middleware.Caller(c), true
	}
	if !common.IsHexAddress(raw) {
		c.Error(apperrors.NewInvalidRequest(name + " is not an address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func requiredAddressQuery(c *gin.Context, name string) (common.Address, bool) {
	if c.Query(name) == "" {
		c.Error(apperrors.NewInvalidRequest(name + " is required"))
		return common.Address{}, false
	}
	return addressQuery(c, name)
}

// uintQuery parses a decimal or 0x-prefixed integer; an absent parameter yields def.
func uintQuery(c *gin.Context, name string, def *big.Int) (*big.Int, bool) {
	raw := c.Query(name)
	if raw == "" {
		if def == nil {
			c.Error(apperrors.NewInvalidRequest(name + " is required"))
			return nil, false
		}
		return def, true
	}
	v, ok := new(big.Int).SetString(raw, 0)
	if !ok || v.Sign() < 0 {
		c.Error(apperrors.NewInvalidRequest(name + " must be a non-negative integer"))
		return nil, false
	}
	return v, true
}
