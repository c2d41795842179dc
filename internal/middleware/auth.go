package middleware

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/intentgate/internal/service"
)

const (
	HeaderGatewayKey  = "X-Gateway-Key"
	ContextRelayerKey = "relayer"
)

// AuthMiddleware resolves X-Gateway-Key to a configured relayer.
func AuthMiddleware(rm *service.RelayerManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing API key", nil))
			c.Abort()
			return
		}

		relayer, ok := rm.ByApiKey(apiKey)
		if !ok {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid API key", nil))
			c.Abort()
			return
		}

		c.Set(ContextRelayerKey, relayer)
		c.Next()
	}
}

func RelayerFrom(c *gin.Context) (*model.Relayer, bool) {
	val, exists := c.Get(ContextRelayerKey)
	if !exists {
		return nil, false
	}
	relayer, ok := val.(*model.Relayer)
	return relayer, ok
}

// Caller is the address the authenticated relayer acts as.
func Caller(c *gin.Context) common.Address {
	if relayer, ok := RelayerFrom(c); ok {
		return relayer.Address
	}
	return common.Address{}
}
