package service

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/model"
)

// RelayerManager resolves API keys to relayers and holds one rate limiter per relayer.
type RelayerManager struct {
	mu       sync.RWMutex
	relayers map[string]*model.Relayer // Key: gateway API key
	limiters map[string]*rate.Limiter  // Key: relayer ID
}

func NewRelayerManager(cfgs []config.RelayerConfig) *RelayerManager {
	rm := &RelayerManager{
		relayers: make(map[string]*model.Relayer),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, rc := range cfgs {
		id := rc.ID
		if id == "" {
			id = rc.Name
		}
		if id == "" {
			id = common.HexToAddress(rc.Address).Hex()
		}
		rm.Register(&model.Relayer{
			ID:      id,
			Name:    rc.Name,
			ApiKey:  rc.APIKey,
			Address: common.HexToAddress(rc.Address),
			Rate: model.RateLimitConfig{
				QPS:   rc.QPS,
				Burst: rc.Burst,
			},
		})
	}
	return rm
}

func (rm *RelayerManager) Register(r *model.Relayer) {
	if r == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.relayers[r.ApiKey] = r

	// Zero QPS means unlimited.
	limit := rate.Limit(r.Rate.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := r.Rate.Burst
	if burst == 0 {
		burst = 1
	}
	rm.limiters[r.ID] = rate.NewLimiter(limit, burst)
}

func (rm *RelayerManager) ByApiKey(apiKey string) (*model.Relayer, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.relayers[apiKey]
	return r, ok
}

func (rm *RelayerManager) Limiter(relayerID string) *rate.Limiter {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.limiters[relayerID]
}

func (rm *RelayerManager) List() []*model.Relayer {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]*model.Relayer, 0, len(rm.relayers))
	for _, r := range rm.relayers {
		out = append(out, r)
	}
	return out
}
