package brokerbot

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

// Registry resolves price-makers by address.
type Registry struct {
	mu   sync.RWMutex
	bots map[common.Address]PriceMaker
}

func NewRegistry(bots ...PriceMaker) *Registry {
	r := &Registry{bots: make(map[common.Address]PriceMaker)}
	for _, b := range bots {
		r.Register(b)
	}
	return r
}

func (r *Registry) Register(pm PriceMaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[pm.Address()] = pm
}

func (r *Registry) Get(addr common.Address) (PriceMaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pm, ok := r.bots[addr]
	if !ok {
		return nil, apperrors.NewNotFound("brokerbot " + addr.Hex() + " not found")
	}
	return pm, nil
}
