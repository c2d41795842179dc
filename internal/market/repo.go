package market

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/apperrors"
)

// Repo persists deployed markets.
type Repo interface {
	Get(ctx context.Context, addr common.Address) (*model.MarketInfo, error)
	// Save inserts or replaces the market at info.Address.
	Save(ctx context.Context, info *model.MarketInfo) error
	List(ctx context.Context) ([]*model.MarketInfo, error)
}

type MemoryRepo struct {
	mu      sync.RWMutex
	markets map[common.Address]model.MarketInfo
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{markets: make(map[common.Address]model.MarketInfo)}
}

func (r *MemoryRepo) Get(_ context.Context, addr common.Address) (*model.MarketInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.markets[addr]
	if !ok {
		return nil, apperrors.NewNotFound("market " + addr.Hex() + " not found")
	}
	return &info, nil
}

func (r *MemoryRepo) Save(_ context.Context, info *model.MarketInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[info.Address] = *info
	return nil
}

func (r *MemoryRepo) List(_ context.Context) ([]*model.MarketInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.MarketInfo, 0, len(r.markets))
	for _, info := range r.markets {
		info := info
		out = append(out, &info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
