package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shopsy-inventory-api/internal/model"
)

// StockCache stores stock record snapshots keyed by product id.
//
// Each product has a generation that Invalidate bumps. A fill carries the
// generation read before its database query, and a fill that lost a race
// with an invalidation is dropped.
type StockCache struct {
	cache  Cache
	prefix string
	ttl    time.Duration

	mu   sync.Mutex
	gens map[string]uint64
}

// NewStockCache creates a snapshot cache. A zero ttl disables caching.
func NewStockCache(c Cache, prefix string, ttl time.Duration) *StockCache {
	if prefix == "" {
		prefix = "shopsy:stock"
	}
	return &StockCache{cache: c, prefix: prefix, ttl: ttl, gens: make(map[string]uint64)}
}

func (s *StockCache) key(productID string) string {
	return s.prefix + ":product:" + productID
}

// Get returns the cached record of a product.
func (s *StockCache) Get(ctx context.Context, productID string) (*model.StockRecord, bool) {
	if s == nil || s.ttl <= 0 {
		return nil, false
	}
	data, err := s.cache.Get(ctx, s.key(productID))
	if err != nil {
		return nil, false
	}

	var rec model.StockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// Generation returns the current generation of a product. Read it before
// loading the record that will be passed to Put.
func (s *StockCache) Generation(productID string) uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[productID]
}

// Put caches a record snapshot loaded at generation gen. It stores nothing
// when the product was invalidated since.
func (s *StockCache) Put(ctx context.Context, rec model.StockRecord, gen uint64) error {
	if s == nil || s.ttl <= 0 {
		return nil
	}
	if s.Generation(rec.ProductID) != gen {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := s.key(rec.ProductID)
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		return err
	}
	// An invalidation between the check and the write may have deleted the
	// key before Set landed.
	if s.Generation(rec.ProductID) != gen {
		return s.cache.Delete(ctx, key)
	}
	return nil
}

// Invalidate drops the cached snapshots of the given products.
func (s *StockCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if s == nil || len(productIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, id := range productIDs {
		s.gens[id]++
	}
	s.mu.Unlock()

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = s.key(id)
	}
	return s.cache.Delete(ctx, keys...)
}
