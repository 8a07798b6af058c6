package factory

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
)

// CachedStore decorates a Store with a read-through cache for Get. Contracts
// never change after deployment, so cached entries cannot go stale; the TTL
// only bounds memory. Misses are not cached because an unknown address can be
// deployed later.
type CachedStore struct {
	Store
	cache *cache.Cache
}

// NewCachedStore wraps inner. A ttl <= 0 keeps entries until evicted by process exit.
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}
	return &CachedStore{
		Store: inner,
		cache: cache.New(expiration, cleanup),
	}
}

// Insert delegates to the wrapped store and primes the cache with the result.
func (s *CachedStore) Insert(ctx context.Context, build BuildFunc) (*Contract, error) {
	c, err := s.Store.Insert(ctx, build)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(c.Address().Hex(), c)
	return c, nil
}

// Get serves from the cache when possible.
func (s *CachedStore) Get(ctx context.Context, addr common.Address) (*Contract, error) {
	key := addr.Hex()
	if v, ok := s.cache.Get(key); ok {
		return v.(*Contract), nil
	}
	c, err := s.Store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, c)
	return c, nil
}

// Len reports the number of cached contracts.
func (s *CachedStore) Len() int {
	return s.cache.ItemCount()
}
