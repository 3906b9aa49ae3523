package feepolicy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/payroute/internal/cache"
	"github.com/blnkfinance/payroute/model"
	"github.com/sirupsen/logrus"
)

// CachedResolver memoises tiers for TTL in front of another Resolver.
// Failures of the wrapped resolver are never cached.
type CachedResolver struct {
	next  Resolver
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedResolver(next Resolver, c cache.Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, cache: c, ttl: ttl}
}

func tierCacheKey(party string) string {
	return fmt.Sprintf("payroute:tier:%s", model.CanonicalAddress(party))
}

func (c *CachedResolver) ResolveTier(ctx context.Context, party string) (uint32, error) {
	var tier uint32
	err := c.cache.Get(ctx, tierCacheKey(party), &tier)
	if err == nil {
		return tier, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logrus.Warnf("tier cache read for %s failed: %v", party, err)
	}

	tier, err = c.next.ResolveTier(ctx, party)
	if err != nil {
		return 0, err
	}
	if err := c.cache.Set(ctx, tierCacheKey(party), tier, c.ttl); err != nil {
		logrus.Warnf("tier cache write for %s failed: %v", party, err)
	}
	return tier, nil
}

// Invalidate drops a party's cached tier so the next lookup reaches the oracle.
func (c *CachedResolver) Invalidate(ctx context.Context, party string) error {
	return c.cache.Delete(ctx, tierCacheKey(party))
}
