package feepolicy

import (
	"time"

	"github.com/blnkfinance/payroute/config"
	"github.com/blnkfinance/payroute/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// FromConfig builds the resolver described by conf. With an oracle URL the
// oracle is queried over HTTP, behind a tier cache when client is non-nil.
// Without one the static tier table is served and unlisted parties are tier 0.
func FromConfig(conf config.FeePolicyConfig, client redis.UniversalClient) Resolver {
	if conf.OracleURL == "" {
		logrus.Info("fee policy: serving static tiers")
		return NewStaticResolver(conf.StaticTiers)
	}

	oracle := NewHTTPResolver(conf.OracleURL, time.Duration(conf.TimeoutSec)*time.Second, conf.MaxRetries)
	if client == nil {
		return oracle
	}
	ttl := time.Duration(conf.CacheTTLSec) * time.Second
	return NewCachedResolver(oracle, cache.NewCache(client, ttl), ttl)
}
