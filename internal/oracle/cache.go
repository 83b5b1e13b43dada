package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/domain"
	"github.com/finbridge/ledger-service/internal/fx"
)

const ratesCacheKey = "oracle:rates:latest"

// CachedRateProvider fronts a rate provider with a Redis cache so a
// burst of transfers does not hammer the upstream API. Cache failures
// fall through to the origin; the cache is an optimization, never a
// dependency.
type CachedRateProvider struct {
	origin domain.RateProvider
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedRateProvider(origin domain.RateProvider, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRateProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRateProvider{origin: origin, client: client, ttl: ttl, logger: logger}
}

func (c *CachedRateProvider) Rates(ctx context.Context) (fx.Rates, error) {
	if cached, err := c.client.Get(ctx, ratesCacheKey).Result(); err == nil {
		var rates fx.Rates
		if err := json.Unmarshal([]byte(cached), &rates); err == nil && len(rates) > 0 {
			return rates, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("rate cache read failed", zap.Error(err))
	}

	rates, err := c.origin.Rates(ctx)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rates); err == nil {
		if err := c.client.Set(ctx, ratesCacheKey, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("rate cache write failed", zap.Error(err))
		}
	}
	return rates, nil
}
