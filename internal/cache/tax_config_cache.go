package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"go.uber.org/zap"
)

const defaultTaxConfigTTL = 5 * time.Minute

// TaxConfigCache stores resolved tax configurations per organization.
type TaxConfigCache interface {
	Get(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, bool)
	Set(ctx context.Context, cfg taxdomain.TaxConfiguration)
	Invalidate(ctx context.Context, orgID snowflake.ID)
}

type memoryTaxConfigCache struct {
	items Cache[snowflake.ID, taxdomain.TaxConfiguration]
	ttl   time.Duration
}

// NewTaxConfigCache returns an in-process cache.
func NewTaxConfigCache(ttl time.Duration) TaxConfigCache {
	if ttl <= 0 {
		ttl = defaultTaxConfigTTL
	}
	return &memoryTaxConfigCache{
		items: NewTTLCache[snowflake.ID, taxdomain.TaxConfiguration](),
		ttl:   ttl,
	}
}

func (c *memoryTaxConfigCache) Get(_ context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, bool) {
	cfg, ok := c.items.Get(orgID)
	if !ok {
		return nil, false
	}
	return &cfg, true
}

func (c *memoryTaxConfigCache) Set(_ context.Context, cfg taxdomain.TaxConfiguration) {
	if cfg.OrgID == 0 {
		return
	}
	c.items.Set(cfg.OrgID, cfg, c.ttl)
}

func (c *memoryTaxConfigCache) Invalidate(_ context.Context, orgID snowflake.ID) {
	c.items.Delete(orgID)
}

type redisTaxConfigCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisTaxConfigCache shares cached configurations across instances.
// Redis errors degrade to cache misses.
func NewRedisTaxConfigCache(client *redis.Client, ttl time.Duration, log *zap.Logger) TaxConfigCache {
	if ttl <= 0 {
		ttl = defaultTaxConfigTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &redisTaxConfigCache{client: client, ttl: ttl, log: log.Named("cache.tax_config")}
}

func (c *redisTaxConfigCache) Get(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, bool) {
	raw, err := c.client.Get(ctx, taxConfigKey(orgID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("tax config cache read failed", zap.String("org_id", orgID.String()), zap.Error(err))
		}
		return nil, false
	}
	var cfg taxdomain.TaxConfiguration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.log.Warn("tax config cache entry corrupt", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil, false
	}
	return &cfg, true
}

func (c *redisTaxConfigCache) Set(ctx context.Context, cfg taxdomain.TaxConfiguration) {
	if cfg.OrgID == 0 {
		return
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		c.log.Warn("tax config cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, taxConfigKey(cfg.OrgID), payload, c.ttl).Err(); err != nil {
		c.log.Warn("tax config cache write failed", zap.String("org_id", cfg.OrgID.String()), zap.Error(err))
	}
}

func (c *redisTaxConfigCache) Invalidate(ctx context.Context, orgID snowflake.ID) {
	if err := c.client.Del(ctx, taxConfigKey(orgID)).Err(); err != nil {
		c.log.Warn("tax config cache invalidate failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

func taxConfigKey(orgID snowflake.ID) string {
	return "bizbooks:tax_config:" + orgID.String()
}
