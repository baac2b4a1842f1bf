package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]().(*ttlCache[string, int])
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	c.Delete("b")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestMemoryTaxConfigCache(t *testing.T) {
	ctx := context.Background()
	c := NewTaxConfigCache(time.Minute)
	orgID := snowflake.ID(42)

	_, ok := c.Get(ctx, orgID)
	assert.False(t, ok)

	c.Set(ctx, taxdomain.TaxConfiguration{OrgID: orgID, GSTSlabs: []decimal.Decimal{decimal.NewFromInt(18)}})
	got, ok := c.Get(ctx, orgID)
	require.True(t, ok)
	assert.True(t, got.HasSlab(decimal.NewFromInt(18)))

	c.Invalidate(ctx, orgID)
	_, ok = c.Get(ctx, orgID)
	assert.False(t, ok)

	c.Set(ctx, taxdomain.TaxConfiguration{})
	_, ok = c.Get(ctx, 0)
	assert.False(t, ok)
}
