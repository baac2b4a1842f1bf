package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/cache"
	"github.com/smallbiznis/bizbooks/internal/config"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/smallbiznis/bizbooks/internal/tax/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupConfigService(t *testing.T) (*ConfigService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&taxdomain.TaxConfigurationRecord{},
		&taxdomain.GSTSlabRecord{},
		&taxdomain.TDSRuleRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	defaults, err := config.NewStaticTaxDefaultsHolder(config.DefaultTaxDefaults())
	require.NoError(t, err)

	svc := NewConfigService(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.NewRepository(db),
		Cache:    cache.NewTaxConfigCache(time.Minute),
		Defaults: defaults,
	}).(*ConfigService)
	return svc, db
}

func TestConfigService_SaveAndGet(t *testing.T) {
	svc, _ := setupConfigService(t)
	ctx := context.Background()

	cfg := testConfiguration()
	cfg.OrgID = 77
	cfg.TDSRules["professional "] = taxdomain.TDSRule{Rate: decimal.NewFromInt(10), Threshold: money.MustParse("30000")}
	require.NoError(t, svc.SaveConfiguration(ctx, cfg))

	got, err := svc.GetConfiguration(ctx, 77)
	require.NoError(t, err)
	assert.True(t, got.HasSlab(decimal.NewFromInt(28)))
	assert.False(t, got.HasSlab(decimal.NewFromInt(3)))

	rule, err := got.RuleFor(taxdomain.NatureProfessional)
	require.NoError(t, err)
	assert.Equal(t, "30000.00", rule.Threshold.String())

	rent, err := got.RuleFor(taxdomain.NatureRent)
	require.NoError(t, err)
	assert.True(t, rent.Rate.Equal(decimal.RequireFromString("7.5")))
}

func TestConfigService_SaveReplacesPreviousRules(t *testing.T) {
	svc, db := setupConfigService(t)
	ctx := context.Background()

	cfg := testConfiguration()
	cfg.OrgID = 5
	require.NoError(t, svc.SaveConfiguration(ctx, cfg))

	cfg.GSTSlabs = []decimal.Decimal{decimal.NewFromInt(18)}
	cfg.TDSRules = map[taxdomain.Nature]taxdomain.TDSRule{
		taxdomain.NatureCommission: {Rate: decimal.NewFromInt(5), Threshold: money.MustParse("15000")},
	}
	cfg.ReverseCharge = true
	require.NoError(t, svc.SaveConfiguration(ctx, cfg))

	got, err := svc.GetConfiguration(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, got.GSTSlabs, 1)
	assert.True(t, got.ReverseCharge)
	_, err = got.RuleFor(taxdomain.NatureContractor)
	assert.ErrorIs(t, err, taxdomain.ErrUnconfiguredRate)

	var headers int64
	db.Model(&taxdomain.TaxConfigurationRecord{}).Where("org_id = ?", 5).Count(&headers)
	assert.Equal(t, int64(1), headers)
}

func TestConfigService_RejectsInvalidConfiguration(t *testing.T) {
	svc, _ := setupConfigService(t)
	ctx := context.Background()

	cfg := testConfiguration()
	cfg.OrgID = 9
	cfg.GSTSlabs = append(cfg.GSTSlabs, decimal.NewFromInt(-1))
	assert.ErrorIs(t, svc.SaveConfiguration(ctx, cfg), taxdomain.ErrInvalidInput)

	cfg = testConfiguration()
	cfg.OrgID = 0
	assert.ErrorIs(t, svc.SaveConfiguration(ctx, cfg), taxdomain.ErrInvalidOrganization)

	cfg = testConfiguration()
	cfg.OrgID = 9
	cfg.RoundingMode = "bankers"
	assert.ErrorIs(t, svc.SaveConfiguration(ctx, cfg), taxdomain.ErrInvalidInput)
}

func TestConfigService_MissingConfigurationIsAnError(t *testing.T) {
	svc, _ := setupConfigService(t)

	_, err := svc.GetConfiguration(context.Background(), 123)
	assert.ErrorIs(t, err, taxdomain.ErrConfigurationNotFound)

	_, err = svc.GetConfiguration(context.Background(), 0)
	assert.ErrorIs(t, err, taxdomain.ErrInvalidOrganization)
}

func TestConfigService_EnsureDefaultsSeedsOnce(t *testing.T) {
	svc, _ := setupConfigService(t)
	ctx := context.Background()

	cfg, err := svc.EnsureDefaults(ctx, 11)
	require.NoError(t, err)
	assert.Len(t, cfg.GSTSlabs, 5)
	rule, err := cfg.RuleFor(taxdomain.NatureContractor)
	require.NoError(t, err)
	assert.Equal(t, "194C", rule.Section)

	custom := *cfg
	custom.GSTSlabs = []decimal.Decimal{decimal.NewFromInt(5)}
	require.NoError(t, svc.SaveConfiguration(ctx, custom))

	again, err := svc.EnsureDefaults(ctx, 11)
	require.NoError(t, err)
	assert.Len(t, again.GSTSlabs, 1)
}
