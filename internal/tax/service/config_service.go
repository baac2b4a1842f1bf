package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/cache"
	"github.com/smallbiznis/bizbooks/internal/config"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     taxdomain.Repository
	Cache    cache.TaxConfigCache      `optional:"true"`
	Defaults *config.TaxDefaultsHolder `optional:"true"`
	AuditSvc auditdomain.Service       `optional:"true"`
}

type ConfigService struct {
	log      *zap.Logger
	genID    *snowflake.Node
	repo     taxdomain.Repository
	cache    cache.TaxConfigCache
	defaults *config.TaxDefaultsHolder
	auditSvc auditdomain.Service
}

func NewConfigService(p Params) taxdomain.ConfigService {
	return &ConfigService{
		log:      p.Log.Named("tax.config"),
		genID:    p.GenID,
		repo:     p.Repo,
		cache:    p.Cache,
		defaults: p.Defaults,
		auditSvc: p.AuditSvc,
	}
}

func (s *ConfigService) GetConfiguration(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, error) {
	if orgID == 0 {
		return nil, taxdomain.ErrInvalidOrganization
	}
	if s.cache != nil {
		if cfg, ok := s.cache.Get(ctx, orgID); ok {
			return cfg, nil
		}
	}

	cfg, err := s.repo.FindConfiguration(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: org %s", taxdomain.ErrConfigurationNotFound, orgID.String())
	}
	if s.cache != nil {
		s.cache.Set(ctx, *cfg)
	}
	return cfg, nil
}

func (s *ConfigService) SaveConfiguration(ctx context.Context, cfg taxdomain.TaxConfiguration) error {
	normalized := normalizeConfiguration(cfg)
	if err := normalized.Validate(); err != nil {
		return err
	}
	if err := s.repo.ReplaceConfiguration(ctx, normalized, s.genID.Generate); err != nil {
		s.log.Error("failed to save tax configuration", zap.String("org_id", cfg.OrgID.String()), zap.Error(err))
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, normalized.OrgID)
	}
	if s.auditSvc != nil {
		orgID := normalized.OrgID
		if err := s.auditSvc.AuditLog(ctx, auditdomain.Record{
			OrgID:      &orgID,
			Action:     auditdomain.ActionTaxConfigurationSaved,
			TargetType: "tax_configuration",
			Metadata: map[string]any{
				"gst_slabs":      len(normalized.GSTSlabs),
				"tds_rules":      len(normalized.TDSRules),
				"reverse_charge": normalized.ReverseCharge,
				"rounding_mode":  string(normalized.Rounding()),
			},
		}); err != nil {
			s.log.Warn("failed to write tax configuration audit log", zap.Error(err))
		}
	}
	s.log.Info("tax configuration saved",
		zap.String("org_id", normalized.OrgID.String()),
		zap.Int("gst_slabs", len(normalized.GSTSlabs)),
		zap.Int("tds_rules", len(normalized.TDSRules)),
	)
	return nil
}

func (s *ConfigService) EnsureDefaults(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, error) {
	cfg, err := s.GetConfiguration(ctx, orgID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, taxdomain.ErrConfigurationNotFound) {
		return nil, err
	}
	if s.defaults == nil {
		return nil, err
	}

	seeded, err := ConfigurationFromDefaults(orgID, s.defaults.Get())
	if err != nil {
		return nil, err
	}
	if err := s.SaveConfiguration(ctx, seeded); err != nil {
		return nil, err
	}
	return s.GetConfiguration(ctx, orgID)
}

// ConfigurationFromDefaults converts file-level defaults into an org configuration.
func ConfigurationFromDefaults(orgID snowflake.ID, defaults config.TaxDefaults) (taxdomain.TaxConfiguration, error) {
	mode, err := money.ParseRoundingMode(defaults.RoundingMode)
	if err != nil {
		return taxdomain.TaxConfiguration{}, fmt.Errorf("%w: %v", taxdomain.ErrInvalidInput, err)
	}

	cfg := taxdomain.TaxConfiguration{
		OrgID:         orgID,
		GSTSlabs:      make([]decimal.Decimal, 0, len(defaults.GSTSlabs)),
		TDSRules:      make(map[taxdomain.Nature]taxdomain.TDSRule, len(defaults.TDSRules)),
		ReverseCharge: defaults.ReverseCharge,
		RoundingMode:  mode,
	}
	for _, raw := range defaults.GSTSlabs {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return taxdomain.TaxConfiguration{}, fmt.Errorf("%w: gst slab %q", taxdomain.ErrInvalidInput, raw)
		}
		cfg.GSTSlabs = append(cfg.GSTSlabs, rate)
	}
	for _, rule := range defaults.TDSRules {
		rate, err := decimal.NewFromString(strings.TrimSpace(rule.Rate))
		if err != nil {
			return taxdomain.TaxConfiguration{}, fmt.Errorf("%w: tds rate %q", taxdomain.ErrInvalidInput, rule.Rate)
		}
		threshold := money.Zero
		if strings.TrimSpace(rule.Threshold) != "" {
			threshold, err = money.Parse(rule.Threshold)
			if err != nil {
				return taxdomain.TaxConfiguration{}, fmt.Errorf("%w: tds threshold %q", taxdomain.ErrInvalidInput, rule.Threshold)
			}
		}
		nature := taxdomain.NormalizeNature(rule.Nature)
		cfg.TDSRules[nature] = taxdomain.TDSRule{
			Nature:    nature,
			Section:   strings.TrimSpace(rule.Section),
			Rate:      rate,
			Threshold: threshold,
		}
	}
	return cfg, nil
}

func normalizeConfiguration(cfg taxdomain.TaxConfiguration) taxdomain.TaxConfiguration {
	out := cfg
	out.GSTSlabs = cfg.SortedSlabs()
	out.RoundingMode = cfg.Rounding()
	if _, err := money.ParseRoundingMode(string(cfg.RoundingMode)); err != nil {
		// keep the invalid value so Validate reports it
		out.RoundingMode = cfg.RoundingMode
	}
	out.TDSRules = make(map[taxdomain.Nature]taxdomain.TDSRule, len(cfg.TDSRules))
	for key, rule := range cfg.TDSRules {
		nature := taxdomain.NormalizeNature(string(key))
		rule.Nature = nature
		rule.Section = strings.TrimSpace(rule.Section)
		out.TDSRules[nature] = rule
	}
	return out
}
