package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindConfiguration(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxConfiguration, error) {
	var header taxdomain.TaxConfigurationRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, reverse_charge, rounding_mode, created_at, updated_at
		 FROM tax_configurations
		 WHERE org_id = ?
		 LIMIT 1`,
		orgID,
	).Scan(&header).Error
	if err != nil {
		return nil, err
	}
	if header.ID == 0 {
		return nil, nil
	}

	var slabs []taxdomain.GSTSlabRecord
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("rate ASC").
		Find(&slabs).Error; err != nil {
		return nil, err
	}

	var rules []taxdomain.TDSRuleRecord
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("nature ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}

	cfg := &taxdomain.TaxConfiguration{
		OrgID:         header.OrgID,
		ReverseCharge: header.ReverseCharge,
		RoundingMode:  money.RoundingMode(header.RoundingMode),
		TDSRules:      make(map[taxdomain.Nature]taxdomain.TDSRule, len(rules)),
	}
	for _, slab := range slabs {
		cfg.GSTSlabs = append(cfg.GSTSlabs, slab.Rate)
	}
	for _, rule := range rules {
		nature := taxdomain.NormalizeNature(rule.Nature)
		cfg.TDSRules[nature] = taxdomain.TDSRule{
			Nature:    nature,
			Section:   rule.Section,
			Rate:      rule.Rate,
			Threshold: money.FromMinor(rule.Threshold),
		}
	}
	return cfg, nil
}

func (r *repository) ReplaceConfiguration(ctx context.Context, cfg taxdomain.TaxConfiguration, newID func() snowflake.ID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE tax_configurations
			 SET reverse_charge = ?, rounding_mode = ?, updated_at = ?
			 WHERE org_id = ?`,
			cfg.ReverseCharge,
			string(cfg.RoundingMode),
			now,
			cfg.OrgID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.Create(&taxdomain.TaxConfigurationRecord{
				ID:            newID(),
				OrgID:         cfg.OrgID,
				ReverseCharge: cfg.ReverseCharge,
				RoundingMode:  string(cfg.RoundingMode),
				CreatedAt:     now,
				UpdatedAt:     now,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Exec(`DELETE FROM gst_slabs WHERE org_id = ?`, cfg.OrgID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM tds_rules WHERE org_id = ?`, cfg.OrgID).Error; err != nil {
			return err
		}

		if len(cfg.GSTSlabs) > 0 {
			slabs := make([]taxdomain.GSTSlabRecord, 0, len(cfg.GSTSlabs))
			for _, rate := range cfg.GSTSlabs {
				slabs = append(slabs, taxdomain.GSTSlabRecord{
					ID:        newID(),
					OrgID:     cfg.OrgID,
					Rate:      rate,
					CreatedAt: now,
				})
			}
			if err := tx.Create(&slabs).Error; err != nil {
				return err
			}
		}

		if len(cfg.TDSRules) > 0 {
			rules := make([]taxdomain.TDSRuleRecord, 0, len(cfg.TDSRules))
			for nature, rule := range cfg.TDSRules {
				rules = append(rules, taxdomain.TDSRuleRecord{
					ID:        newID(),
					OrgID:     cfg.OrgID,
					Nature:    string(nature),
					Section:   rule.Section,
					Rate:      rule.Rate,
					Threshold: rule.Threshold.MinorUnits(),
					CreatedAt: now,
				})
			}
			if err := tx.Create(&rules).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
