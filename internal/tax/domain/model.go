package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxConfigurationRecord is the org-scoped header row for GST/TDS settings.
type TaxConfigurationRecord struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_tax_configurations_org"`

	ReverseCharge bool   `gorm:"column:reverse_charge;not null;default:false"`
	RoundingMode  string `gorm:"column:rounding_mode;type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TaxConfigurationRecord) TableName() string { return "tax_configurations" }

// GSTSlabRecord is one permitted GST percentage for an organization.
type GSTSlabRecord struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OrgID     snowflake.ID    `gorm:"column:org_id;not null;index"`
	Rate      decimal.Decimal `gorm:"type:numeric(7,4);not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (GSTSlabRecord) TableName() string { return "gst_slabs" }

// TDSRuleRecord stores the rate and threshold of one nature of payment.
// Threshold is kept in paise.
type TDSRuleRecord struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OrgID     snowflake.ID    `gorm:"column:org_id;not null;uniqueIndex:ux_tds_rules_org_nature,priority:1"`
	Nature    string          `gorm:"type:text;not null;uniqueIndex:ux_tds_rules_org_nature,priority:2"`
	Section   string          `gorm:"type:text;not null;default:''"`
	Rate      decimal.Decimal `gorm:"type:numeric(7,4);not null"`
	Threshold int64           `gorm:"column:threshold_amount;not null;default:0"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TDSRuleRecord) TableName() string { return "tds_rules" }
