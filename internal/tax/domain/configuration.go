package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// Nature identifies a TDS nature-of-payment category.
type Nature string

const (
	NatureContractor        Nature = "CONTRACTOR"
	NatureContractorCompany Nature = "CONTRACTOR_COMPANY"
	NatureProfessional      Nature = "PROFESSIONAL"
	NatureRent              Nature = "RENT"
	NatureCommission        Nature = "COMMISSION"
	NatureInterest          Nature = "INTEREST"
)

// NormalizeNature upper-cases and trims a nature key.
func NormalizeNature(raw string) Nature {
	return Nature(strings.ToUpper(strings.TrimSpace(raw)))
}

// TDSRule is the rate and threshold applied to one nature of payment.
type TDSRule struct {
	Nature    Nature          `json:"nature"`
	Section   string          `json:"section,omitempty"`
	Rate      decimal.Decimal `json:"rate"`
	Threshold money.Money     `json:"threshold"`
}

// TaxConfiguration is the per-organization source of every rate the
// calculators use. A rate missing from here is never treated as zero.
type TaxConfiguration struct {
	OrgID         snowflake.ID       `json:"org_id"`
	GSTSlabs      []decimal.Decimal  `json:"gst_slabs"`
	TDSRules      map[Nature]TDSRule `json:"tds_rules"`
	ReverseCharge bool               `json:"reverse_charge"`
	RoundingMode  money.RoundingMode `json:"rounding_mode"`
}

// Validate rejects negative rates and thresholds and unknown rounding modes.
func (c TaxConfiguration) Validate() error {
	if c.OrgID == 0 {
		return ErrInvalidOrganization
	}
	for _, rate := range c.GSTSlabs {
		if rate.IsNegative() {
			return fmt.Errorf("%w: negative gst slab %s", ErrInvalidInput, rate.String())
		}
	}
	for key, rule := range c.TDSRules {
		if key == "" || key != NormalizeNature(string(key)) {
			return fmt.Errorf("%w: %q", ErrInvalidNature, key)
		}
		if rule.Rate.IsNegative() {
			return fmt.Errorf("%w: negative tds rate for %s", ErrInvalidInput, key)
		}
		if rule.Threshold.IsNegative() {
			return fmt.Errorf("%w: negative tds threshold for %s", ErrInvalidInput, key)
		}
	}
	if _, err := money.ParseRoundingMode(string(c.RoundingMode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Rounding returns the configured rounding mode, defaulting to half-up.
func (c TaxConfiguration) Rounding() money.RoundingMode {
	mode, err := money.ParseRoundingMode(string(c.RoundingMode))
	if err != nil {
		return money.DefaultRoundingMode
	}
	return mode
}

// HasSlab reports whether rate is one of the configured GST slabs.
func (c TaxConfiguration) HasSlab(rate decimal.Decimal) bool {
	for _, slab := range c.GSTSlabs {
		if slab.Equal(rate) {
			return true
		}
	}
	return false
}

// RuleFor returns the TDS rule for nature or ErrUnconfiguredRate.
func (c TaxConfiguration) RuleFor(nature Nature) (TDSRule, error) {
	key := NormalizeNature(string(nature))
	rule, ok := c.TDSRules[key]
	if !ok {
		return TDSRule{}, fmt.Errorf("%w: tds nature %q", ErrUnconfiguredRate, key)
	}
	rule.Nature = key
	return rule, nil
}

// SortedSlabs returns a deduplicated ascending copy of the GST slabs.
func (c TaxConfiguration) SortedSlabs() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(c.GSTSlabs))
	for _, rate := range c.GSTSlabs {
		dup := false
		for _, seen := range out {
			if seen.Equal(rate) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, rate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}
