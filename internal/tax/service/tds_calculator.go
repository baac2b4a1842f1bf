package service

import (
	"fmt"

	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// TDSCalculator computes withholding against one organization's TDS table.
type TDSCalculator struct {
	cfg  taxdomain.TaxConfiguration
	mode money.RoundingMode
}

var _ taxdomain.TDSCalculator = (*TDSCalculator)(nil)

func NewTDSCalculator(cfg taxdomain.TaxConfiguration) *TDSCalculator {
	return &TDSCalculator{cfg: cfg, mode: cfg.Rounding()}
}

// CalculateTDS deducts nothing below the threshold; a payment equal to the
// threshold is deducted.
func (c *TDSCalculator) CalculateTDS(gross money.Money, nature taxdomain.Nature) (taxdomain.TDSResult, error) {
	if gross.IsNegative() {
		return taxdomain.TDSResult{}, fmt.Errorf("%w: gross payment must not be negative", taxdomain.ErrInvalidInput)
	}
	rule, err := c.cfg.RuleFor(nature)
	if err != nil {
		return taxdomain.TDSResult{}, err
	}

	result := taxdomain.TDSResult{
		Nature:       rule.Nature,
		Section:      rule.Section,
		Rate:         rule.Rate,
		Threshold:    rule.Threshold,
		GrossPayment: gross,
		NetPayment:   gross,
	}
	if gross.LessThan(rule.Threshold) {
		return result, nil
	}

	result.TDSAmount = money.Quantize(gross.Decimal().Mul(rule.Rate).Shift(-2), c.mode)
	result.NetPayment = gross.Sub(result.TDSAmount)
	return result, nil
}
