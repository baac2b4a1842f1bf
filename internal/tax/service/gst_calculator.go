package service

import (
	"fmt"

	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// GSTCalculator computes GST against one organization's configuration.
// It holds no mutable state and is safe for concurrent use.
type GSTCalculator struct {
	cfg  taxdomain.TaxConfiguration
	mode money.RoundingMode
}

var _ taxdomain.GSTCalculator = (*GSTCalculator)(nil)

func NewGSTCalculator(cfg taxdomain.TaxConfiguration) *GSTCalculator {
	return &GSTCalculator{cfg: cfg, mode: cfg.Rounding()}
}

// CalculateLineItemGST returns the quantized breakdown of one line. The tax
// is rounded once from the full-precision taxable value; the intra-state
// split assigns any odd paisa to CGST.
func (c *GSTCalculator) CalculateLineItemGST(line taxdomain.LineItem, sellerState, buyerState string) (taxdomain.GSTResult, error) {
	if err := line.Validate(); err != nil {
		return taxdomain.GSTResult{}, err
	}
	if !c.cfg.HasSlab(line.GSTRate) {
		return taxdomain.GSTResult{}, fmt.Errorf("%w: gst rate %s%% is not a configured slab", taxdomain.ErrUnconfiguredRate, line.GSTRate.String())
	}
	return c.calculate(line, taxdomain.ClassifySupply(sellerState, buyerState)), nil
}

// CalculateInvoiceGST sums already-rounded line results.
func (c *GSTCalculator) CalculateInvoiceGST(lines []taxdomain.LineItem, sellerState, buyerState string) (taxdomain.InvoiceGST, error) {
	if len(lines) == 0 {
		return taxdomain.InvoiceGST{}, fmt.Errorf("%w: invoice has no lines", taxdomain.ErrInvalidInput)
	}

	supply := taxdomain.ClassifySupply(sellerState, buyerState)
	out := taxdomain.InvoiceGST{
		Supply: supply,
		Lines:  make([]taxdomain.GSTResult, 0, len(lines)),
	}
	for i, line := range lines {
		result, err := c.CalculateLineItemGST(line, sellerState, buyerState)
		if err != nil {
			return taxdomain.InvoiceGST{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		out.Lines = append(out.Lines, result)
		out.TaxableValue = out.TaxableValue.Add(result.TaxableValue)
		out.TaxAmount = out.TaxAmount.Add(result.TaxAmount)
		out.CGST = out.CGST.Add(result.CGST)
		out.SGST = out.SGST.Add(result.SGST)
		out.IGST = out.IGST.Add(result.IGST)
	}
	out.Total = out.TaxableValue.Add(out.TaxAmount)
	return out, nil
}

func (c *GSTCalculator) calculate(line taxdomain.LineItem, supply taxdomain.SupplyType) taxdomain.GSTResult {
	taxable := line.TaxableValue()
	tax := money.Quantize(taxable.Mul(line.GSTRate).Shift(-2), c.mode)

	result := taxdomain.GSTResult{
		Rate:         line.GSTRate,
		Supply:       supply,
		TaxableValue: money.Quantize(taxable, c.mode),
		TaxAmount:    tax,
	}
	if supply == taxdomain.SupplyIntraState {
		result.CGST, result.SGST = tax.SplitHalf()
	} else {
		result.IGST = tax
	}
	return result
}
