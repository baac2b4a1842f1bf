package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// SupplyType tells whether GST is split into CGST/SGST or charged as IGST.
type SupplyType string

const (
	SupplyIntraState SupplyType = "intra_state"
	SupplyInterState SupplyType = "inter_state"
)

// ClassifySupply compares place-of-supply state codes. A missing state on
// either side is treated as inter-state.
func ClassifySupply(sellerState, buyerState string) SupplyType {
	seller := NormalizeState(sellerState)
	buyer := NormalizeState(buyerState)
	if seller == "" || buyer == "" || seller != buyer {
		return SupplyInterState
	}
	return SupplyIntraState
}

// NormalizeState trims and upper-cases a state code or name.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// LineItem is one invoice line before tax. UnitPrice may carry more than
// two fractional digits; the taxable value is computed at full precision.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	GSTRate     decimal.Decimal `json:"gst_rate"`
}

// Validate rejects a quantity that is not positive and negative prices or rates.
func (l LineItem) Validate() error {
	if !l.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	if l.GSTRate.IsNegative() {
		return fmt.Errorf("%w: gst rate must not be negative", ErrInvalidInput)
	}
	return nil
}

// TaxableValue is quantity times unit price without rounding.
func (l LineItem) TaxableValue() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// GSTResult is the quantized GST breakdown of one line.
type GSTResult struct {
	Rate         decimal.Decimal `json:"rate"`
	Supply       SupplyType      `json:"supply"`
	TaxableValue money.Money     `json:"taxable_value"`
	TaxAmount    money.Money     `json:"tax_amount"`
	CGST         money.Money     `json:"cgst"`
	SGST         money.Money     `json:"sgst"`
	IGST         money.Money     `json:"igst"`
}

// Total is taxable value plus tax.
func (r GSTResult) Total() money.Money {
	return r.TaxableValue.Add(r.TaxAmount)
}

// InvoiceGST aggregates line results. Every total is the sum of the
// already-rounded line values.
type InvoiceGST struct {
	Supply       SupplyType  `json:"supply"`
	Lines        []GSTResult `json:"lines"`
	TaxableValue money.Money `json:"taxable_value"`
	TaxAmount    money.Money `json:"tax_amount"`
	CGST         money.Money `json:"cgst"`
	SGST         money.Money `json:"sgst"`
	IGST         money.Money `json:"igst"`
	Total        money.Money `json:"total"`
}

// TDSResult is the withholding applied to one payment.
type TDSResult struct {
	Nature       Nature          `json:"nature"`
	Section      string          `json:"section,omitempty"`
	Rate         decimal.Decimal `json:"rate"`
	Threshold    money.Money     `json:"threshold"`
	GrossPayment money.Money     `json:"gross_payment"`
	TDSAmount    money.Money     `json:"tds_amount"`
	NetPayment   money.Money     `json:"net_payment"`
}

// Deducted reports whether any tax was withheld.
func (r TDSResult) Deducted() bool {
	return r.TDSAmount.IsPositive()
}
