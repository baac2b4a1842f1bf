package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

type TaxComponent string

const (
	TaxComponentCGST TaxComponent = "CGST"
	TaxComponentSGST TaxComponent = "SGST"
	TaxComponentIGST TaxComponent = "IGST"
)

// InvoiceTaxLine is the per-rate, per-component GST summary printed on an
// invoice. Amounts are in paise.
type InvoiceTaxLine struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index" json:"org_id"`
	InvoiceID     snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Component     TaxComponent    `gorm:"type:text;not null" json:"component"`
	GSTRate       decimal.Decimal `gorm:"column:gst_rate;type:numeric;not null" json:"gst_rate"`
	TaxableAmount int64           `gorm:"not null" json:"taxable_amount"`
	Amount        int64           `gorm:"not null" json:"amount"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceTaxLine) TableName() string { return "invoice_tax_lines" }

// SummarizeTax groups line results by GST rate and component. Lines taxed
// at zero produce no summary rows. The component amounts add up to the
// invoice totals exactly.
func SummarizeTax(gst taxdomain.InvoiceGST) []InvoiceTaxLine {
	type key struct {
		component TaxComponent
		rate      string
	}
	type bucket struct {
		rate    decimal.Decimal
		taxable money.Money
		amount  money.Money
	}

	buckets := make(map[key]*bucket)
	add := func(component TaxComponent, line taxdomain.GSTResult, amount money.Money) {
		if amount.IsZero() {
			return
		}
		k := key{component: component, rate: line.Rate.String()}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{rate: line.Rate}
			buckets[k] = b
		}
		b.taxable = b.taxable.Add(line.TaxableValue)
		b.amount = b.amount.Add(amount)
	}
	for _, line := range gst.Lines {
		add(TaxComponentCGST, line, line.CGST)
		add(TaxComponentSGST, line, line.SGST)
		add(TaxComponentIGST, line, line.IGST)
	}

	out := make([]InvoiceTaxLine, 0, len(buckets))
	for k, b := range buckets {
		out = append(out, InvoiceTaxLine{
			Component:     k.component,
			GSTRate:       b.rate,
			TaxableAmount: b.taxable.MinorUnits(),
			Amount:        b.amount.MinorUnits(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GSTRate.Equal(out[j].GSTRate) {
			return out[i].GSTRate.LessThan(out[j].GSTRate)
		}
		return out[i].Component < out[j].Component
	})
	return out
}
