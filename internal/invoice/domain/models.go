// Package domain contains persistence models for GST invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// InvoiceKind tells whether the organization issued or received the invoice.
type InvoiceKind string

const (
	InvoiceKindSales    InvoiceKind = "sales"
	InvoiceKindPurchase InvoiceKind = "purchase"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	// InvoiceStatusDraft is only observed when a finalize attempt failed
	// after the invoice row was written; retrying the finalize completes it.
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
	InvoiceStatusVoid      InvoiceStatus = "VOID"
)

// Invoice is the tax snapshot of a finalized sales or purchase invoice.
// Amounts are in paise.
type Invoice struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID                 snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoices_org_kind_number,priority:1;uniqueIndex:ux_invoices_org_key,priority:1" json:"org_id"`
	PartyID               snowflake.ID  `gorm:"not null;index" json:"party_id"`
	Kind                  InvoiceKind   `gorm:"type:text;not null;uniqueIndex:ux_invoices_org_kind_number,priority:2" json:"kind"`
	InvoiceNumber         string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_org_kind_number,priority:3" json:"invoice_number"`
	IdempotencyKey        string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_org_key,priority:2" json:"idempotency_key"`
	Status                InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	SellerState           string        `gorm:"type:text" json:"seller_state,omitempty"`
	BuyerState            string        `gorm:"type:text" json:"buyer_state,omitempty"`
	Supply                string        `gorm:"type:text;not null" json:"supply"`
	ReverseCharge         bool          `gorm:"not null;default:false" json:"reverse_charge"`
	Currency              string        `gorm:"type:text;not null" json:"currency"`
	TaxableAmount         int64         `gorm:"not null;default:0" json:"taxable_amount"`
	CGSTAmount            int64         `gorm:"column:cgst_amount;not null;default:0" json:"cgst_amount"`
	SGSTAmount            int64         `gorm:"column:sgst_amount;not null;default:0" json:"sgst_amount"`
	IGSTAmount            int64         `gorm:"column:igst_amount;not null;default:0" json:"igst_amount"`
	TaxAmount             int64         `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount           int64         `gorm:"not null;default:0" json:"total_amount"`
	IssuedAt              time.Time     `gorm:"not null" json:"issued_at"`
	LedgerTransactionID   *snowflake.ID `gorm:"index" json:"ledger_transaction_id,omitempty"`
	ReversalTransactionID *snowflake.ID `json:"reversal_transaction_id,omitempty"`
	FinalizedAt           *time.Time    `json:"finalized_at,omitempty"`
	VoidedAt              *time.Time    `json:"voided_at,omitempty"`
	CreatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Total returns the invoice total as Money.
func (i Invoice) Total() money.Money { return money.FromMinor(i.TotalAmount) }

// InvoiceItem is one priced line with its GST breakdown.
type InvoiceItem struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index" json:"org_id"`
	InvoiceID     snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	Description   string          `gorm:"type:text" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric;not null" json:"unit_price"`
	GSTRate       decimal.Decimal `gorm:"column:gst_rate;type:numeric;not null" json:"gst_rate"`
	TaxableAmount int64           `gorm:"not null" json:"taxable_amount"`
	CGSTAmount    int64           `gorm:"column:cgst_amount;not null;default:0" json:"cgst_amount"`
	SGSTAmount    int64           `gorm:"column:sgst_amount;not null;default:0" json:"sgst_amount"`
	IGSTAmount    int64           `gorm:"column:igst_amount;not null;default:0" json:"igst_amount"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence holds the last number handed out for an organization, kind
// and financial year. Numbers are reserved in their own transaction, so a
// discarded draft leaves a gap instead of a reusable number.
type InvoiceSequence struct {
	OrgID         snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"org_id"`
	Kind          InvoiceKind  `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	FinancialYear string       `gorm:"primaryKey;type:varchar(16)" json:"financial_year"`
	LastValue     int64        `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
