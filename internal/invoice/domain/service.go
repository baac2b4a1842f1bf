package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

type Service interface {
	// Calculate computes GST for the invoice without persisting anything.
	Calculate(ctx context.Context, req CalculateInvoiceRequest) (*taxdomain.InvoiceGST, error)
	// Finalize computes GST, stores the invoice snapshot and posts it to the
	// ledger. Repeating the call with the same idempotency key returns the
	// stored result.
	Finalize(ctx context.Context, req FinalizeInvoiceRequest, idempotencyKey string) (*FinalizeResult, error)
	// Void reverses the invoice's ledger transaction.
	Void(ctx context.Context, orgID, invoiceID snowflake.ID) (*VoidResult, error)
	GetByID(ctx context.Context, orgID, invoiceID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
}

type CalculateInvoiceRequest struct {
	OrgID   snowflake.ID         `validate:"required"`
	PartyID snowflake.ID         `validate:"required"`
	Lines   []taxdomain.LineItem `validate:"required,min=1"`
}

type FinalizeInvoiceRequest struct {
	OrgID   snowflake.ID `validate:"required"`
	PartyID snowflake.ID `validate:"required"`
	Kind    InvoiceKind  `validate:"required,oneof=sales purchase"`
	// InvoiceNumber is generated from the organization's sequence when empty.
	InvoiceNumber string    `validate:"omitempty,max=64"`
	Currency      string    `validate:"omitempty,len=3,alpha"`
	IssuedAt      time.Time `validate:"required"`
	// ReverseCharge overrides the organization default for purchases.
	ReverseCharge *bool
	Lines         []taxdomain.LineItem `validate:"required,min=1"`
	Memo          string               `validate:"max=500"`
}

type FinalizeResult struct {
	Invoice     Invoice                          `json:"invoice"`
	Items       []InvoiceItem                    `json:"items"`
	TaxLines    []InvoiceTaxLine                 `json:"tax_lines"`
	GST         taxdomain.InvoiceGST             `json:"gst"`
	Transaction *ledgerdomain.PostingTransaction `json:"transaction"`
	Replayed    bool                             `json:"replayed"`
}

type VoidResult struct {
	Invoice  Invoice                          `json:"invoice"`
	Reversal *ledgerdomain.PostingTransaction `json:"reversal"`
}

type ListInvoiceRequest struct {
	OrgID    snowflake.ID
	Kind     InvoiceKind
	Status   InvoiceStatus
	PartyID  snowflake.ID
	Before   snowflake.ID
	PageSize int
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
	HasMore  bool      `json:"has_more"`
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrInvalidKind           = errors.New("invalid_invoice_kind")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInvoiceNotFinalized   = errors.New("invoice_not_finalized")
	ErrInvoiceMismatch       = errors.New("invoice_number_reused_with_different_invoice")
	ErrInvoiceNumberConflict = errors.New("invoice_number_conflict")
)
