package service

import (
	"context"
	"fmt"

	invoicedomain "github.com/smallbiznis/bizbooks/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// postInvoiceToLedger posts the invoice snapshot through the engine. The
// invoice id is the source id, so a retried finalize produces the same
// request hash and replays.
//
// Sales:    Dr AR total; Cr Sales taxable; Cr output GST.
// Purchase: Dr Purchases taxable; Dr input GST; Cr AP total. Under reverse
// charge AP is credited the taxable value and output GST the tax.
func (s *Service) postInvoiceToLedger(ctx context.Context, invoice *invoicedomain.Invoice, gst taxdomain.InvoiceGST, memo, idempotencyKey string) (*ledgerdomain.PostingTransaction, error) {
	if invoice == nil {
		return nil, fmt.Errorf("invoice is nil")
	}
	legs, sourceType, err := invoicedomain.LegsFor(invoice.Kind, gst, invoice.ReverseCharge)
	if err != nil {
		return nil, err
	}
	if memo == "" {
		memo = fmt.Sprintf("%s invoice %s", invoice.Kind, invoice.InvoiceNumber)
	}

	event := ledgerdomain.PostingEvent{
		OrgID:      invoice.OrgID,
		SourceType: sourceType,
		SourceID:   invoice.ID,
		Currency:   invoice.Currency,
		OccurredAt: invoice.IssuedAt,
		Memo:       memo,
		Legs:       legs,
	}
	return s.ledger.Post(ctx, event, s.accounts, idempotencyKey)
}
