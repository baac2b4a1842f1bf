package domain

import (
	"fmt"

	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// SalesPosting derives the legs of a sales invoice:
//
//	Dr Accounts Receivable   total
//	Cr Sales                 taxable value
//	Cr Output CGST/SGST/IGST tax
func SalesPosting(gst taxdomain.InvoiceGST) []ledgerdomain.PostingLeg {
	return []ledgerdomain.PostingLeg{
		ledgerdomain.Debit(ledgerdomain.AccountRoleAccountsReceivable, gst.Total, "invoice total"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleSalesRevenue, gst.TaxableValue, "taxable value"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleCGSTPayable, gst.CGST, "output cgst"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleSGSTPayable, gst.SGST, "output sgst"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleIGSTPayable, gst.IGST, "output igst"),
	}
}

// PurchasePosting derives the legs of a purchase invoice. Input tax credit
// is always claimed. Under reverse charge the supplier is owed only the
// taxable value and the tax becomes the buyer's own output liability:
//
//	Dr Purchases             taxable value
//	Dr Input CGST/SGST/IGST  tax
//	Cr Accounts Payable      total (taxable value under reverse charge)
//	Cr Output CGST/SGST/IGST tax (reverse charge only)
func PurchasePosting(gst taxdomain.InvoiceGST, reverseCharge bool) []ledgerdomain.PostingLeg {
	legs := []ledgerdomain.PostingLeg{
		ledgerdomain.Debit(ledgerdomain.AccountRolePurchaseExpense, gst.TaxableValue, "taxable value"),
		ledgerdomain.Debit(ledgerdomain.AccountRoleCGSTInput, gst.CGST, "input cgst"),
		ledgerdomain.Debit(ledgerdomain.AccountRoleSGSTInput, gst.SGST, "input sgst"),
		ledgerdomain.Debit(ledgerdomain.AccountRoleIGSTInput, gst.IGST, "input igst"),
	}
	if !reverseCharge {
		return append(legs, ledgerdomain.Credit(ledgerdomain.AccountRoleAccountsPayable, gst.Total, "invoice total"))
	}
	return append(legs,
		ledgerdomain.Credit(ledgerdomain.AccountRoleAccountsPayable, gst.TaxableValue, "taxable value"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleCGSTPayable, gst.CGST, "reverse charge cgst"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleSGSTPayable, gst.SGST, "reverse charge sgst"),
		ledgerdomain.Credit(ledgerdomain.AccountRoleIGSTPayable, gst.IGST, "reverse charge igst"),
	)
}

// LegsFor selects the posting rule for kind.
func LegsFor(kind InvoiceKind, gst taxdomain.InvoiceGST, reverseCharge bool) ([]ledgerdomain.PostingLeg, ledgerdomain.SourceType, error) {
	switch kind {
	case InvoiceKindSales:
		return SalesPosting(gst), ledgerdomain.SourceTypeSalesInvoice, nil
	case InvoiceKindPurchase:
		return PurchasePosting(gst, reverseCharge), ledgerdomain.SourceTypePurchaseInvoice, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}
