package domain

import (
	"fmt"

	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// PaymentPosting derives the legs of a payment after withholding.
//
//	outgoing: Dr Accounts Payable gross; Cr Bank net; Cr TDS Payable tds
//	incoming: Dr Bank net; Dr TDS Receivable tds; Cr Accounts Receivable gross
func PaymentPosting(direction Direction, tds taxdomain.TDSResult) ([]ledgerdomain.PostingLeg, ledgerdomain.SourceType, error) {
	switch direction {
	case DirectionOutgoing:
		return []ledgerdomain.PostingLeg{
			ledgerdomain.Debit(ledgerdomain.AccountRoleAccountsPayable, tds.GrossPayment, "gross payment"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleBank, tds.NetPayment, "net paid"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleTDSPayable, tds.TDSAmount, "tds withheld"),
		}, ledgerdomain.SourceTypeVendorPayment, nil
	case DirectionIncoming:
		return []ledgerdomain.PostingLeg{
			ledgerdomain.Debit(ledgerdomain.AccountRoleBank, tds.NetPayment, "net received"),
			ledgerdomain.Debit(ledgerdomain.AccountRoleTDSReceivable, tds.TDSAmount, "tds deducted by customer"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleAccountsReceivable, tds.GrossPayment, "gross receipt"),
		}, ledgerdomain.SourceTypeCustomerReceipt, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
}
