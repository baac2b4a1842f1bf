package domain

import (
	"testing"

	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withheld() taxdomain.TDSResult {
	return taxdomain.TDSResult{
		Nature:       taxdomain.NatureProfessional,
		GrossPayment: money.MustParse("50000.00"),
		TDSAmount:    money.MustParse("5000.00"),
		NetPayment:   money.MustParse("45000.00"),
	}
}

func legAmount(legs []ledgerdomain.PostingLeg, role ledgerdomain.AccountRole, direction ledgerdomain.LedgerEntryDirection) string {
	for _, leg := range legs {
		if leg.Role == role && leg.Direction == direction {
			return leg.Amount.String()
		}
	}
	return ""
}

func TestPaymentPostingOutgoing(t *testing.T) {
	legs, source, err := PaymentPosting(DirectionOutgoing, withheld())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.SourceTypeVendorPayment, source)
	assert.Equal(t, "50000.00", legAmount(legs, ledgerdomain.AccountRoleAccountsPayable, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, "45000.00", legAmount(legs, ledgerdomain.AccountRoleBank, ledgerdomain.LedgerEntryDirectionCredit))
	assert.Equal(t, "5000.00", legAmount(legs, ledgerdomain.AccountRoleTDSPayable, ledgerdomain.LedgerEntryDirectionCredit))
}

func TestPaymentPostingIncoming(t *testing.T) {
	legs, source, err := PaymentPosting(DirectionIncoming, withheld())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.SourceTypeCustomerReceipt, source)
	assert.Equal(t, "45000.00", legAmount(legs, ledgerdomain.AccountRoleBank, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, "5000.00", legAmount(legs, ledgerdomain.AccountRoleTDSReceivable, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, "50000.00", legAmount(legs, ledgerdomain.AccountRoleAccountsReceivable, ledgerdomain.LedgerEntryDirectionCredit))
}

func TestPaymentPostingUnknownDirection(t *testing.T) {
	_, _, err := PaymentPosting("sideways", withheld())
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
