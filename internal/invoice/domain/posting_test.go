package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intraStateGST() taxdomain.InvoiceGST {
	return taxdomain.InvoiceGST{
		Supply:       taxdomain.SupplyIntraState,
		TaxableValue: money.MustParse("1000.00"),
		TaxAmount:    money.MustParse("180.00"),
		CGST:         money.MustParse("90.00"),
		SGST:         money.MustParse("90.00"),
		Total:        money.MustParse("1180.00"),
		Lines: []taxdomain.GSTResult{{
			Rate:         decimal.NewFromInt(18),
			Supply:       taxdomain.SupplyIntraState,
			TaxableValue: money.MustParse("1000.00"),
			TaxAmount:    money.MustParse("180.00"),
			CGST:         money.MustParse("90.00"),
			SGST:         money.MustParse("90.00"),
		}},
	}
}

func interStateGST() taxdomain.InvoiceGST {
	return taxdomain.InvoiceGST{
		Supply:       taxdomain.SupplyInterState,
		TaxableValue: money.MustParse("500.00"),
		TaxAmount:    money.MustParse("60.00"),
		IGST:         money.MustParse("60.00"),
		Total:        money.MustParse("560.00"),
		Lines: []taxdomain.GSTResult{{
			Rate:         decimal.NewFromInt(12),
			Supply:       taxdomain.SupplyInterState,
			TaxableValue: money.MustParse("500.00"),
			TaxAmount:    money.MustParse("60.00"),
			IGST:         money.MustParse("60.00"),
		}},
	}
}

func totals(legs []ledgerdomain.PostingLeg) (debits, credits money.Money) {
	for _, leg := range legs {
		if leg.Direction == ledgerdomain.LedgerEntryDirectionDebit {
			debits = debits.Add(leg.Amount)
		} else {
			credits = credits.Add(leg.Amount)
		}
	}
	return debits, credits
}

func amountFor(legs []ledgerdomain.PostingLeg, role ledgerdomain.AccountRole, direction ledgerdomain.LedgerEntryDirection) money.Money {
	var out money.Money
	for _, leg := range legs {
		if leg.Role == role && leg.Direction == direction {
			out = out.Add(leg.Amount)
		}
	}
	return out
}

func TestSalesPosting(t *testing.T) {
	legs := SalesPosting(intraStateGST())

	debits, credits := totals(legs)
	assert.True(t, debits.Equal(credits))
	assert.Equal(t, "1180.00", debits.String())
	assert.Equal(t, "1180.00", amountFor(legs, ledgerdomain.AccountRoleAccountsReceivable, ledgerdomain.LedgerEntryDirectionDebit).String())
	assert.Equal(t, "1000.00", amountFor(legs, ledgerdomain.AccountRoleSalesRevenue, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.Equal(t, "90.00", amountFor(legs, ledgerdomain.AccountRoleCGSTPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.Equal(t, "90.00", amountFor(legs, ledgerdomain.AccountRoleSGSTPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.True(t, amountFor(legs, ledgerdomain.AccountRoleIGSTPayable, ledgerdomain.LedgerEntryDirectionCredit).IsZero())
}

func TestPurchasePosting(t *testing.T) {
	legs := PurchasePosting(interStateGST(), false)

	debits, credits := totals(legs)
	assert.True(t, debits.Equal(credits))
	assert.Equal(t, "560.00", amountFor(legs, ledgerdomain.AccountRoleAccountsPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.Equal(t, "60.00", amountFor(legs, ledgerdomain.AccountRoleIGSTInput, ledgerdomain.LedgerEntryDirectionDebit).String())
	assert.Equal(t, "500.00", amountFor(legs, ledgerdomain.AccountRolePurchaseExpense, ledgerdomain.LedgerEntryDirectionDebit).String())
}

func TestPurchasePostingReverseCharge(t *testing.T) {
	legs := PurchasePosting(intraStateGST(), true)

	debits, credits := totals(legs)
	assert.True(t, debits.Equal(credits))
	assert.Equal(t, "1180.00", debits.String())
	assert.Equal(t, "1000.00", amountFor(legs, ledgerdomain.AccountRoleAccountsPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.Equal(t, "90.00", amountFor(legs, ledgerdomain.AccountRoleCGSTInput, ledgerdomain.LedgerEntryDirectionDebit).String())
	assert.Equal(t, "90.00", amountFor(legs, ledgerdomain.AccountRoleCGSTPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
	assert.Equal(t, "90.00", amountFor(legs, ledgerdomain.AccountRoleSGSTPayable, ledgerdomain.LedgerEntryDirectionCredit).String())
}

func TestLegsFor(t *testing.T) {
	_, source, err := LegsFor(InvoiceKindSales, intraStateGST(), true)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.SourceTypeSalesInvoice, source)

	_, source, err = LegsFor(InvoiceKindPurchase, intraStateGST(), false)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.SourceTypePurchaseInvoice, source)

	_, _, err = LegsFor("credit_note", intraStateGST(), false)
	assert.True(t, errors.Is(err, ErrInvalidKind))
}

func TestSummarizeTax(t *testing.T) {
	gst := intraStateGST()
	gst.Lines = append(gst.Lines,
		taxdomain.GSTResult{
			Rate:         decimal.NewFromInt(18),
			TaxableValue: money.MustParse("10.01"),
			TaxAmount:    money.MustParse("1.80"),
			CGST:         money.MustParse("0.90"),
			SGST:         money.MustParse("0.90"),
		},
		taxdomain.GSTResult{
			Rate:         decimal.NewFromInt(5),
			TaxableValue: money.MustParse("99.99"),
			TaxAmount:    money.MustParse("5.00"),
			CGST:         money.MustParse("2.50"),
			SGST:         money.MustParse("2.50"),
		},
		taxdomain.GSTResult{
			Rate:         decimal.Zero,
			TaxableValue: money.MustParse("40.00"),
		},
	)

	lines := SummarizeTax(gst)
	require.Len(t, lines, 4)

	assert.Equal(t, TaxComponentCGST, lines[0].Component)
	assert.True(t, lines[0].GSTRate.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(250), lines[0].Amount)
	assert.Equal(t, int64(9999), lines[0].TaxableAmount)

	assert.Equal(t, TaxComponentCGST, lines[2].Component)
	assert.True(t, lines[2].GSTRate.Equal(decimal.NewFromInt(18)))
	assert.Equal(t, int64(9090), lines[2].Amount)
	assert.Equal(t, int64(101001), lines[2].TaxableAmount)
	assert.Equal(t, TaxComponentSGST, lines[3].Component)
}
