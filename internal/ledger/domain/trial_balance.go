package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// AccountBalance is the debit and credit turnover of one account.
type AccountBalance struct {
	AccountID snowflake.ID `json:"account_id"`
	Code      AccountRole  `json:"code"`
	Name      string       `json:"name"`
	Type      AccountType  `json:"type"`
	Debit     money.Money  `json:"debit"`
	Credit    money.Money  `json:"credit"`
}

// Net is debit minus credit.
func (b AccountBalance) Net() money.Money {
	return b.Debit.Sub(b.Credit)
}

// TrialBalance is a read-only projection of committed entries up to AsOf.
type TrialBalance struct {
	OrgID        snowflake.ID     `json:"org_id"`
	AsOf         time.Time        `json:"as_of"`
	Accounts     []AccountBalance `json:"accounts"`
	TotalDebits  money.Money      `json:"total_debits"`
	TotalCredits money.Money      `json:"total_credits"`
}

func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebits.Equal(tb.TotalCredits)
}

// Balance returns the row for role, if any.
func (tb TrialBalance) Balance(role AccountRole) (AccountBalance, bool) {
	for _, account := range tb.Accounts {
		if account.Code == role {
			return account, true
		}
	}
	return AccountBalance{}, false
}

// IntegrityViolation reports a committed ledger whose totals disagree.
type IntegrityViolation struct {
	OrgID                  snowflake.ID
	AsOf                   time.Time
	TotalDebits            money.Money
	TotalCredits           money.Money
	UnbalancedTransactions []snowflake.ID
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("%s: org %s as of %s debits %s credits %s (%d unbalanced transactions)",
		ErrDataIntegrityViolation.Error(),
		e.OrgID.String(),
		e.AsOf.UTC().Format(time.RFC3339),
		e.TotalDebits.String(),
		e.TotalCredits.String(),
		len(e.UnbalancedTransactions),
	)
}

func (e *IntegrityViolation) Unwrap() error {
	return ErrDataIntegrityViolation
}
