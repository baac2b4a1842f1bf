package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

// Opposite flips debit and credit.
func (d LedgerEntryDirection) Opposite() LedgerEntryDirection {
	if d == LedgerEntryDirectionDebit {
		return LedgerEntryDirectionCredit
	}
	return LedgerEntryDirectionDebit
}

type SourceType string

const (
	SourceTypeSalesInvoice    SourceType = "sales_invoice"
	SourceTypePurchaseInvoice SourceType = "purchase_invoice"
	SourceTypeVendorPayment   SourceType = "vendor_payment"
	SourceTypeCustomerReceipt SourceType = "customer_receipt"
	SourceTypeReversal        SourceType = "reversal"
)

// AccountRole is the engine-facing purpose of an account. Concrete account
// identifiers are looked up per organization through an AccountResolver.
type AccountRole string

const (
	// Assets
	AccountRoleAccountsReceivable AccountRole = "accounts_receivable"
	AccountRoleBank               AccountRole = "bank"
	AccountRoleCGSTInput          AccountRole = "cgst_input_credit"
	AccountRoleSGSTInput          AccountRole = "sgst_input_credit"
	AccountRoleIGSTInput          AccountRole = "igst_input_credit"
	AccountRoleTDSReceivable      AccountRole = "tds_receivable"

	// Liabilities
	AccountRoleAccountsPayable AccountRole = "accounts_payable"
	AccountRoleCGSTPayable     AccountRole = "cgst_payable"
	AccountRoleSGSTPayable     AccountRole = "sgst_payable"
	AccountRoleIGSTPayable     AccountRole = "igst_payable"
	AccountRoleTDSPayable      AccountRole = "tds_payable"

	// Income / Expense
	AccountRoleSalesRevenue    AccountRole = "sales_revenue"
	AccountRolePurchaseExpense AccountRole = "purchase_expense"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTemplate describes one account of the default chart.
type AccountTemplate struct {
	Role AccountRole
	Name string
	Type AccountType
}

// DefaultChartOfAccounts lists every role the posting rules use.
func DefaultChartOfAccounts() []AccountTemplate {
	return []AccountTemplate{
		{Role: AccountRoleAccountsReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset},
		{Role: AccountRoleBank, Name: "Bank", Type: AccountTypeAsset},
		{Role: AccountRoleCGSTInput, Name: "Input CGST", Type: AccountTypeAsset},
		{Role: AccountRoleSGSTInput, Name: "Input SGST", Type: AccountTypeAsset},
		{Role: AccountRoleIGSTInput, Name: "Input IGST", Type: AccountTypeAsset},
		{Role: AccountRoleTDSReceivable, Name: "TDS Receivable", Type: AccountTypeAsset},
		{Role: AccountRoleAccountsPayable, Name: "Accounts Payable", Type: AccountTypeLiability},
		{Role: AccountRoleCGSTPayable, Name: "Output CGST", Type: AccountTypeLiability},
		{Role: AccountRoleSGSTPayable, Name: "Output SGST", Type: AccountTypeLiability},
		{Role: AccountRoleIGSTPayable, Name: "Output IGST", Type: AccountTypeLiability},
		{Role: AccountRoleTDSPayable, Name: "TDS Payable", Type: AccountTypeLiability},
		{Role: AccountRoleSalesRevenue, Name: "Sales", Type: AccountTypeIncome},
		{Role: AccountRolePurchaseExpense, Name: "Purchases", Type: AccountTypeExpense},
	}
}

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_ledger_accounts_org_code,priority:1"`
	Code      AccountRole  `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_org_code,priority:2"`
	Name      string       `gorm:"type:text;not null"`
	Type      AccountType  `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// PostingTransaction is the immutable header of one balanced posting.
// Corrections are new reversing transactions, never updates.
type PostingTransaction struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	OrgID          snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_ledger_transactions_idempotency,priority:1"`
	IdempotencyKey string        `gorm:"type:text;not null;uniqueIndex:ux_ledger_transactions_idempotency,priority:2"`
	RequestHash    string        `gorm:"type:text;not null"`
	SourceType     SourceType    `gorm:"type:text;not null;index:ix_ledger_transactions_source,priority:1"`
	SourceID       snowflake.ID  `gorm:"not null;index:ix_ledger_transactions_source,priority:2"`
	ReversalOf     *snowflake.ID `gorm:"index"`
	Currency       string        `gorm:"type:text;not null"`
	Memo           string        `gorm:"type:text;not null;default:''"`
	OccurredAt     time.Time     `gorm:"not null;index"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Entries []LedgerEntry `gorm:"-"`
	// Replayed is set when Post returned an already committed transaction.
	Replayed bool `gorm:"-"`
}

// TableName sets the database table name.
func (PostingTransaction) TableName() string { return "ledger_transactions" }

// IsReversal reports whether the transaction reverses another.
func (t PostingTransaction) IsReversal() bool {
	return t.ReversalOf != nil && *t.ReversalOf != 0
}

// LedgerEntry is one append-only debit or credit line. Amount is in paise.
type LedgerEntry struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	TransactionID snowflake.ID         `gorm:"column:transaction_id;not null;index"`
	OrgID         snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	AccountRole   AccountRole          `gorm:"column:account_role;type:text;not null"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	LineNo        int                  `gorm:"column:line_no;not null"`
	Memo          string               `gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// Money returns the amount as Money.
func (e LedgerEntry) Money() money.Money {
	return money.FromMinor(e.Amount)
}
