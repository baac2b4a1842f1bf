package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the posting engine.
type Service interface {
	Post(ctx context.Context, event PostingEvent, resolver AccountResolver, idempotencyKey string) (*PostingTransaction, error)
	Reverse(ctx context.Context, transactionID snowflake.ID) (*PostingTransaction, error)
	FindByIdempotencyKey(ctx context.Context, orgID snowflake.ID, idempotencyKey string) (*PostingTransaction, error)
	GetTransaction(ctx context.Context, transactionID snowflake.ID) (*PostingTransaction, error)
}

// TrialBalanceService projects committed entries into balances.
type TrialBalanceService interface {
	GetTrialBalance(ctx context.Context, orgID snowflake.ID, asOf time.Time) (*TrialBalance, error)
	ListLedgerOrganizations(ctx context.Context) ([]snowflake.ID, error)
}

// AccountRepository owns the chart of accounts.
type AccountRepository interface {
	AccountResolver
	EnsureChartOfAccounts(ctx context.Context, orgID snowflake.ID) ([]LedgerAccount, error)
	ListAccounts(ctx context.Context, orgID snowflake.ID) ([]LedgerAccount, error)
}
