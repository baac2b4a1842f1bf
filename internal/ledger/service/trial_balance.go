package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	"github.com/smallbiznis/bizbooks/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TrialBalanceParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// LedgerService projects committed entries into trial balances. It never
// writes to the ledger.
type LedgerService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTrialBalanceService(p TrialBalanceParams) ledgerdomain.TrialBalanceService {
	return &LedgerService{
		db:  p.DB,
		log: p.Log.Named("ledger.trial_balance"),
	}
}

type accountTurnoverRow struct {
	AccountID   snowflake.ID
	AccountRole string
	Debit       int64
	Credit      int64
}

// GetTrialBalance sums debits and credits per account over transactions that
// occurred at or before asOf. Any disagreement is returned as an
// *IntegrityViolation.
func (s *LedgerService) GetTrialBalance(ctx context.Context, orgID snowflake.ID, asOf time.Time) (*ledgerdomain.TrialBalance, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if asOf.IsZero() {
		return nil, fmt.Errorf("%w: as_of is required", ledgerdomain.ErrInvalidInput)
	}
	asOf = asOf.UTC()

	var rows []accountTurnoverRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT e.account_id AS account_id,
			e.account_role AS account_role,
			CAST(COALESCE(SUM(CASE WHEN e.direction = 'debit' THEN e.amount ELSE 0 END), 0) AS BIGINT) AS debit,
			CAST(COALESCE(SUM(CASE WHEN e.direction = 'credit' THEN e.amount ELSE 0 END), 0) AS BIGINT) AS credit
		 FROM ledger_entries e
		 JOIN ledger_transactions t ON t.id = e.transaction_id
		 WHERE t.org_id = ? AND t.occurred_at <= ?
		 GROUP BY e.account_id, e.account_role
		 ORDER BY e.account_role ASC, e.account_id ASC`,
		orgID,
		asOf,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}

	var accounts []ledgerdomain.LedgerAccount
	if err := s.db.WithContext(ctx).Where("org_id = ?", orgID).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	byID := make(map[snowflake.ID]ledgerdomain.LedgerAccount, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}

	tb := &ledgerdomain.TrialBalance{
		OrgID:    orgID,
		AsOf:     asOf,
		Accounts: make([]ledgerdomain.AccountBalance, 0, len(rows)),
	}
	var totalDebits, totalCredits int64
	for _, row := range rows {
		balance := ledgerdomain.AccountBalance{
			AccountID: row.AccountID,
			Code:      ledgerdomain.AccountRole(row.AccountRole),
			Debit:     money.FromMinor(row.Debit),
			Credit:    money.FromMinor(row.Credit),
		}
		if account, ok := byID[row.AccountID]; ok {
			balance.Name = account.Name
			balance.Type = account.Type
		}
		tb.Accounts = append(tb.Accounts, balance)
		totalDebits += row.Debit
		totalCredits += row.Credit
	}
	tb.TotalDebits = money.FromMinor(totalDebits)
	tb.TotalCredits = money.FromMinor(totalCredits)

	unbalanced, err := s.unbalancedTransactions(ctx, orgID, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}

	if totalDebits != totalCredits || len(unbalanced) > 0 {
		violation := &ledgerdomain.IntegrityViolation{
			OrgID:                  orgID,
			AsOf:                   asOf,
			TotalDebits:            tb.TotalDebits,
			TotalCredits:           tb.TotalCredits,
			UnbalancedTransactions: unbalanced,
		}
		logger.WithContext(ctx, s.log).Error("ledger integrity violation",
			zap.String("org_id", orgID.String()),
			zap.Time("as_of", asOf),
			zap.String("total_debits", tb.TotalDebits.String()),
			zap.String("total_credits", tb.TotalCredits.String()),
			zap.Int("unbalanced_transactions", len(unbalanced)),
		)
		return nil, violation
	}
	return tb, nil
}

func (s *LedgerService) unbalancedTransactions(ctx context.Context, orgID snowflake.ID, asOf time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT t.id
		 FROM ledger_transactions t
		 LEFT JOIN ledger_entries e ON e.transaction_id = t.id
		 WHERE t.org_id = ? AND t.occurred_at <= ?
		 GROUP BY t.id
		 HAVING COALESCE(SUM(CASE WHEN e.direction = 'debit' THEN e.amount ELSE -e.amount END), 0) <> 0
			OR COUNT(e.id) < 2
		 ORDER BY t.id ASC`,
		orgID,
		asOf,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListLedgerOrganizations returns every organization with at least one
// committed transaction.
func (s *LedgerService) ListLedgerOrganizations(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id FROM ledger_transactions ORDER BY org_id ASC`,
	).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	return ids, nil
}
