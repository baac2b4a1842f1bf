package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
}

type accountRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewAccountRepository(p Params) ledgerdomain.AccountRepository {
	return &accountRepository{db: p.DB, genID: p.GenID}
}

func (r *accountRepository) ResolveAccount(ctx context.Context, orgID snowflake.ID, role ledgerdomain.AccountRole) (snowflake.ID, error) {
	var account ledgerdomain.LedgerAccount
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, type, created_at
		 FROM ledger_accounts
		 WHERE org_id = ? AND code = ?
		 LIMIT 1`,
		orgID,
		role,
	).Scan(&account).Error
	if err != nil {
		return 0, err
	}
	if account.ID == 0 {
		return 0, fmt.Errorf("%w: %s for org %s", ledgerdomain.ErrUnresolvedAccount, role, orgID.String())
	}
	return account.ID, nil
}

// EnsureChartOfAccounts creates any missing default accounts and returns the full chart.
func (r *accountRepository) EnsureChartOfAccounts(ctx context.Context, orgID snowflake.ID) ([]ledgerdomain.LedgerAccount, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tmpl := range ledgerdomain.DefaultChartOfAccounts() {
			if err := tx.Exec(
				`INSERT INTO ledger_accounts (id, org_id, code, name, type, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (org_id, code) DO NOTHING`,
				r.genID.Generate(),
				orgID,
				tmpl.Role,
				tmpl.Name,
				tmpl.Type,
				now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.ListAccounts(ctx, orgID)
}

func (r *accountRepository) ListAccounts(ctx context.Context, orgID snowflake.ID) ([]ledgerdomain.LedgerAccount, error) {
	var accounts []ledgerdomain.LedgerAccount
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("code ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
