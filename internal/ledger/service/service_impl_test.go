package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	auditrepository "github.com/smallbiznis/bizbooks/internal/audit/repository"
	auditservice "github.com/smallbiznis/bizbooks/internal/audit/service"
	"github.com/smallbiznis/bizbooks/internal/clock"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/ledger/repository"
	"github.com/smallbiznis/bizbooks/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db       *gorm.DB
	engine   *Engine
	tb       *LedgerService
	accounts ledgerdomain.AccountRepository
	clock    *clock.FakeClock
	orgID    snowflake.ID
}

func setupLedger(t *testing.T) *ledgerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.PostingTransaction{},
		&ledgerdomain.LedgerEntry{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clk,
	})

	accounts := repository.NewAccountRepository(repository.Params{DB: db, GenID: node})
	orgID := node.Generate()
	_, err = accounts.EnsureChartOfAccounts(context.Background(), orgID)
	require.NoError(t, err)

	engine := NewEngine(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		AuditSvc: audit,
	})
	tb := NewTrialBalanceService(TrialBalanceParams{DB: db, Log: zap.NewNop()}).(*LedgerService)

	return &ledgerFixture{
		db:       db,
		engine:   engine,
		tb:       tb,
		accounts: accounts,
		clock:    clk,
		orgID:    orgID,
	}
}

func (f *ledgerFixture) salesEvent(sourceID snowflake.ID, total, taxable, cgst, sgst string) ledgerdomain.PostingEvent {
	return ledgerdomain.PostingEvent{
		OrgID:      f.orgID,
		SourceType: ledgerdomain.SourceTypeSalesInvoice,
		SourceID:   sourceID,
		Currency:   "INR",
		OccurredAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Memo:       "INV-0001",
		Legs: []ledgerdomain.PostingLeg{
			ledgerdomain.Debit(ledgerdomain.AccountRoleAccountsReceivable, money.MustParse(total), "invoice total"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleSalesRevenue, money.MustParse(taxable), "taxable value"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleCGSTPayable, money.MustParse(cgst), "cgst"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleSGSTPayable, money.MustParse(sgst), "sgst"),
			ledgerdomain.Credit(ledgerdomain.AccountRoleIGSTPayable, money.Zero, "igst"),
		},
	}
}

func (f *ledgerFixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestPost_CommitsBalancedTransaction(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	txn, err := f.engine.Post(ctx, f.salesEvent(101, "11800.00", "10000.00", "900.00", "900.00"), f.accounts, "sales_invoice:101")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.False(t, txn.Replayed)
	assert.NotZero(t, txn.ID)
	assert.NotEmpty(t, txn.RequestHash)

	// the zero IGST leg is dropped
	require.Len(t, txn.Entries, 4)
	for i, entry := range txn.Entries {
		assert.Equal(t, i+1, entry.LineNo)
		assert.Equal(t, txn.ID, entry.TransactionID)
	}
	debits, credits := ledgerdomain.Totals(txn.Entries)
	assert.Equal(t, int64(1180000), debits)
	assert.Equal(t, debits, credits)

	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.PostingTransaction{}))
	assert.Equal(t, int64(4), f.count(t, &ledgerdomain.LedgerEntry{}))
	assert.Equal(t, int64(1), f.count(t, &auditdomain.AuditLog{}))

	tb, err := f.tb.GetTrialBalance(ctx, f.orgID, f.clock.Now())
	require.NoError(t, err)
	assert.True(t, tb.Balanced())
	assert.Equal(t, "11800.00", tb.TotalDebits.String())
	ar, ok := tb.Balance(ledgerdomain.AccountRoleAccountsReceivable)
	require.True(t, ok)
	assert.Equal(t, "11800.00", ar.Debit.String())
	assert.Equal(t, "Accounts Receivable", ar.Name)
	cgst, ok := tb.Balance(ledgerdomain.AccountRoleCGSTPayable)
	require.True(t, ok)
	assert.Equal(t, "900.00", cgst.Credit.String())
}

func TestPost_ImbalanceIsNeverCommitted(t *testing.T) {
	f := setupLedger(t)

	_, err := f.engine.Post(context.Background(), f.salesEvent(102, "11800.01", "10000.00", "900.00", "900.00"), f.accounts, "sales_invoice:102")
	require.ErrorIs(t, err, ledgerdomain.ErrLedgerImbalance)

	assert.Zero(t, f.count(t, &ledgerdomain.PostingTransaction{}))
	assert.Zero(t, f.count(t, &ledgerdomain.LedgerEntry{}))
	assert.Zero(t, f.count(t, &auditdomain.AuditLog{}))
}

func TestPost_UnresolvedAccount(t *testing.T) {
	f := setupLedger(t)
	resolver := ledgerdomain.StaticAccountResolver{
		ledgerdomain.AccountRoleAccountsReceivable: 1,
		ledgerdomain.AccountRoleSalesRevenue:       2,
	}

	_, err := f.engine.Post(context.Background(), f.salesEvent(103, "118.00", "100.00", "9.00", "9.00"), resolver, "sales_invoice:103")
	require.ErrorIs(t, err, ledgerdomain.ErrUnresolvedAccount)
	assert.Zero(t, f.count(t, &ledgerdomain.PostingTransaction{}))
}

func TestPost_ResolverFailureIsPersistenceFailure(t *testing.T) {
	f := setupLedger(t)
	boom := errors.New("connection reset")
	resolver := ledgerdomain.AccountResolverFunc(func(context.Context, snowflake.ID, ledgerdomain.AccountRole) (snowflake.ID, error) {
		return 0, boom
	})

	_, err := f.engine.Post(context.Background(), f.salesEvent(104, "118.00", "100.00", "9.00", "9.00"), resolver, "sales_invoice:104")
	require.ErrorIs(t, err, ledgerdomain.ErrPersistenceFailure)
}

func TestPost_RejectsInvalidInput(t *testing.T) {
	f := setupLedger(t)

	_, err := f.engine.Post(context.Background(), f.salesEvent(105, "118.00", "100.00", "9.00", "9.00"), f.accounts, "  ")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidIdempotencyKey)
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidInput)

	event := f.salesEvent(105, "118.00", "100.00", "9.00", "9.00")
	event.Currency = ""
	_, err = f.engine.Post(context.Background(), event, f.accounts, "sales_invoice:105")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidCurrency)

	event = f.salesEvent(105, "0.00", "0.00", "0.00", "0.00")
	_, err = f.engine.Post(context.Background(), event, f.accounts, "sales_invoice:105")
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryLines)
}

func TestPost_IdempotentReplay(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	event := f.salesEvent(106, "1180.00", "1000.00", "90.00", "90.00")

	first, err := f.engine.Post(ctx, event, f.accounts, "sales_invoice:106")
	require.NoError(t, err)

	// a retry carrying a new memo and timestamp is still the same posting
	event.Memo = "retry"
	event.OccurredAt = event.OccurredAt.Add(time.Minute)
	second, err := f.engine.Post(ctx, event, f.accounts, "sales_invoice:106")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Entries, len(first.Entries))
	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.PostingTransaction{}))
	assert.Equal(t, int64(4), f.count(t, &ledgerdomain.LedgerEntry{}))
	assert.Equal(t, int64(1), f.count(t, &auditdomain.AuditLog{}))

	found, err := f.engine.FindByIdempotencyKey(ctx, f.orgID, "sales_invoice:106")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Len(t, found.Entries, 4)
}

func TestPost_KeyReusedWithDifferentEvent(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	_, err := f.engine.Post(ctx, f.salesEvent(107, "1180.00", "1000.00", "90.00", "90.00"), f.accounts, "sales_invoice:107")
	require.NoError(t, err)

	_, err = f.engine.Post(ctx, f.salesEvent(107, "2360.00", "2000.00", "180.00", "180.00"), f.accounts, "sales_invoice:107")
	require.ErrorIs(t, err, ledgerdomain.ErrIdempotencyMismatch)
	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.PostingTransaction{}))
}

func TestPost_StorageFailureLeavesNothingBehind(t *testing.T) {
	f := setupLedger(t)
	require.NoError(t, f.db.Migrator().DropTable(&ledgerdomain.LedgerEntry{}))

	_, err := f.engine.Post(context.Background(), f.salesEvent(108, "118.00", "100.00", "9.00", "9.00"), f.accounts, "sales_invoice:108")
	require.ErrorIs(t, err, ledgerdomain.ErrPersistenceFailure)

	assert.Zero(t, f.count(t, &ledgerdomain.PostingTransaction{}))
	assert.Zero(t, f.count(t, &auditdomain.AuditLog{}))
}

func TestPost_CancelledCommitHasUnknownOutcome(t *testing.T) {
	f := setupLedger(t)
	resolver := ledgerdomain.StaticAccountResolver{
		ledgerdomain.AccountRoleAccountsReceivable: 1,
		ledgerdomain.AccountRoleSalesRevenue:       2,
		ledgerdomain.AccountRoleCGSTPayable:        3,
		ledgerdomain.AccountRoleSGSTPayable:        4,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Post(ctx, f.salesEvent(109, "118.00", "100.00", "9.00", "9.00"), resolver, "sales_invoice:109")
	require.ErrorIs(t, err, ledgerdomain.ErrCommitOutcomeUnknown)

	_, err = f.engine.FindByIdempotencyKey(context.Background(), f.orgID, "sales_invoice:109")
	assert.ErrorIs(t, err, ledgerdomain.ErrTransactionNotFound)
}

func TestReverse_NetsToZero(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	original, err := f.engine.Post(ctx, f.salesEvent(110, "1180.00", "1000.00", "90.00", "90.00"), f.accounts, "sales_invoice:110")
	require.NoError(t, err)

	reversal, err := f.engine.Reverse(ctx, original.ID)
	require.NoError(t, err)
	require.True(t, reversal.IsReversal())
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, ledgerdomain.SourceTypeReversal, reversal.SourceType)
	require.Len(t, reversal.Entries, len(original.Entries))
	for i, entry := range reversal.Entries {
		assert.Equal(t, original.Entries[i].AccountID, entry.AccountID)
		assert.Equal(t, original.Entries[i].Amount, entry.Amount)
		assert.Equal(t, original.Entries[i].Direction.Opposite(), entry.Direction)
	}

	tb, err := f.tb.GetTrialBalance(ctx, f.orgID, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "2360.00", tb.TotalDebits.String())
	assert.Equal(t, "2360.00", tb.TotalCredits.String())
	for _, account := range tb.Accounts {
		assert.True(t, account.Net().IsZero(), "account %s should net to zero", account.Code)
	}

	// the original is untouched
	reloaded, err := f.engine.GetTransaction(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Entries[0].Direction, reloaded.Entries[0].Direction)
	assert.Equal(t, int64(2), f.count(t, &auditdomain.AuditLog{}))
}

func TestReverse_IsIdempotentAndFinal(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	original, err := f.engine.Post(ctx, f.salesEvent(111, "1180.00", "1000.00", "90.00", "90.00"), f.accounts, "sales_invoice:111")
	require.NoError(t, err)

	first, err := f.engine.Reverse(ctx, original.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.engine.Reverse(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), f.count(t, &ledgerdomain.PostingTransaction{}))

	_, err = f.engine.Reverse(ctx, first.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrAlreadyReversal)

	_, err = f.engine.Reverse(ctx, 424242)
	assert.ErrorIs(t, err, ledgerdomain.ErrTransactionNotFound)
}

func TestGetTrialBalance_RespectsAsOf(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	early := f.salesEvent(112, "118.00", "100.00", "9.00", "9.00")
	early.OccurredAt = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	_, err := f.engine.Post(ctx, early, f.accounts, "sales_invoice:112")
	require.NoError(t, err)

	late := f.salesEvent(113, "236.00", "200.00", "18.00", "18.00")
	late.OccurredAt = time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	_, err = f.engine.Post(ctx, late, f.accounts, "sales_invoice:113")
	require.NoError(t, err)

	tb, err := f.tb.GetTrialBalance(ctx, f.orgID, time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "118.00", tb.TotalDebits.String())

	tb, err = f.tb.GetTrialBalance(ctx, f.orgID, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "354.00", tb.TotalDebits.String())

	empty, err := f.tb.GetTrialBalance(ctx, f.orgID, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, empty.Accounts)
	assert.True(t, empty.Balanced())

	orgs, err := f.tb.ListLedgerOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.orgID}, orgs)
}

func TestGetTrialBalance_ReportsIntegrityViolation(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	txn, err := f.engine.Post(ctx, f.salesEvent(114, "118.00", "100.00", "9.00", "9.00"), f.accounts, "sales_invoice:114")
	require.NoError(t, err)

	// simulate an out-of-band write that bypassed the engine
	require.NoError(t, f.db.Create(&ledgerdomain.LedgerEntry{
		ID:            999,
		TransactionID: txn.ID,
		OrgID:         f.orgID,
		AccountID:     txn.Entries[0].AccountID,
		AccountRole:   txn.Entries[0].AccountRole,
		Direction:     ledgerdomain.LedgerEntryDirectionDebit,
		Amount:        1,
		LineNo:        99,
		CreatedAt:     f.clock.Now(),
	}).Error)

	tb, err := f.tb.GetTrialBalance(ctx, f.orgID, f.clock.Now())
	require.Error(t, err)
	assert.Nil(t, tb)
	assert.ErrorIs(t, err, ledgerdomain.ErrDataIntegrityViolation)

	var violation *ledgerdomain.IntegrityViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "118.01", violation.TotalDebits.String())
	assert.Equal(t, "118.00", violation.TotalCredits.String())
	assert.Equal(t, []snowflake.ID{txn.ID}, violation.UnbalancedTransactions)
}

func TestGetTrialBalance_RejectsMissingOrganization(t *testing.T) {
	f := setupLedger(t)
	_, err := f.tb.GetTrialBalance(context.Background(), 0, time.Now())
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidOrganization)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "committed", outcomeFor(&ledgerdomain.PostingTransaction{}, nil))
	assert.Equal(t, "replayed", outcomeFor(&ledgerdomain.PostingTransaction{Replayed: true}, nil))
	assert.Equal(t, "imbalance", outcomeFor(nil, fmt.Errorf("%w: x", ledgerdomain.ErrLedgerImbalance)))
	assert.Equal(t, "invalid_input", outcomeFor(nil, ledgerdomain.ErrInvalidCurrency))
	assert.Equal(t, "persistence_failure", outcomeFor(nil, fmt.Errorf("%w: x", ledgerdomain.ErrPersistenceFailure)))
}
