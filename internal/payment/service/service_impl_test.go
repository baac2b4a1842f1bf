package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	auditrepository "github.com/smallbiznis/bizbooks/internal/audit/repository"
	auditservice "github.com/smallbiznis/bizbooks/internal/audit/service"
	"github.com/smallbiznis/bizbooks/internal/clock"
	"github.com/smallbiznis/bizbooks/internal/config"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/bizbooks/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/bizbooks/internal/ledger/service"
	"github.com/smallbiznis/bizbooks/internal/money"
	organizationdomain "github.com/smallbiznis/bizbooks/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/bizbooks/internal/organization/repository"
	organizationservice "github.com/smallbiznis/bizbooks/internal/organization/service"
	paymentdomain "github.com/smallbiznis/bizbooks/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/bizbooks/internal/payment/repository"
	paymentservice "github.com/smallbiznis/bizbooks/internal/payment/service"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	taxrepository "github.com/smallbiznis/bizbooks/internal/tax/repository"
	taxservice "github.com/smallbiznis/bizbooks/internal/tax/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type paymentFixture struct {
	db       *gorm.DB
	svc      paymentdomain.Service
	tb       ledgerdomain.TrialBalanceService
	clock    *clock.FakeClock
	org      *organizationdomain.Organization
	customer *organizationdomain.Party
	vendor   *organizationdomain.Party
}

func setupPayment(t *testing.T) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Party{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.PostingTransaction{},
		&ledgerdomain.LedgerEntry{},
		&taxdomain.TaxConfigurationRecord{},
		&taxdomain.GSTSlabRecord{},
		&taxdomain.TDSRuleRecord{},
		&auditdomain.AuditLog{},
		&paymentdomain.Payment{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	defaults, err := config.NewStaticTaxDefaultsHolder(config.DefaultTaxDefaults())
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Clock: clk})
	accounts := ledgerrepository.NewAccountRepository(ledgerrepository.Params{DB: db, GenID: node})
	taxConfig := taxservice.NewConfigService(taxservice.Params{
		Log:      log,
		GenID:    node,
		Repo:     taxrepository.NewRepository(db),
		Defaults: defaults,
	})
	orgs := organizationservice.NewService(organizationservice.Params{
		Log:       log,
		GenID:     node,
		Repo:      organizationrepository.NewRepository(db),
		Accounts:  accounts,
		TaxConfig: taxConfig,
		Clock:     clk,
	})
	engine := ledgerservice.NewEngine(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, AuditSvc: audit})

	ctx := context.Background()
	org, err := orgs.Register(ctx, organizationdomain.RegisterOrganizationRequest{Name: "Acme Traders", GSTIN: "27AAPFU0939F1Z5"})
	require.NoError(t, err)
	customer, err := orgs.CreateParty(ctx, org.ID, organizationdomain.CreatePartyRequest{Kind: organizationdomain.PartyKindCustomer, Name: "Pune Retail", StateCode: "27"})
	require.NoError(t, err)
	vendor, err := orgs.CreateParty(ctx, org.ID, organizationdomain.CreatePartyRequest{Kind: organizationdomain.PartyKindVendor, Name: "Kulkarni & Associates", StateCode: "27"})
	require.NoError(t, err)

	svc := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		LedgerSvc: engine,
		Accounts:  accounts,
		TaxConfig: taxConfig,
		Orgs:      orgs,
		Repo:      paymentrepository.Provide(),
		AuditSvc:  audit,
		Clock:     clk,
	})

	return &paymentFixture{
		db:       db,
		svc:      svc,
		tb:       ledgerservice.NewTrialBalanceService(ledgerservice.TrialBalanceParams{DB: db, Log: log}),
		clock:    clk,
		org:      org,
		customer: customer,
		vendor:   vendor,
	}
}

func (f *paymentFixture) vendorPayment(gross, nature string) paymentdomain.ExecutePaymentRequest {
	return paymentdomain.ExecutePaymentRequest{
		OrgID:     f.org.ID,
		PartyID:   f.vendor.ID,
		Direction: paymentdomain.DirectionOutgoing,
		Nature:    nature,
		Gross:     money.MustParse(gross),
		Reference: "NEFT-0091",
		PaidAt:    time.Date(2025, 6, 20, 9, 30, 0, 0, time.UTC),
	}
}

func entryAmount(txn *ledgerdomain.PostingTransaction, role ledgerdomain.AccountRole, direction ledgerdomain.LedgerEntryDirection) int64 {
	var out int64
	for _, entry := range txn.Entries {
		if entry.AccountRole == role && entry.Direction == direction {
			out += entry.Amount
		}
	}
	return out
}

func countPayments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).Count(&n).Error)
	return n
}

func TestExecute_VendorPaymentWithholdsTDS(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	result, err := f.svc.Execute(ctx, f.vendorPayment("50000.00", "professional"), "pay:1")
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	p := result.Payment
	assert.Equal(t, paymentdomain.StatusPosted, p.Status)
	assert.Equal(t, "PROFESSIONAL", p.Nature)
	assert.Equal(t, "194J", p.Section)
	assert.Equal(t, int64(5000000), p.GrossAmount)
	assert.Equal(t, int64(500000), p.TDSAmount)
	assert.Equal(t, int64(4500000), p.NetAmount)
	assert.Equal(t, "INR", p.Currency)
	require.NotNil(t, p.LedgerTransactionID)

	txn := result.Transaction
	assert.Equal(t, ledgerdomain.SourceTypeVendorPayment, txn.SourceType)
	assert.Equal(t, p.ID, txn.SourceID)
	assert.Equal(t, "vendor payment NEFT-0091", txn.Memo)
	require.Len(t, txn.Entries, 3)
	assert.Equal(t, int64(5000000), entryAmount(txn, ledgerdomain.AccountRoleAccountsPayable, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, int64(4500000), entryAmount(txn, ledgerdomain.AccountRoleBank, ledgerdomain.LedgerEntryDirectionCredit))
	assert.Equal(t, int64(500000), entryAmount(txn, ledgerdomain.AccountRoleTDSPayable, ledgerdomain.LedgerEntryDirectionCredit))

	tb, err := f.tb.GetTrialBalance(ctx, f.org.ID, f.clock.Now())
	require.NoError(t, err)
	assert.True(t, tb.Balanced())

	stored, err := f.svc.GetByID(ctx, f.org.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPosted, stored.Status)

	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("target_type = ?", "payment").Pluck("action", &actions).Error)
	assert.Equal(t, []string{auditdomain.ActionPaymentExecuted}, actions)
}

func TestExecute_BelowThresholdPostsTwoLegs(t *testing.T) {
	f := setupPayment(t)

	result, err := f.svc.Execute(context.Background(), f.vendorPayment("20000.00", "CONTRACTOR"), "pay:small")
	require.NoError(t, err)
	assert.Zero(t, result.Payment.TDSAmount)
	assert.False(t, result.TDS.Deducted())
	assert.Len(t, result.Transaction.Entries, 2)
}

func TestExecute_CustomerReceiptBooksTDSReceivable(t *testing.T) {
	f := setupPayment(t)

	req := paymentdomain.ExecutePaymentRequest{
		OrgID:     f.org.ID,
		PartyID:   f.customer.ID,
		Direction: paymentdomain.DirectionIncoming,
		Nature:    "PROFESSIONAL",
		Gross:     money.MustParse("100000.00"),
		PaidAt:    time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC),
	}
	result, err := f.svc.Execute(context.Background(), req, "rcpt:1")
	require.NoError(t, err)

	txn := result.Transaction
	assert.Equal(t, ledgerdomain.SourceTypeCustomerReceipt, txn.SourceType)
	assert.Equal(t, int64(9000000), entryAmount(txn, ledgerdomain.AccountRoleBank, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, int64(1000000), entryAmount(txn, ledgerdomain.AccountRoleTDSReceivable, ledgerdomain.LedgerEntryDirectionDebit))
	assert.Equal(t, int64(10000000), entryAmount(txn, ledgerdomain.AccountRoleAccountsReceivable, ledgerdomain.LedgerEntryDirectionCredit))
}

func TestExecute_ReplaysSameKey(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	first, err := f.svc.Execute(ctx, f.vendorPayment("50000.00", "PROFESSIONAL"), "pay:replay")
	require.NoError(t, err)

	again, err := f.svc.Execute(ctx, f.vendorPayment("50000.00", "PROFESSIONAL"), "pay:replay")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Payment.ID, again.Payment.ID)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	assert.Equal(t, "5000.00", again.TDS.TDSAmount.String())
	assert.Equal(t, int64(1), countPayments(t, f.db))

	_, err = f.svc.Execute(ctx, f.vendorPayment("50001.00", "PROFESSIONAL"), "pay:replay")
	assert.ErrorIs(t, err, ledgerdomain.ErrIdempotencyMismatch)
}

func TestExecute_RejectsBadRequests(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, f.vendorPayment("0.00", ""), "pay:zero")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.svc.Execute(ctx, f.vendorPayment("100.00", ""), "  ")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)

	wrongParty := f.vendorPayment("100.00", "")
	wrongParty.PartyID = f.customer.ID
	_, err = f.svc.Execute(ctx, wrongParty, "pay:wrong-party")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)

	_, err = f.svc.Execute(ctx, f.vendorPayment("50000.00", "SALARY"), "pay:salary")
	assert.ErrorIs(t, err, taxdomain.ErrUnconfiguredRate)

	assert.Zero(t, countPayments(t, f.db))
}

func TestCalculateTDS(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	atThreshold, err := f.svc.CalculateTDS(ctx, f.org.ID, money.MustParse("30000.00"), "CONTRACTOR")
	require.NoError(t, err)
	assert.Equal(t, "300.00", atThreshold.TDSAmount.String())
	assert.Equal(t, "29700.00", atThreshold.NetPayment.String())

	none, err := f.svc.CalculateTDS(ctx, f.org.ID, money.MustParse("999.00"), "")
	require.NoError(t, err)
	assert.True(t, none.TDSAmount.IsZero())
	assert.Equal(t, "999.00", none.NetPayment.String())

	_, err = f.svc.CalculateTDS(ctx, 0, money.MustParse("1.00"), "RENT")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidOrganization)

	_, err = f.svc.GetByID(ctx, f.org.ID, 42)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}
