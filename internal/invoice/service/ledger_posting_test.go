package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/bizbooks/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLedgerSvc struct {
	mock.Mock
}

func (m *mockLedgerSvc) Post(ctx context.Context, event ledgerdomain.PostingEvent, resolver ledgerdomain.AccountResolver, key string) (*ledgerdomain.PostingTransaction, error) {
	args := m.Called(ctx, event, resolver, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.PostingTransaction), args.Error(1)
}

func (m *mockLedgerSvc) Reverse(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.PostingTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.PostingTransaction), args.Error(1)
}

func (m *mockLedgerSvc) FindByIdempotencyKey(ctx context.Context, orgID snowflake.ID, key string) (*ledgerdomain.PostingTransaction, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.PostingTransaction), args.Error(1)
}

func (m *mockLedgerSvc) GetTransaction(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.PostingTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.PostingTransaction), args.Error(1)
}

func TestPostInvoiceToLedger_BuildsSalesEvent(t *testing.T) {
	ledger := new(mockLedgerSvc)
	svc := &Service{log: zap.NewNop(), ledger: ledger}

	issued := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	invoice := &invoicedomain.Invoice{
		ID:            101,
		OrgID:         7,
		Kind:          invoicedomain.InvoiceKindSales,
		InvoiceNumber: "INV/25-26/00001",
		Currency:      "INR",
		IssuedAt:      issued,
	}
	gst := taxdomain.InvoiceGST{
		TaxableValue: money.MustParse("100.00"),
		TaxAmount:    money.MustParse("18.00"),
		CGST:         money.MustParse("9.00"),
		SGST:         money.MustParse("9.00"),
		Total:        money.MustParse("118.00"),
	}

	ledger.On("Post", mock.Anything, mock.MatchedBy(func(event ledgerdomain.PostingEvent) bool {
		return event.OrgID == 7 &&
			event.SourceType == ledgerdomain.SourceTypeSalesInvoice &&
			event.SourceID == 101 &&
			event.Currency == "INR" &&
			event.OccurredAt.Equal(issued) &&
			event.Memo == "sales invoice INV/25-26/00001" &&
			len(event.Legs) == 5
	}), mock.Anything, "finalize-101").
		Return(&ledgerdomain.PostingTransaction{ID: 555}, nil).Once()

	txn, err := svc.postInvoiceToLedger(context.Background(), invoice, gst, "", "finalize-101")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(555), txn.ID)
	ledger.AssertExpectations(t)
}

func TestPostInvoiceToLedger_RejectsUnknownKind(t *testing.T) {
	ledger := new(mockLedgerSvc)
	svc := &Service{log: zap.NewNop(), ledger: ledger}

	_, err := svc.postInvoiceToLedger(context.Background(), &invoicedomain.Invoice{Kind: "proforma"}, taxdomain.InvoiceGST{}, "", "k")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidKind)
	ledger.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
