package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

type Service interface {
	// CalculateTDS returns the withholding for a payment without recording it.
	// An empty nature means the payment is not subject to TDS.
	CalculateTDS(ctx context.Context, orgID snowflake.ID, gross money.Money, nature string) (*taxdomain.TDSResult, error)
	// Execute withholds TDS, records the payment and posts it to the ledger.
	Execute(ctx context.Context, req ExecutePaymentRequest, idempotencyKey string) (*ExecuteResult, error)
	GetByID(ctx context.Context, orgID, paymentID snowflake.ID) (*Payment, error)
}

type ExecutePaymentRequest struct {
	OrgID     snowflake.ID `validate:"required"`
	PartyID   snowflake.ID `validate:"required"`
	Direction Direction    `validate:"required,oneof=outgoing incoming"`
	Nature    string       `validate:"omitempty,max=64"`
	Gross     money.Money
	Currency  string    `validate:"omitempty,len=3,alpha"`
	Reference string    `validate:"omitempty,max=64"`
	PaidAt    time.Time `validate:"required"`
	Memo      string    `validate:"max=500"`
}

type ExecuteResult struct {
	Payment     Payment                          `json:"payment"`
	TDS         taxdomain.TDSResult              `json:"tds"`
	Transaction *ledgerdomain.PostingTransaction `json:"transaction"`
	Replayed    bool                             `json:"replayed"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidDirection    = errors.New("invalid_direction")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrPaymentNotFound     = errors.New("payment_not_found")
)
