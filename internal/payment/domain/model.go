package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizbooks/internal/money"
	"gorm.io/gorm"
)

// Direction tells whether money leaves or enters the organization's bank.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPosted  Status = "POSTED"
)

// Payment is a settled vendor payment or customer receipt together with the
// TDS withheld on it. Amounts are in paise.
type Payment struct {
	ID                  snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID               snowflake.ID    `json:"org_id" gorm:"not null;index;uniqueIndex:ux_payments_org_key,priority:1"`
	PartyID             snowflake.ID    `json:"party_id" gorm:"not null;index"`
	Direction           Direction       `json:"direction" gorm:"type:text;not null"`
	Nature              string          `json:"nature,omitempty" gorm:"type:text"`
	Section             string          `json:"section,omitempty" gorm:"type:text"`
	TDSRate             decimal.Decimal `json:"tds_rate" gorm:"column:tds_rate;type:numeric;not null;default:0"`
	GrossAmount         int64           `json:"gross_amount" gorm:"not null"`
	TDSAmount           int64           `json:"tds_amount" gorm:"column:tds_amount;not null;default:0"`
	NetAmount           int64           `json:"net_amount" gorm:"not null"`
	Currency            string          `json:"currency" gorm:"type:text;not null"`
	Reference           string          `json:"reference,omitempty" gorm:"type:text"`
	IdempotencyKey      string          `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex:ux_payments_org_key,priority:2"`
	Status              Status          `json:"status" gorm:"type:text;not null"`
	LedgerTransactionID *snowflake.ID   `json:"ledger_transaction_id,omitempty" gorm:"index"`
	PaidAt              time.Time       `json:"paid_at" gorm:"not null"`
	PostedAt            *time.Time      `json:"posted_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Gross() money.Money { return money.FromMinor(p.GrossAmount) }
func (p Payment) TDS() money.Money   { return money.FromMinor(p.TDSAmount) }
func (p Payment) Net() money.Money   { return money.FromMinor(p.NetAmount) }

type Repository interface {
	// InsertPayment reports false when a payment with the same idempotency
	// key already exists for the organization.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*Payment, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	MarkPosted(ctx context.Context, db *gorm.DB, id, transactionID snowflake.ID, postedAt time.Time) error
	// DeletePending removes a payment whose posting was rejected so the key
	// can be retried with a corrected request.
	DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
