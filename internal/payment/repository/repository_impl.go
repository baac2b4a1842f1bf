package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, org_id, party_id, direction, nature, section, tds_rate,
	gross_amount, tds_amount, net_amount, currency, reference, idempotency_key,
	status, ledger_transaction_id, paid_at, posted_at, created_at`

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, idempotency_key) DO NOTHING`,
		payment.ID,
		payment.OrgID,
		payment.PartyID,
		payment.Direction,
		payment.Nature,
		payment.Section,
		payment.TDSRate,
		payment.GrossAmount,
		payment.TDSAmount,
		payment.NetAmount,
		payment.Currency,
		payment.Reference,
		payment.IdempotencyKey,
		payment.Status,
		payment.LedgerTransactionID,
		payment.PaidAt,
		payment.PostedAt,
		payment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE org_id = ? AND idempotency_key = ?
		 LIMIT 1`,
		orgID,
		key,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`,
		orgID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkPosted(ctx context.Context, db *gorm.DB, id, transactionID snowflake.ID, postedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, ledger_transaction_id = ?, posted_at = ?
		 WHERE id = ?`,
		domain.StatusPosted,
		transactionID,
		postedAt,
		id,
	).Error
}

func (r *repo) DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payments WHERE id = ? AND status = ?`,
		id,
		domain.StatusPending,
	).Error
}
