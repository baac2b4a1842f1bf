package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/bizbooks/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/bizbooks/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type strandedRecord struct {
	ID    snowflake.ID
	OrgID snowflake.ID
}

// RecoverySweepJob settles invoice drafts and pending payments older than the
// recovery threshold. A record whose ledger transaction was committed is
// completed; one without a transaction is discarded so its key can be
// retried.
func (s *Scheduler) RecoverySweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecoverySweep, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.RecoveryThreshold)

	var jobErr error
	if err := s.recoverInvoiceDrafts(ctx, run, cutoff, now); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	if err := s.recoverPendingPayments(ctx, run, cutoff, now); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	return jobErr
}

func (s *Scheduler) recoverInvoiceDrafts(ctx context.Context, run *jobRun, cutoff, now time.Time) error {
	var drafts []strandedRecord
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id
		 FROM invoices
		 WHERE status = ? AND created_at <= ?
		 ORDER BY id
		 LIMIT ?`,
		invoicedomain.InvoiceStatusDraft,
		cutoff,
		s.cfg.BatchSize,
	).Scan(&drafts).Error; err != nil {
		return err
	}

	var jobErr error
	for _, draft := range drafts {
		txnID, err := s.findPostedTransaction(ctx, draft,
			ledgerdomain.SourceTypeSalesInvoice,
			ledgerdomain.SourceTypePurchaseInvoice,
		)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logJobError(ctx, run, "scheduler.recovery.failed", draft.OrgID, err, zap.String("invoice_id", idString(draft.ID)))
			continue
		}

		if txnID != 0 {
			err = s.db.WithContext(ctx).Exec(
				`UPDATE invoices
				 SET status = ?, ledger_transaction_id = ?, finalized_at = ?, updated_at = ?
				 WHERE id = ? AND status = ?`,
				invoicedomain.InvoiceStatusFinalized,
				txnID,
				now,
				now,
				draft.ID,
				invoicedomain.InvoiceStatusDraft,
			).Error
		} else {
			err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Exec(`DELETE FROM invoice_tax_lines WHERE invoice_id = ?`, draft.ID).Error; err != nil {
					return err
				}
				if err := tx.Exec(`DELETE FROM invoice_items WHERE invoice_id = ?`, draft.ID).Error; err != nil {
					return err
				}
				return tx.Exec(`DELETE FROM invoices WHERE id = ? AND status = ?`, draft.ID, invoicedomain.InvoiceStatusDraft).Error
			})
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logJobError(ctx, run, "scheduler.recovery.failed", draft.OrgID, err, zap.String("invoice_id", idString(draft.ID)))
			continue
		}
		run.AddProcessed(1)
		s.logger(s.withOrg(ctx, draft.OrgID)).Info("scheduler.recovery.invoice",
			zap.String("invoice_id", idString(draft.ID)),
			zap.Bool("finalized", txnID != 0),
		)
	}
	return jobErr
}

func (s *Scheduler) recoverPendingPayments(ctx context.Context, run *jobRun, cutoff, now time.Time) error {
	var pending []strandedRecord
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id
		 FROM payments
		 WHERE status = ? AND created_at <= ?
		 ORDER BY id
		 LIMIT ?`,
		paymentdomain.StatusPending,
		cutoff,
		s.cfg.BatchSize,
	).Scan(&pending).Error; err != nil {
		return err
	}

	var jobErr error
	for _, payment := range pending {
		txnID, err := s.findPostedTransaction(ctx, payment,
			ledgerdomain.SourceTypeVendorPayment,
			ledgerdomain.SourceTypeCustomerReceipt,
		)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logJobError(ctx, run, "scheduler.recovery.failed", payment.OrgID, err, zap.String("payment_id", idString(payment.ID)))
			continue
		}

		if txnID != 0 {
			err = s.db.WithContext(ctx).Exec(
				`UPDATE payments
				 SET status = ?, ledger_transaction_id = ?, posted_at = ?
				 WHERE id = ? AND status = ?`,
				paymentdomain.StatusPosted,
				txnID,
				now,
				payment.ID,
				paymentdomain.StatusPending,
			).Error
		} else {
			err = s.db.WithContext(ctx).Exec(
				`DELETE FROM payments WHERE id = ? AND status = ?`,
				payment.ID,
				paymentdomain.StatusPending,
			).Error
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logJobError(ctx, run, "scheduler.recovery.failed", payment.OrgID, err, zap.String("payment_id", idString(payment.ID)))
			continue
		}
		run.AddProcessed(1)
		s.logger(s.withOrg(ctx, payment.OrgID)).Info("scheduler.recovery.payment",
			zap.String("payment_id", idString(payment.ID)),
			zap.Bool("posted", txnID != 0),
		)
	}
	return jobErr
}

func (s *Scheduler) findPostedTransaction(ctx context.Context, record strandedRecord, sourceTypes ...ledgerdomain.SourceType) (snowflake.ID, error) {
	var id snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id
		 FROM ledger_transactions
		 WHERE org_id = ? AND source_id = ? AND source_type IN ? AND reversal_of IS NULL
		 ORDER BY id
		 LIMIT 1`,
		record.OrgID,
		record.ID,
		sourceTypes,
	).Scan(&id).Error
	return id, err
}
