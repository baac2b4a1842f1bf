package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/clock"
	"github.com/smallbiznis/bizbooks/internal/config"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	obscontext "github.com/smallbiznis/bizbooks/internal/observability/context"
	"github.com/smallbiznis/bizbooks/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizbooks/internal/observability/metrics"
	"github.com/smallbiznis/bizbooks/pkg/db"
	"github.com/smallbiznis/bizbooks/pkg/rls"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	reversalKeyPrefix = "reversal:"
	maxCommitAttempts = 3
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config       `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Engine posts balanced transactions. Each posting is one database
// transaction; nothing is visible until every entry is written.
type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
	isolation  string
}

func NewService(p Params) ledgerdomain.Service {
	return NewEngine(p)
}

func NewEngine(p Params) *Engine {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("ledger.engine"),
		genID:      p.GenID,
		clock:      clk,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("bizbooks/ledger"),
		isolation:  p.Cfg.Ledger.PostingIsolation,
	}
}

var _ ledgerdomain.Service = (*Engine)(nil)

func (e *Engine) Post(ctx context.Context, event ledgerdomain.PostingEvent, resolver ledgerdomain.AccountResolver, idempotencyKey string) (*ledgerdomain.PostingTransaction, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "ledger.post", trace.WithAttributes(
		attribute.String("source_type", string(event.SourceType)),
	))
	defer span.End()

	txn, err := e.post(ctx, event, resolver, idempotencyKey)
	e.finish(ctx, span, string(event.SourceType), txn, err, start)
	return txn, err
}

func (e *Engine) post(ctx context.Context, event ledgerdomain.PostingEvent, resolver ledgerdomain.AccountResolver, idempotencyKey string) (*ledgerdomain.PostingTransaction, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, ledgerdomain.ErrInvalidIdempotencyKey
	}
	ctx = obscontext.WithIdempotencyKey(ctx, idempotencyKey)

	if err := event.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: no account resolver", ledgerdomain.ErrUnresolvedAccount)
	}

	entries, err := e.buildEntries(ctx, event, resolver)
	if err != nil {
		return nil, err
	}
	if err := ledgerdomain.ValidateBalanced(entries); err != nil {
		return nil, err
	}

	header := ledgerdomain.PostingTransaction{
		OrgID:          event.OrgID,
		IdempotencyKey: idempotencyKey,
		SourceType:     ledgerdomain.SourceType(strings.TrimSpace(string(event.SourceType))),
		SourceID:       event.SourceID,
		Currency:       strings.ToUpper(strings.TrimSpace(event.Currency)),
		Memo:           strings.TrimSpace(event.Memo),
		OccurredAt:     event.OccurredAt.UTC(),
	}
	return e.commit(ctx, header, entries)
}

// buildEntries resolves each non-zero leg to an account and converts it to paise.
func (e *Engine) buildEntries(ctx context.Context, event ledgerdomain.PostingEvent, resolver ledgerdomain.AccountResolver) ([]ledgerdomain.LedgerEntry, error) {
	resolved := make(map[ledgerdomain.AccountRole]snowflake.ID, len(event.Legs))
	entries := make([]ledgerdomain.LedgerEntry, 0, len(event.Legs))
	for _, leg := range event.Legs {
		if leg.Amount.IsZero() {
			continue
		}
		role := ledgerdomain.AccountRole(strings.TrimSpace(string(leg.Role)))
		accountID, ok := resolved[role]
		if !ok {
			id, err := resolver.ResolveAccount(ctx, event.OrgID, role)
			switch {
			case err != nil && errors.Is(err, ledgerdomain.ErrUnresolvedAccount):
				return nil, err
			case err != nil:
				return nil, fmt.Errorf("%w: resolve %s: %v", ledgerdomain.ErrPersistenceFailure, role, err)
			case id == 0:
				return nil, fmt.Errorf("%w: %s", ledgerdomain.ErrUnresolvedAccount, role)
			}
			accountID = id
			resolved[role] = id
		}
		direction, err := ledgerdomain.NormalizeDirection(leg.Direction)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledgerdomain.LedgerEntry{
			OrgID:       event.OrgID,
			AccountID:   accountID,
			AccountRole: role,
			Direction:   direction,
			Amount:      leg.Amount.MinorUnits(),
			LineNo:      len(entries) + 1,
			Memo:        strings.TrimSpace(leg.Memo),
		})
	}
	return entries, nil
}

func (e *Engine) Reverse(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.PostingTransaction, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "ledger.reverse")
	defer span.End()

	txn, err := e.reverse(ctx, transactionID)
	e.finish(ctx, span, string(ledgerdomain.SourceTypeReversal), txn, err, start)
	return txn, err
}

func (e *Engine) reverse(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.PostingTransaction, error) {
	if transactionID == 0 {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	original, err := e.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.IsReversal() {
		return nil, ledgerdomain.ErrAlreadyReversal
	}

	key := reversalKeyPrefix + original.ID.String()
	ctx = obscontext.WithIdempotencyKey(ctx, key)

	entries := make([]ledgerdomain.LedgerEntry, 0, len(original.Entries))
	for _, entry := range original.Entries {
		entries = append(entries, ledgerdomain.LedgerEntry{
			OrgID:       original.OrgID,
			AccountID:   entry.AccountID,
			AccountRole: entry.AccountRole,
			Direction:   entry.Direction.Opposite(),
			Amount:      entry.Amount,
			LineNo:      entry.LineNo,
			Memo:        entry.Memo,
		})
	}
	if err := ledgerdomain.ValidateBalanced(entries); err != nil {
		return nil, err
	}

	reversalOf := original.ID
	header := ledgerdomain.PostingTransaction{
		OrgID:          original.OrgID,
		IdempotencyKey: key,
		SourceType:     ledgerdomain.SourceTypeReversal,
		SourceID:       original.ID,
		ReversalOf:     &reversalOf,
		Currency:       original.Currency,
		Memo:           "reversal of " + original.ID.String(),
		OccurredAt:     e.clock.Now().UTC(),
	}
	return e.commit(ctx, header, entries)
}

// commit writes header, entries and the audit row in one transaction. A
// committed transaction with the same idempotency key and request hash is
// returned as a replay. Serialization failures and deadlocks re-run the
// whole transaction.
func (e *Engine) commit(ctx context.Context, header ledgerdomain.PostingTransaction, entries []ledgerdomain.LedgerEntry) (*ledgerdomain.PostingTransaction, error) {
	header.RequestHash = requestHash(header, entries)

	txOpts, err := db.TxOptions(e.isolation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}

	var result *ledgerdomain.PostingTransaction
	fn := func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, int64(header.OrgID)); err != nil {
			return err
		}

		existing, err := findHeaderByKey(ctx, tx, header.OrgID, header.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = replay(ctx, tx, existing, header.RequestHash)
			return err
		}

		now := e.clock.Now().UTC()
		header.ID = e.genID.Generate()
		header.CreatedAt = now
		res := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_transactions (
				id, org_id, idempotency_key, request_hash, source_type, source_id,
				reversal_of, currency, memo, occurred_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (org_id, idempotency_key) DO NOTHING`,
			header.ID,
			header.OrgID,
			header.IdempotencyKey,
			header.RequestHash,
			header.SourceType,
			header.SourceID,
			header.ReversalOf,
			header.Currency,
			header.Memo,
			header.OccurredAt,
			header.CreatedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race to a concurrent post with the same key
			existing, err := findHeaderByKey(ctx, tx, header.OrgID, header.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("idempotency key %q conflicted but no transaction is visible", header.IdempotencyKey)
			}
			result, err = replay(ctx, tx, existing, header.RequestHash)
			return err
		}

		for i := range entries {
			entries[i].ID = e.genID.Generate()
			entries[i].TransactionID = header.ID
			entries[i].OrgID = header.OrgID
			entries[i].CreatedAt = now
		}
		if err := tx.WithContext(ctx).Create(&entries).Error; err != nil {
			return err
		}

		if e.auditSvc != nil {
			if err := e.auditSvc.AuditLogTx(ctx, tx, auditRecord(header, entries)); err != nil {
				return err
			}
		}

		header.Entries = entries
		result = &header
		return nil
	}

	for attempt := 1; ; attempt++ {
		result = nil
		if txOpts != nil {
			err = e.db.WithContext(ctx).Transaction(fn, txOpts)
		} else {
			err = e.db.WithContext(ctx).Transaction(fn)
		}
		if err == nil || !db.IsRetryableTxErr(err) || attempt == maxCommitAttempts {
			break
		}
		logger.WithContext(ctx, e.log).Warn("posting transaction aborted, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		return nil, classifyCommitError(ctx, err)
	}
	return result, nil
}

func (e *Engine) FindByIdempotencyKey(ctx context.Context, orgID snowflake.ID, idempotencyKey string) (*ledgerdomain.PostingTransaction, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, ledgerdomain.ErrInvalidIdempotencyKey
	}

	header, err := findHeaderByKey(ctx, e.db, orgID, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	if header == nil {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	if err := loadEntries(ctx, e.db, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	return header, nil
}

func (e *Engine) GetTransaction(ctx context.Context, transactionID snowflake.ID) (*ledgerdomain.PostingTransaction, error) {
	var header ledgerdomain.PostingTransaction
	err := e.db.WithContext(ctx).Raw(
		`SELECT id, org_id, idempotency_key, request_hash, source_type, source_id,
			reversal_of, currency, memo, occurred_at, created_at
		 FROM ledger_transactions
		 WHERE id = ?
		 LIMIT 1`,
		transactionID,
	).Scan(&header).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	if header.ID == 0 {
		return nil, ledgerdomain.ErrTransactionNotFound
	}
	if err := loadEntries(ctx, e.db, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
	return &header, nil
}

func (e *Engine) finish(ctx context.Context, span trace.Span, sourceType string, txn *ledgerdomain.PostingTransaction, err error, start time.Time) {
	log := logger.WithContext(ctx, e.log)
	outcome := outcomeFor(txn, err)
	entries := 0
	if txn != nil {
		entries = len(txn.Entries)
	}
	e.obsMetrics.RecordLedgerTransaction(ctx, sourceType, outcome, entries, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))

	switch {
	case err == nil && txn.Replayed:
		log.Info("ledger transaction replayed",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("source_type", sourceType),
		)
	case err == nil:
		log.Info("ledger transaction posted",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("source_type", sourceType),
			zap.Int("entries", entries),
		)
	case errors.Is(err, ledgerdomain.ErrPersistenceFailure), errors.Is(err, ledgerdomain.ErrCommitOutcomeUnknown):
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Error("ledger posting failed", zap.String("source_type", sourceType), zap.Error(err))
	default:
		span.SetStatus(codes.Error, outcome)
		log.Warn("ledger posting rejected", zap.String("source_type", sourceType), zap.Error(err))
	}
}

func findHeaderByKey(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, key string) (*ledgerdomain.PostingTransaction, error) {
	var header ledgerdomain.PostingTransaction
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, idempotency_key, request_hash, source_type, source_id,
			reversal_of, currency, memo, occurred_at, created_at
		 FROM ledger_transactions
		 WHERE org_id = ? AND idempotency_key = ?
		 LIMIT 1`,
		orgID,
		key,
	).Scan(&header).Error
	if err != nil {
		return nil, err
	}
	if header.ID == 0 {
		return nil, nil
	}
	return &header, nil
}

func loadEntries(ctx context.Context, tx *gorm.DB, header *ledgerdomain.PostingTransaction) error {
	var entries []ledgerdomain.LedgerEntry
	if err := tx.WithContext(ctx).
		Where("transaction_id = ?", header.ID).
		Order("line_no ASC").
		Find(&entries).Error; err != nil {
		return err
	}
	header.Entries = entries
	return nil
}

func replay(ctx context.Context, tx *gorm.DB, existing *ledgerdomain.PostingTransaction, hash string) (*ledgerdomain.PostingTransaction, error) {
	if existing.RequestHash != hash {
		return nil, fmt.Errorf("%w: key %q is bound to transaction %s",
			ledgerdomain.ErrIdempotencyMismatch, existing.IdempotencyKey, existing.ID.String())
	}
	if err := loadEntries(ctx, tx, existing); err != nil {
		return nil, err
	}
	existing.Replayed = true
	return existing, nil
}

// requestHash fingerprints what a posting does to the ledger. Memos and
// timestamps are excluded so a retried event with a fresh clock still replays.
func requestHash(header ledgerdomain.PostingTransaction, entries []ledgerdomain.LedgerEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", header.OrgID.String(), header.SourceType, header.SourceID.String(), header.Currency)
	if header.ReversalOf != nil {
		fmt.Fprintf(h, "|reversal_of=%s", header.ReversalOf.String())
	}
	for _, entry := range entries {
		fmt.Fprintf(h, "|%s:%s:%s:%d", entry.AccountID.String(), entry.AccountRole, entry.Direction, entry.Amount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func classifyCommitError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ledgerdomain.ErrIdempotencyMismatch):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ledgerdomain.ErrCommitOutcomeUnknown, err)
	default:
		return fmt.Errorf("%w: %v", ledgerdomain.ErrPersistenceFailure, err)
	}
}

func outcomeFor(txn *ledgerdomain.PostingTransaction, err error) string {
	switch {
	case err == nil && txn != nil && txn.Replayed:
		return obsmetrics.OutcomeReplayed
	case err == nil:
		return obsmetrics.OutcomeCommitted
	case errors.Is(err, ledgerdomain.ErrLedgerImbalance):
		return obsmetrics.OutcomeImbalance
	case errors.Is(err, ledgerdomain.ErrUnresolvedAccount):
		return obsmetrics.OutcomeUnresolvedAccount
	case errors.Is(err, ledgerdomain.ErrIdempotencyMismatch):
		return obsmetrics.OutcomeIdempotencyClash
	case errors.Is(err, ledgerdomain.ErrInvalidInput):
		return obsmetrics.OutcomeInvalidInput
	case errors.Is(err, ledgerdomain.ErrPersistenceFailure):
		return obsmetrics.OutcomePersistenceFailure
	default:
		return obsmetrics.OutcomeUnknown
	}
}

func auditRecord(header ledgerdomain.PostingTransaction, entries []ledgerdomain.LedgerEntry) auditdomain.Record {
	orgID := header.OrgID
	targetID := header.ID.String()
	debits, credits := ledgerdomain.Totals(entries)
	action := auditdomain.ActionLedgerPosted
	metadata := map[string]any{
		"source_type":   string(header.SourceType),
		"source_id":     header.SourceID.String(),
		"entries":       len(entries),
		"total_debits":  debits,
		"total_credits": credits,
	}
	if header.IsReversal() {
		action = auditdomain.ActionLedgerReversed
		metadata["reversal_of"] = header.ReversalOf.String()
	}
	return auditdomain.Record{
		OrgID:      &orgID,
		Action:     action,
		TargetType: "ledger_transaction",
		TargetID:   &targetID,
		Metadata:   metadata,
	}
}
