package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/clock"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/money"
	"github.com/smallbiznis/bizbooks/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizbooks/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/bizbooks/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/bizbooks/internal/payment/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	taxservice "github.com/smallbiznis/bizbooks/internal/tax/service"
	"github.com/smallbiznis/bizbooks/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	LedgerSvc  ledgerdomain.Service
	Accounts   ledgerdomain.AccountRepository
	TaxConfig  taxdomain.ConfigService
	Orgs       organizationdomain.Service
	Repo       paymentdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	ledgerSvc  ledgerdomain.Service
	accounts   ledgerdomain.AccountRepository
	taxConfig  taxdomain.ConfigService
	orgs       organizationdomain.Service
	repo       paymentdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	clock      clock.Clock
	tracer     trace.Tracer
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		ledgerSvc:  p.LedgerSvc,
		accounts:   p.Accounts,
		taxConfig:  p.TaxConfig,
		orgs:       p.Orgs,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		clock:      clk,
		tracer:     otel.Tracer("bizbooks/payment"),
	}
}

func (s *Service) CalculateTDS(ctx context.Context, orgID snowflake.ID, gross money.Money, nature string) (*taxdomain.TDSResult, error) {
	if orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(nature) == "" {
		if gross.IsNegative() {
			return nil, fmt.Errorf("%w: gross payment must not be negative", taxdomain.ErrInvalidInput)
		}
		return &taxdomain.TDSResult{GrossPayment: gross, NetPayment: gross}, nil
	}

	cfg, err := s.taxConfig.GetConfiguration(ctx, orgID)
	if err != nil {
		s.obsMetrics.RecordTaxCalculation(ctx, "tds", taxservice.CalculationOutcome(err))
		return nil, err
	}
	result, err := taxservice.NewTDSCalculator(*cfg).CalculateTDS(gross, taxdomain.NormalizeNature(nature))
	s.obsMetrics.RecordTaxCalculation(ctx, "tds", taxservice.CalculationOutcome(err))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) Execute(ctx context.Context, req paymentdomain.ExecutePaymentRequest, idempotencyKey string) (*paymentdomain.ExecuteResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.execute")
	defer span.End()

	req.Direction = paymentdomain.Direction(strings.ToLower(strings.TrimSpace(string(req.Direction))))
	req.Nature = strings.TrimSpace(req.Nature)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Reference = strings.TrimSpace(req.Reference)
	req.Memo = strings.TrimSpace(req.Memo)
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidRequest, err)
	}
	if !req.Gross.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", paymentdomain.ErrInvalidRequest)
	}

	org, err := s.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	party, err := s.orgs.GetParty(ctx, req.OrgID, req.PartyID)
	if err != nil {
		return nil, err
	}
	if !directionMatchesParty(req.Direction, party.Kind) {
		return nil, fmt.Errorf("%w: %s payment to a %s", paymentdomain.ErrInvalidRequest, req.Direction, party.Kind)
	}

	tds, err := s.CalculateTDS(ctx, req.OrgID, req.Gross, req.Nature)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = org.Currency
	}
	now := s.clock.Now().UTC()
	record := paymentdomain.Payment{
		ID:             s.genID.Generate(),
		OrgID:          req.OrgID,
		PartyID:        req.PartyID,
		Direction:      req.Direction,
		Nature:         string(tds.Nature),
		Section:        tds.Section,
		TDSRate:        tds.Rate,
		GrossAmount:    tds.GrossPayment.MinorUnits(),
		TDSAmount:      tds.TDSAmount.MinorUnits(),
		NetAmount:      tds.NetPayment.MinorUnits(),
		Currency:       currency,
		Reference:      req.Reference,
		IdempotencyKey: idempotencyKey,
		Status:         paymentdomain.StatusPending,
		PaidAt:         req.PaidAt.UTC(),
		CreatedAt:      now,
	}

	inserted, err := s.repo.InsertPayment(ctx, s.db, &record)
	if err != nil {
		return nil, err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindByKey(ctx, s.db, req.OrgID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if stored == nil || !sameRequest(*stored, record) {
			return nil, fmt.Errorf("%w: key %q is bound to another payment", ledgerdomain.ErrIdempotencyMismatch, idempotencyKey)
		}
		if stored.Status == paymentdomain.StatusPosted && stored.LedgerTransactionID != nil {
			txn, err := s.ledgerSvc.GetTransaction(ctx, *stored.LedgerTransactionID)
			if err != nil {
				return nil, err
			}
			txn.Replayed = true
			return &paymentdomain.ExecuteResult{Payment: *stored, TDS: storedTDS(*stored), Transaction: txn, Replayed: true}, nil
		}
	}

	txn, err := s.postPayment(ctx, *stored, req.Memo)
	if err != nil {
		if !errors.Is(err, ledgerdomain.ErrCommitOutcomeUnknown) {
			if derr := s.repo.DeletePending(ctx, s.db, stored.ID); derr != nil {
				s.log.Warn("failed to discard pending payment", zap.String("payment_id", stored.ID.String()), zap.Error(derr))
			}
		}
		return nil, err
	}

	postedAt := s.clock.Now().UTC()
	if err := s.repo.MarkPosted(ctx, s.db, stored.ID, txn.ID, postedAt); err != nil {
		return nil, err
	}
	transactionID := txn.ID
	stored.Status = paymentdomain.StatusPosted
	stored.LedgerTransactionID = &transactionID
	stored.PostedAt = &postedAt

	s.audit(ctx, *stored, txn.ID)
	logger.WithContext(ctx, s.log).Info("payment executed",
		zap.String("payment_id", stored.ID.String()),
		zap.String("direction", string(stored.Direction)),
		zap.String("gross", stored.Gross().String()),
		zap.String("tds", stored.TDS().String()),
		zap.String("transaction_id", txn.ID.String()),
	)

	return &paymentdomain.ExecuteResult{
		Payment:     *stored,
		TDS:         storedTDS(*stored),
		Transaction: txn,
		Replayed:    txn.Replayed,
	}, nil
}

func (s *Service) postPayment(ctx context.Context, payment paymentdomain.Payment, memo string) (*ledgerdomain.PostingTransaction, error) {
	legs, sourceType, err := paymentdomain.PaymentPosting(payment.Direction, storedTDS(payment))
	if err != nil {
		return nil, err
	}
	if memo == "" {
		memo = strings.ReplaceAll(string(sourceType), "_", " ")
		if payment.Reference != "" {
			memo += " " + payment.Reference
		}
	}
	event := ledgerdomain.PostingEvent{
		OrgID:      payment.OrgID,
		SourceType: sourceType,
		SourceID:   payment.ID,
		Currency:   payment.Currency,
		OccurredAt: payment.PaidAt,
		Memo:       memo,
		Legs:       legs,
	}
	return s.ledgerSvc.Post(ctx, event, s.accounts, payment.IdempotencyKey)
}

func (s *Service) GetByID(ctx context.Context, orgID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	if orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	if paymentID == 0 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return item, nil
}

func (s *Service) audit(ctx context.Context, payment paymentdomain.Payment, transactionID snowflake.ID) {
	if s.auditSvc == nil {
		return
	}
	orgID := payment.OrgID
	targetID := payment.ID.String()
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Record{
		OrgID:      &orgID,
		Action:     auditdomain.ActionPaymentExecuted,
		TargetType: "payment",
		TargetID:   &targetID,
		Metadata: map[string]any{
			"direction":             string(payment.Direction),
			"nature":                payment.Nature,
			"gross_amount":          payment.GrossAmount,
			"tds_amount":            payment.TDSAmount,
			"net_amount":            payment.NetAmount,
			"ledger_transaction_id": transactionID.String(),
		},
	}); err != nil {
		s.log.Warn("failed to write payment audit log", zap.Error(err))
	}
}

func directionMatchesParty(direction paymentdomain.Direction, kind organizationdomain.PartyKind) bool {
	switch direction {
	case paymentdomain.DirectionOutgoing:
		return kind == organizationdomain.PartyKindVendor
	case paymentdomain.DirectionIncoming:
		return kind == organizationdomain.PartyKindCustomer
	}
	return false
}

func sameRequest(a, b paymentdomain.Payment) bool {
	return a.OrgID == b.OrgID &&
		a.PartyID == b.PartyID &&
		a.Direction == b.Direction &&
		a.Nature == b.Nature &&
		a.GrossAmount == b.GrossAmount &&
		a.Currency == b.Currency
}

func storedTDS(p paymentdomain.Payment) taxdomain.TDSResult {
	return taxdomain.TDSResult{
		Nature:       taxdomain.Nature(p.Nature),
		Section:      p.Section,
		Rate:         p.TDSRate,
		GrossPayment: p.Gross(),
		TDSAmount:    p.TDS(),
		NetPayment:   p.Net(),
	}
}
