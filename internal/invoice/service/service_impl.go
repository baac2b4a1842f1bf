package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/clock"
	invoicedomain "github.com/smallbiznis/bizbooks/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/bizbooks/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizbooks/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/bizbooks/internal/organization/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	taxservice "github.com/smallbiznis/bizbooks/internal/tax/service"
	"github.com/smallbiznis/bizbooks/internal/validation"
	dbutil "github.com/smallbiznis/bizbooks/pkg/db"
	"github.com/smallbiznis/bizbooks/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     ledgerdomain.Service
	Accounts   ledgerdomain.AccountRepository
	TaxConfig  taxdomain.ConfigService
	Orgs       organizationdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	ledger     ledgerdomain.Service
	accounts   ledgerdomain.AccountRepository
	taxConfig  taxdomain.ConfigService
	orgs       organizationdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	clock      clock.Clock
	tracer     trace.Tracer

	invoicerepo repository.Repository[invoicedomain.Invoice]
	itemrepo    repository.Repository[invoicedomain.InvoiceItem]
	taxlinerepo repository.Repository[invoicedomain.InvoiceTaxLine]

	numberTemplate string
}

func NewService(p ServiceParam) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		ledger:     p.Ledger,
		accounts:   p.Accounts,
		taxConfig:  p.TaxConfig,
		orgs:       p.Orgs,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		clock:      clk,
		tracer:     otel.Tracer("bizbooks/invoice"),

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		itemrepo:    repository.ProvideStore[invoicedomain.InvoiceItem](p.DB),
		taxlinerepo: repository.ProvideStore[invoicedomain.InvoiceTaxLine](p.DB),

		numberTemplate: invoiceformat.DefaultInvoiceNumberTemplate,
	}
}

func (s *Service) Calculate(ctx context.Context, req invoicedomain.CalculateInvoiceRequest) (*taxdomain.InvoiceGST, error) {
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrInvalidRequest, err)
	}
	seller, buyer, err := s.orgs.PlaceOfSupply(ctx, req.OrgID, req.PartyID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.taxConfig.GetConfiguration(ctx, req.OrgID)
	if err != nil {
		s.obsMetrics.RecordTaxCalculation(ctx, "gst", taxservice.CalculationOutcome(err))
		return nil, err
	}
	gst, err := taxservice.NewGSTCalculator(*cfg).CalculateInvoiceGST(req.Lines, seller, buyer)
	s.obsMetrics.RecordTaxCalculation(ctx, "gst", taxservice.CalculationOutcome(err))
	if err != nil {
		return nil, err
	}
	return &gst, nil
}

func (s *Service) Finalize(ctx context.Context, req invoicedomain.FinalizeInvoiceRequest, idempotencyKey string) (*invoicedomain.FinalizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.finalize")
	defer span.End()

	req.Kind = invoicedomain.InvoiceKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Memo = strings.TrimSpace(req.Memo)
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrInvalidRequest, err)
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", invoicedomain.ErrInvalidRequest)
	}
	if req.Kind == invoicedomain.InvoiceKindPurchase && req.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: supplier invoice number is required", invoicedomain.ErrInvalidRequest)
	}

	org, err := s.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	party, err := s.orgs.GetParty(ctx, req.OrgID, req.PartyID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.taxConfig.GetConfiguration(ctx, req.OrgID)
	if err != nil {
		s.obsMetrics.RecordTaxCalculation(ctx, "gst", taxservice.CalculationOutcome(err))
		return nil, err
	}

	seller, buyer := org.StateCode, party.StateCode
	if req.Kind == invoicedomain.InvoiceKindPurchase {
		seller, buyer = party.StateCode, org.StateCode
	}
	gst, err := taxservice.NewGSTCalculator(*cfg).CalculateInvoiceGST(req.Lines, seller, buyer)
	s.obsMetrics.RecordTaxCalculation(ctx, "gst", taxservice.CalculationOutcome(err))
	if err != nil {
		return nil, err
	}

	reverseCharge := false
	if req.Kind == invoicedomain.InvoiceKindPurchase {
		reverseCharge = cfg.ReverseCharge
		if req.ReverseCharge != nil {
			reverseCharge = *req.ReverseCharge
		}
	}
	currency := req.Currency
	if currency == "" {
		currency = org.Currency
	}

	snapshot := invoicedomain.Invoice{
		OrgID:          req.OrgID,
		PartyID:        req.PartyID,
		Kind:           req.Kind,
		InvoiceNumber:  req.InvoiceNumber,
		Status:         invoicedomain.InvoiceStatusDraft,
		SellerState:    taxdomain.NormalizeState(seller),
		BuyerState:     taxdomain.NormalizeState(buyer),
		Supply:         string(gst.Supply),
		ReverseCharge:  reverseCharge,
		Currency:       currency,
		TaxableAmount:  gst.TaxableValue.MinorUnits(),
		CGSTAmount:     gst.CGST.MinorUnits(),
		SGSTAmount:     gst.SGST.MinorUnits(),
		IGSTAmount:     gst.IGST.MinorUnits(),
		TaxAmount:      gst.TaxAmount.MinorUnits(),
		TotalAmount:    gst.Total.MinorUnits(),
		IssuedAt:       req.IssuedAt.UTC(),
		IdempotencyKey: idempotencyKey,
	}

	invoice, err := s.findByKey(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		invoice, err = s.createDraft(ctx, snapshot, req.Lines, gst)
		if err != nil {
			return nil, err
		}
	}
	return s.complete(ctx, invoice, gst, req.Memo)
}

// findByKey returns the invoice already bound to the snapshot's idempotency
// key, or nil when the key is unused.
func (s *Service) findByKey(ctx context.Context, snapshot invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	key := snapshot.IdempotencyKey
	existing, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{OrgID: snapshot.OrgID, IdempotencyKey: key})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !sameSnapshot(*existing, snapshot) {
			return nil, fmt.Errorf("%w: key %q is bound to invoice %s",
				ledgerdomain.ErrIdempotencyMismatch, key, existing.ID.String())
		}
		return existing, nil
	}

	// ledger keys are shared with payments
	txn, err := s.ledger.FindByIdempotencyKey(ctx, snapshot.OrgID, key)
	if errors.Is(err, ledgerdomain.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: key %q is bound to transaction %s",
		ledgerdomain.ErrIdempotencyMismatch, key, txn.ID.String())
}

// complete posts a draft and marks it finalized. An invoice that is already
// finalized or void is returned as a replay with its stored transaction.
func (s *Service) complete(ctx context.Context, invoice *invoicedomain.Invoice, gst taxdomain.InvoiceGST, memo string) (*invoicedomain.FinalizeResult, error) {
	if invoice.Status != invoicedomain.InvoiceStatusDraft && invoice.LedgerTransactionID != nil {
		txn, err := s.ledger.GetTransaction(ctx, *invoice.LedgerTransactionID)
		if err != nil {
			return nil, err
		}
		txn.Replayed = true
		result, err := s.result(ctx, *invoice, gst, txn)
		if err != nil {
			return nil, err
		}
		result.Replayed = true
		return result, nil
	}

	txn, err := s.postInvoiceToLedger(ctx, invoice, gst, memo, invoice.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, ledgerdomain.ErrCommitOutcomeUnknown) {
			s.discardDraft(ctx, invoice)
		}
		return nil, err
	}

	if err := s.markFinalized(ctx, invoice, txn.ID); err != nil {
		return nil, err
	}
	s.audit(ctx, auditdomain.ActionInvoiceFinalized, *invoice, map[string]any{
		"invoice_number":        invoice.InvoiceNumber,
		"kind":                  string(invoice.Kind),
		"total_amount":          invoice.TotalAmount,
		"tax_amount":            invoice.TaxAmount,
		"ledger_transaction_id": txn.ID.String(),
	})
	logger.WithContext(ctx, s.log).Info("invoice finalized",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("kind", string(invoice.Kind)),
		zap.String("total", invoice.Total().String()),
		zap.String("transaction_id", txn.ID.String()),
	)

	result, err := s.result(ctx, *invoice, gst, txn)
	if err != nil {
		return nil, err
	}
	result.Replayed = txn.Replayed
	return result, nil
}

const maxDraftAttempts = 3

// createDraft stores the invoice with its items and tax lines. A unique
// violation means either a concurrent finalize with the same key got there
// first, whose draft is then returned, or the number is taken and another one
// is reserved.
func (s *Service) createDraft(ctx context.Context, snapshot invoicedomain.Invoice, lines []taxdomain.LineItem, gst taxdomain.InvoiceGST) (*invoicedomain.Invoice, error) {
	autoNumber := snapshot.InvoiceNumber == ""
	for attempt := 1; ; attempt++ {
		if autoNumber {
			number, err := s.reserveInvoiceNumber(ctx, snapshot.OrgID, snapshot.Kind, snapshot.IssuedAt)
			if err != nil {
				return nil, err
			}
			snapshot.InvoiceNumber = number
		} else {
			existing, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{
				OrgID:         snapshot.OrgID,
				Kind:          snapshot.Kind,
				InvoiceNumber: snapshot.InvoiceNumber,
			})
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, fmt.Errorf("%w: %s", invoicedomain.ErrInvoiceMismatch, snapshot.InvoiceNumber)
			}
		}

		invoice, err := s.insertDraft(ctx, snapshot, lines, gst)
		if err == nil {
			return invoice, nil
		}
		if !dbutil.IsDuplicateKeyErr(err) {
			return nil, err
		}
		if existing, findErr := s.findByKey(ctx, snapshot); findErr != nil || existing != nil {
			return existing, findErr
		}
		if !autoNumber {
			return nil, fmt.Errorf("%w: %s", invoicedomain.ErrInvoiceMismatch, snapshot.InvoiceNumber)
		}
		if attempt == maxDraftAttempts {
			return nil, fmt.Errorf("%w: %s", invoicedomain.ErrInvoiceNumberConflict, snapshot.InvoiceNumber)
		}
		logger.WithContext(ctx, s.log).Warn("invoice number taken, retrying",
			zap.String("invoice_number", snapshot.InvoiceNumber),
			zap.Int("attempt", attempt),
		)
	}
}

func (s *Service) insertDraft(ctx context.Context, snapshot invoicedomain.Invoice, lines []taxdomain.LineItem, gst taxdomain.InvoiceGST) (*invoicedomain.Invoice, error) {
	now := s.clock.Now().UTC()
	invoice := snapshot
	invoice.ID = s.genID.Generate()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	items := make([]*invoicedomain.InvoiceItem, 0, len(lines))
	for i, line := range lines {
		result := gst.Lines[i]
		items = append(items, &invoicedomain.InvoiceItem{
			ID:            s.genID.Generate(),
			OrgID:         invoice.OrgID,
			InvoiceID:     invoice.ID,
			LineNo:        i + 1,
			Description:   strings.TrimSpace(line.Description),
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			GSTRate:       line.GSTRate,
			TaxableAmount: result.TaxableValue.MinorUnits(),
			CGSTAmount:    result.CGST.MinorUnits(),
			SGSTAmount:    result.SGST.MinorUnits(),
			IGSTAmount:    result.IGST.MinorUnits(),
			CreatedAt:     now,
		})
	}
	summary := invoicedomain.SummarizeTax(gst)
	taxLines := make([]*invoicedomain.InvoiceTaxLine, 0, len(summary))
	for i := range summary {
		line := summary[i]
		line.ID = s.genID.Generate()
		line.OrgID = invoice.OrgID
		line.InvoiceID = invoice.ID
		line.CreatedAt = now
		taxLines = append(taxLines, &line)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.invoicerepo.WithTrx(tx).Create(ctx, &invoice); err != nil {
			return err
		}
		if err := s.itemrepo.WithTrx(tx).BatchCreate(ctx, items); err != nil {
			return err
		}
		return s.taxlinerepo.WithTrx(tx).BatchCreate(ctx, taxLines)
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) discardDraft(ctx context.Context, invoice *invoicedomain.Invoice) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&invoicedomain.InvoiceTaxLine{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&invoicedomain.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND status = ?", invoice.ID, invoicedomain.InvoiceStatusDraft).
			Delete(&invoicedomain.Invoice{}).Error
	})
	if err != nil {
		s.log.Warn("failed to discard draft invoice", zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
	}
}

func (s *Service) markFinalized(ctx context.Context, invoice *invoicedomain.Invoice, transactionID snowflake.ID) error {
	now := s.clock.Now().UTC()
	if err := s.invoicerepo.Update(ctx, invoice.ID, map[string]any{
		"status":                invoicedomain.InvoiceStatusFinalized,
		"ledger_transaction_id": transactionID,
		"finalized_at":          now,
		"updated_at":            now,
	}); err != nil {
		return err
	}
	invoice.Status = invoicedomain.InvoiceStatusFinalized
	invoice.LedgerTransactionID = &transactionID
	invoice.FinalizedAt = &now
	invoice.UpdatedAt = now
	return nil
}

// reserveInvoiceNumber advances the sequence of the organization, kind and
// financial year in its own transaction. The row lock serializes concurrent
// reservations; a reserved number is never handed out twice.
func (s *Service) reserveInvoiceNumber(ctx context.Context, orgID snowflake.ID, kind invoicedomain.InvoiceKind, issuedAt time.Time) (string, error) {
	fy := invoiceformat.FinancialYear(issuedAt)
	now := s.clock.Now().UTC()
	var seq int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := invoicedomain.InvoiceSequence{OrgID: orgID, Kind: kind, FinancialYear: fy, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		scope := tx.Model(&invoicedomain.InvoiceSequence{}).
			Where("org_id = ? AND kind = ? AND financial_year = ?", orgID, kind, fy)
		if err := scope.Session(&gorm.Session{}).Updates(map[string]any{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		return scope.Session(&gorm.Session{}).Select("last_value").Row().Scan(&seq)
	})
	if err != nil {
		return "", err
	}
	return invoiceformat.FormatInvoiceNumber(s.numberTemplate, issuedAt, seq)
}

func (s *Service) Void(ctx context.Context, orgID, invoiceID snowflake.ID) (*invoicedomain.VoidResult, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.void")
	defer span.End()

	invoice, err := s.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == invoicedomain.InvoiceStatusDraft || invoice.LedgerTransactionID == nil {
		return nil, invoicedomain.ErrInvoiceNotFinalized
	}

	reversal, err := s.ledger.Reverse(ctx, *invoice.LedgerTransactionID)
	if err != nil {
		return nil, err
	}

	if invoice.Status != invoicedomain.InvoiceStatusVoid {
		now := s.clock.Now().UTC()
		if err := s.invoicerepo.Update(ctx, invoice.ID, map[string]any{
			"status":                  invoicedomain.InvoiceStatusVoid,
			"reversal_transaction_id": reversal.ID,
			"voided_at":               now,
			"updated_at":              now,
		}); err != nil {
			return nil, err
		}
		reversalID := reversal.ID
		invoice.Status = invoicedomain.InvoiceStatusVoid
		invoice.ReversalTransactionID = &reversalID
		invoice.VoidedAt = &now
		invoice.UpdatedAt = now

		s.audit(ctx, auditdomain.ActionInvoiceVoided, *invoice, map[string]any{
			"invoice_number":          invoice.InvoiceNumber,
			"reversal_transaction_id": reversal.ID.String(),
		})
		logger.WithContext(ctx, s.log).Info("invoice voided",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("reversal_id", reversal.ID.String()),
		)
	}

	return &invoicedomain.VoidResult{Invoice: *invoice, Reversal: reversal}, nil
}

func (s *Service) GetByID(ctx context.Context, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	item, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.OrgID == 0 {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidOrganization
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	filter := &invoicedomain.Invoice{
		OrgID:   req.OrgID,
		Kind:    req.Kind,
		Status:  req.Status,
		PartyID: req.PartyID,
	}
	items, err := s.invoicerepo.Find(ctx, filter,
		repository.WithBefore(req.Before),
		repository.WithOrder("id DESC"),
		repository.WithLimit(pageSize+1),
	)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices, HasMore: hasMore}, nil
}

func (s *Service) result(ctx context.Context, invoice invoicedomain.Invoice, gst taxdomain.InvoiceGST, txn *ledgerdomain.PostingTransaction) (*invoicedomain.FinalizeResult, error) {
	items, err := s.itemrepo.Find(ctx, &invoicedomain.InvoiceItem{OrgID: invoice.OrgID, InvoiceID: invoice.ID}, repository.WithOrder("line_no ASC"))
	if err != nil {
		return nil, err
	}
	taxLines, err := s.taxlinerepo.Find(ctx, &invoicedomain.InvoiceTaxLine{OrgID: invoice.OrgID, InvoiceID: invoice.ID}, repository.WithOrder("id ASC"))
	if err != nil {
		return nil, err
	}

	out := &invoicedomain.FinalizeResult{
		Invoice:     invoice,
		Items:       make([]invoicedomain.InvoiceItem, 0, len(items)),
		TaxLines:    make([]invoicedomain.InvoiceTaxLine, 0, len(taxLines)),
		GST:         gst,
		Transaction: txn,
	}
	for _, item := range items {
		out.Items = append(out.Items, *item)
	}
	for _, line := range taxLines {
		out.TaxLines = append(out.TaxLines, *line)
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, action string, invoice invoicedomain.Invoice, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	orgID := invoice.OrgID
	targetID := invoice.ID.String()
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Record{
		OrgID:      &orgID,
		Action:     action,
		TargetType: "invoice",
		TargetID:   &targetID,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to write invoice audit log", zap.String("action", action), zap.Error(err))
	}
}

// sameSnapshot compares what an invoice would post to the ledger.
func sameSnapshot(a, b invoicedomain.Invoice) bool {
	return a.OrgID == b.OrgID &&
		a.PartyID == b.PartyID &&
		a.Kind == b.Kind &&
		a.Currency == b.Currency &&
		a.ReverseCharge == b.ReverseCharge &&
		a.TaxableAmount == b.TaxableAmount &&
		a.CGSTAmount == b.CGSTAmount &&
		a.SGSTAmount == b.SGSTAmount &&
		a.IGSTAmount == b.IGSTAmount &&
		a.TotalAmount == b.TotalAmount &&
		(b.InvoiceNumber == "" || a.InvoiceNumber == b.InvoiceNumber)
}
