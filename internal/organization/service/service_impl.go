package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/clock"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/internal/organization/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/smallbiznis/bizbooks/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const defaultCurrency = "INR"

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Accounts  ledgerdomain.AccountRepository `optional:"true"`
	TaxConfig taxdomain.ConfigService        `optional:"true"`
	AuditSvc  auditdomain.Service            `optional:"true"`
	Clock     clock.Clock                    `optional:"true"`
}

type service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	accounts  ledgerdomain.AccountRepository
	taxConfig taxdomain.ConfigService
	auditSvc  auditdomain.Service
	clock     clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &service{
		log:       p.Log.Named("organization.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		accounts:  p.Accounts,
		taxConfig: p.TaxConfig,
		auditSvc:  p.AuditSvc,
		clock:     clk,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterOrganizationRequest) (*domain.Organization, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.GSTIN = strings.ToUpper(strings.TrimSpace(req.GSTIN))
	req.PAN = strings.ToUpper(strings.TrimSpace(req.PAN))
	req.StateCode = taxdomain.NormalizeState(req.StateCode)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	now := s.clock.Now().UTC()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		GSTIN:     req.GSTIN,
		PAN:       req.PAN,
		StateCode: stateCodeFor(req.StateCode, req.GSTIN),
		Currency:  req.Currency,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if org.Currency == "" {
		org.Currency = defaultCurrency
	}

	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}

	// seeders are idempotent
	if s.accounts != nil {
		if _, err := s.accounts.EnsureChartOfAccounts(ctx, org.ID); err != nil {
			return nil, err
		}
	}
	if s.taxConfig != nil {
		if _, err := s.taxConfig.EnsureDefaults(ctx, org.ID); err != nil {
			return nil, err
		}
	}

	if s.auditSvc != nil {
		orgID := org.ID
		targetID := org.ID.String()
		if err := s.auditSvc.AuditLog(ctx, auditdomain.Record{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationRegistered,
			TargetType: "organization",
			TargetID:   &targetID,
			Metadata: map[string]any{
				"gstin":      org.GSTIN,
				"state_code": org.StateCode,
			},
		}); err != nil {
			s.log.Warn("failed to write organization audit log", zap.Error(err))
		}
	}

	s.log.Info("organization registered",
		zap.String("org_id", org.ID.String()),
		zap.String("state_code", org.StateCode),
	)
	return &org, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) CreateParty(ctx context.Context, orgID snowflake.ID, req domain.CreatePartyRequest) (*domain.Party, error) {
	if _, err := s.GetByID(ctx, orgID); err != nil {
		return nil, err
	}

	req.Kind = domain.PartyKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	req.Name = strings.TrimSpace(req.Name)
	req.GSTIN = strings.ToUpper(strings.TrimSpace(req.GSTIN))
	req.PAN = strings.ToUpper(strings.TrimSpace(req.PAN))
	req.StateCode = taxdomain.NormalizeState(req.StateCode)
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	party := domain.Party{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Kind:      req.Kind,
		Name:      req.Name,
		GSTIN:     req.GSTIN,
		PAN:       req.PAN,
		StateCode: stateCodeFor(req.StateCode, req.GSTIN),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.CreateParty(ctx, party); err != nil {
		return nil, err
	}
	return &party, nil
}

func (s *service) GetParty(ctx context.Context, orgID, partyID snowflake.ID) (*domain.Party, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	party, err := s.repo.FindParty(ctx, orgID, partyID)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, domain.ErrPartyNotFound
	}
	return party, nil
}

func (s *service) PlaceOfSupply(ctx context.Context, orgID, partyID snowflake.ID) (string, string, error) {
	org, err := s.GetByID(ctx, orgID)
	if err != nil {
		return "", "", err
	}
	party, err := s.GetParty(ctx, orgID, partyID)
	if err != nil {
		return "", "", err
	}
	return org.StateCode, party.StateCode, nil
}

// stateCodeFor prefers an explicit state and falls back to the two-digit
// state prefix of the GSTIN.
func stateCodeFor(state, gstin string) string {
	if state != "" {
		return state
	}
	if len(gstin) >= 2 {
		return gstin[:2]
	}
	return ""
}
