package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, gstin, pan, state_code, currency, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.GSTIN,
		org.PAN,
		org.StateCode,
		org.Currency,
		org.Metadata,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) FindOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, gstin, pan, state_code, currency, metadata, created_at, updated_at
		 FROM organizations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) CreateParty(ctx context.Context, party domain.Party) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO parties (id, org_id, kind, name, gstin, pan, state_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		party.ID,
		party.OrgID,
		party.Kind,
		party.Name,
		party.GSTIN,
		party.PAN,
		party.StateCode,
		party.CreatedAt,
	).Error
}

func (r *repository) FindParty(ctx context.Context, orgID, partyID snowflake.ID) (*domain.Party, error) {
	var party domain.Party
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, kind, name, gstin, pan, state_code, created_at
		 FROM parties
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`,
		orgID,
		partyID,
	).Scan(&party).Error
	if err != nil {
		return nil, err
	}
	if party.ID == 0 {
		return nil, nil
	}
	return &party, nil
}
