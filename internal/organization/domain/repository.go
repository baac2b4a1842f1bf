package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	// FindOrganization returns nil, nil when the organization does not exist.
	FindOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	CreateParty(ctx context.Context, party Party) error
	// FindParty returns nil, nil when the party does not exist in the organization.
	FindParty(ctx context.Context, orgID, partyID snowflake.ID) (*Party, error)
}
