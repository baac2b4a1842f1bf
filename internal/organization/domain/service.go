package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Register creates the organization, its chart of accounts and its
	// default tax configuration.
	Register(ctx context.Context, req RegisterOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	CreateParty(ctx context.Context, orgID snowflake.ID, req CreatePartyRequest) (*Party, error)
	GetParty(ctx context.Context, orgID, partyID snowflake.ID) (*Party, error)
	// PlaceOfSupply returns the seller and buyer state codes used to classify
	// a supply as intra- or inter-state.
	PlaceOfSupply(ctx context.Context, orgID, partyID snowflake.ID) (sellerState, buyerState string, err error)
}

type RegisterOrganizationRequest struct {
	Name      string `validate:"required,max=255"`
	GSTIN     string `validate:"omitempty,gstin"`
	PAN       string `validate:"omitempty,pan"`
	StateCode string `validate:"omitempty,max=10"`
	Currency  string `validate:"omitempty,len=3,alpha"`
}

type CreatePartyRequest struct {
	Kind      PartyKind `validate:"required,oneof=customer vendor"`
	Name      string    `validate:"required,max=255"`
	GSTIN     string    `validate:"omitempty,gstin"`
	PAN       string    `validate:"omitempty,pan"`
	StateCode string    `validate:"omitempty,max=10"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrNotFound            = errors.New("organization_not_found")
	ErrPartyNotFound       = errors.New("party_not_found")
)
