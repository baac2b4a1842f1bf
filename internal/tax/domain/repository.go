package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	// FindConfiguration returns nil, nil when the organization has none.
	FindConfiguration(ctx context.Context, orgID snowflake.ID) (*TaxConfiguration, error)
	// ReplaceConfiguration overwrites the header, slabs and rules atomically.
	ReplaceConfiguration(ctx context.Context, cfg TaxConfiguration, newID func() snowflake.ID) error
}
