package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/money"
)

// ConfigService loads and stores per-organization tax configuration.
type ConfigService interface {
	GetConfiguration(ctx context.Context, orgID snowflake.ID) (*TaxConfiguration, error)
	SaveConfiguration(ctx context.Context, cfg TaxConfiguration) error
	// EnsureDefaults seeds the configured defaults when the organization
	// has no configuration yet and returns the effective configuration.
	EnsureDefaults(ctx context.Context, orgID snowflake.ID) (*TaxConfiguration, error)
}

// GSTCalculator computes GST for invoice lines.
type GSTCalculator interface {
	CalculateLineItemGST(line LineItem, sellerState, buyerState string) (GSTResult, error)
	CalculateInvoiceGST(lines []LineItem, sellerState, buyerState string) (InvoiceGST, error)
}

// TDSCalculator computes withholding for a payment.
type TDSCalculator interface {
	CalculateTDS(gross money.Money, nature Nature) (TDSResult, error)
}
