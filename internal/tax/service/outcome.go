package service

import (
	"errors"

	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
)

// CalculationOutcome labels a calculator result for bizbooks_tax_calculations_total.
func CalculationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, taxdomain.ErrUnconfiguredRate):
		return "unconfigured_rate"
	case errors.Is(err, taxdomain.ErrConfigurationNotFound):
		return "configuration_not_found"
	case errors.Is(err, taxdomain.ErrInvalidInput), errors.Is(err, taxdomain.ErrInvalidNature):
		return "invalid_input"
	default:
		return "error"
	}
}
