package service

import (
	"testing"

	"github.com/smallbiznis/bizbooks/internal/money"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTDS_AboveThreshold(t *testing.T) {
	calc := NewTDSCalculator(testConfiguration())

	result, err := calc.CalculateTDS(money.MustParse("100000.00"), taxdomain.NatureContractor)
	require.NoError(t, err)

	assert.Equal(t, "10000.00", result.TDSAmount.String())
	assert.Equal(t, "90000.00", result.NetPayment.String())
	assert.Equal(t, "100000.00", result.GrossPayment.String())
	assert.Equal(t, "194C", result.Section)
	assert.True(t, result.Deducted())
}

func TestCalculateTDS_BelowThreshold(t *testing.T) {
	calc := NewTDSCalculator(testConfiguration())

	result, err := calc.CalculateTDS(money.MustParse("29999.99"), "contractor")
	require.NoError(t, err)

	assert.True(t, result.TDSAmount.IsZero())
	assert.Equal(t, "29999.99", result.NetPayment.String())
	assert.False(t, result.Deducted())
}

func TestCalculateTDS_AtThresholdIsDeducted(t *testing.T) {
	calc := NewTDSCalculator(testConfiguration())

	result, err := calc.CalculateTDS(money.MustParse("30000.00"), taxdomain.NatureContractor)
	require.NoError(t, err)
	assert.Equal(t, "3000.00", result.TDSAmount.String())
	assert.Equal(t, "27000.00", result.NetPayment.String())
}

func TestCalculateTDS_RoundsHalfUp(t *testing.T) {
	calc := NewTDSCalculator(testConfiguration())

	// 240000.06 * 7.5% = 18000.0045 -> 18000.00
	result, err := calc.CalculateTDS(money.MustParse("240000.06"), taxdomain.NatureRent)
	require.NoError(t, err)
	assert.Equal(t, "18000.00", result.TDSAmount.String())

	// 240000.10 * 7.5% = 18000.0075 -> 18000.01
	result, err = calc.CalculateTDS(money.MustParse("240000.10"), taxdomain.NatureRent)
	require.NoError(t, err)
	assert.Equal(t, "18000.01", result.TDSAmount.String())
	assert.Equal(t, "222000.09", result.NetPayment.String())
}

func TestCalculateTDS_Errors(t *testing.T) {
	calc := NewTDSCalculator(testConfiguration())

	_, err := calc.CalculateTDS(money.MustParse("-1"), taxdomain.NatureContractor)
	assert.ErrorIs(t, err, taxdomain.ErrInvalidInput)

	_, err = calc.CalculateTDS(money.MustParse("50000"), taxdomain.NatureProfessional)
	assert.ErrorIs(t, err, taxdomain.ErrUnconfiguredRate)
}
