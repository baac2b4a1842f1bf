package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinancialYear(t *testing.T) {
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "25-26"},
		{time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC), "25-26"},
		{time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), "25-26"},
		{time.Date(2099, 12, 1, 0, 0, 0, 0, time.UTC), "99-00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FinancialYear(tc.at), tc.at.String())
	}
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), FinancialYearStart(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)))
}

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2025, 7, 9, 10, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, 42)
	require.NoError(t, err)
	assert.Equal(t, "INV/25-26/00042", got)
	assert.LessOrEqual(t, len(got), 16)

	got, err = FormatInvoiceNumber("S-{YYYY}{MM}{DD}-{SEQ}", issued, 7)
	require.NoError(t, err)
	assert.Equal(t, "S-20250709-7", got)

	_, err = FormatInvoiceNumber("", issued, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{HH}", issued, 1)
	assert.Error(t, err)
}
