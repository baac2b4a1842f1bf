package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every Money value.
const Scale int32 = 2

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidRoundingMode = errors.New("invalid_rounding_mode")
)

// RoundingMode selects how a decimal is quantized to minor units.
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "half_up"
	RoundHalfEven RoundingMode = "half_even"
	RoundDown     RoundingMode = "down"
	RoundUp       RoundingMode = "up"
)

// DefaultRoundingMode is applied when an organization has not chosen one.
const DefaultRoundingMode = RoundHalfUp

// ParseRoundingMode normalizes a configured mode. Empty means the default.
func ParseRoundingMode(raw string) (RoundingMode, error) {
	mode := RoundingMode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case "":
		return DefaultRoundingMode, nil
	case RoundHalfUp, RoundHalfEven, RoundDown, RoundUp:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRoundingMode, raw)
	}
}

// Round quantizes d to Scale digits. Half-up rounds ties away from zero,
// which is half-up for the non-negative amounts money calculations produce.
func (m RoundingMode) Round(d decimal.Decimal) decimal.Decimal {
	switch m {
	case RoundHalfEven:
		return d.RoundBank(Scale)
	case RoundDown:
		return d.RoundDown(Scale)
	case RoundUp:
		return d.RoundUp(Scale)
	default:
		return d.Round(Scale)
	}
}

// Money is a fixed-point amount with exactly two fractional digits.
// The zero value is 0.00.
type Money struct {
	amount decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// Quantize rounds d to minor units using mode.
func Quantize(d decimal.Decimal, mode RoundingMode) Money {
	return Money{amount: mode.Round(d)}
}

// New quantizes d with the default rounding mode.
func New(d decimal.Decimal) Money {
	return Quantize(d, DefaultRoundingMode)
}

// Parse reads a decimal string. More than two significant fractional digits
// is rejected rather than silently rounded.
func Parse(raw string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Money {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts an exact two-digit decimal into Money.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, d.String(), Scale)
	}
	return Money{amount: d.Truncate(Scale)}, nil
}

// FromMinor builds Money from an integer count of minor units (paise).
func FromMinor(units int64) Money {
	return Money{amount: decimal.New(units, -Scale)}
}

// Sum adds all values.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func (m Money) Add(o Money) Money { return Money{amount: m.amount.Add(o.amount)} }

func (m Money) Sub(o Money) Money { return Money{amount: m.amount.Sub(o.amount)} }

func (m Money) Neg() Money { return Money{amount: m.amount.Neg()} }

func (m Money) Cmp(o Money) int { return m.amount.Cmp(o.amount) }

func (m Money) Equal(o Money) bool { return m.amount.Equal(o.amount) }

func (m Money) LessThan(o Money) bool { return m.amount.LessThan(o.amount) }

func (m Money) IsZero() bool { return m.amount.IsZero() }

func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// MinorUnits returns the amount in paise.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(Scale).IntPart()
}

// SplitHalf divides the amount into two parts that sum back exactly.
// When the minor-unit count is odd the first part carries the extra unit.
func (m Money) SplitHalf() (Money, Money) {
	units := m.MinorUnits()
	second := units / 2
	return FromMinor(units - second), FromMinor(second)
}

func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
