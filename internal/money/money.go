// Package money provides the fixed-point decimal type used for every
// balance, price, size, cost and P&L figure in the agent. Floating point
// never touches a monetary value.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried through division.
const Scale = 8

// Money is a signed fixed-point decimal amount.
type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

// One is the unit payout of a winning outcome token.
var One = FromInt(1)

func FromInt(n int64) Money {
	return Money{decimal.NewFromInt(n)}
}

// FromCents builds a Money from an integer number of hundredths.
func FromCents(cents int64) Money {
	return Money{decimal.New(cents, -2)}
}

// Parse reads a decimal string as produced by String. It is the only
// way monetary values enter the system from persistence or config.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{d}, nil
}

// MustParse is for literals in tests and defaults. Panics on bad input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) String() string { return m.d.String() }

func (m Money) Add(o Money) Money { return Money{m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{m.d.Sub(o.d)} }
func (m Money) Mul(o Money) Money { return Money{m.d.Mul(o.d)} }
func (m Money) Neg() Money        { return Money{m.d.Neg()} }
func (m Money) Abs() Money        { return Money{m.d.Abs()} }

// Div divides with banker's rounding (half to even) at Scale digits.
func (m Money) Div(o Money) Money {
	// q is truncated toward zero; the remainder decides the last digit.
	q, r := m.d.QuoRem(o.d, Scale)
	if r.IsZero() {
		return Money{q}
	}
	unit := decimal.New(1, -Scale)
	cmp := r.Abs().Mul(decimal.NewFromInt(2)).Cmp(o.d.Abs().Mul(unit))
	if cmp > 0 || (cmp == 0 && q.Shift(Scale).BigInt().Bit(0) == 1) {
		if m.d.Sign()*o.d.Sign() < 0 {
			q = q.Sub(unit)
		} else {
			q = q.Add(unit)
		}
	}
	return Money{q}
}

func (m Money) Cmp(o Money) int          { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) LessOrEqual(o Money) bool { return m.d.LessThanOrEqual(o.d) }
func (m Money) GreaterOrEqual(o Money) bool {
	return m.d.GreaterThanOrEqual(o.d)
}

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }

func Min(a, b Money) Money {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

func Max(a, b Money) Money {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

// FromFloat converts an external float (e.g. an oracle probability or an
// exchange ticker field) into Money. Values that money flows through are
// never constructed this way from literals; this exists only at ingestion
// boundaries where upstream APIs hand us floats.
func FromFloat(f float64) Money {
	return Money{decimal.NewFromFloat(f)}
}

// InexactFloat64 is for log formatting and prompts only.
func (m Money) InexactFloat64() float64 {
	f, _ := m.d.Float64()
	return f
}
