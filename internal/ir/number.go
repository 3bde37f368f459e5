package ir

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Number is an arbitrary precision decimal. Numbers never pass through
// float64 on the way in, so 0.1 stays 0.1 all the way to a decimal column.
//
// The zero value is 0.
type Number struct {
	d *apd.Decimal
}

func (Number) irValue() {}

// NewInt creates an integral Number.
func NewInt(n int64) Number {
	return Number{d: apd.New(n, 0)}
}

// ParseNumber parses a decimal literal such as "12", "-0.5" or "1e3".
func ParseNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Number{}, fmt.Errorf("invalid number %q: not finite", s)
	}
	return Number{d: d}, nil
}

// MustNumber is like ParseNumber but panics on error.
// Use only in tests or with constant input.
func MustNumber(s string) Number {
	n, err := ParseNumber(s)
	if err != nil {
		panic(err)
	}
	return n
}

// NewFloat converts a binary float using its shortest decimal representation.
func NewFloat(f float64) (Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}, fmt.Errorf("invalid number %v: not finite", f)
	}
	return ParseNumber(strconv.FormatFloat(f, 'g', -1, 64))
}

func (n Number) dec() *apd.Decimal {
	if n.d == nil {
		return apd.New(0, 0)
	}
	return n.d
}

// Decimal returns a copy of the underlying decimal.
func (n Number) Decimal() *apd.Decimal {
	var out apd.Decimal
	out.Set(n.dec())
	return &out
}

// String renders the number in plain notation with trailing zeros removed,
// so 30, 30.0 and 3e1 all render as "30".
func (n Number) String() string {
	var r apd.Decimal
	r.Reduce(n.dec())
	return r.Text('f')
}

// Cmp compares two numbers numerically.
func (n Number) Cmp(o Number) int {
	return n.dec().Cmp(o.dec())
}

// IsIntegral reports whether the number has no fractional part.
func (n Number) IsIntegral() bool {
	var r apd.Decimal
	r.Reduce(n.dec())
	return r.Exponent >= 0
}

// Int64 returns the number as int64. Fails for fractional or out of range values.
func (n Number) Int64() (int64, error) {
	if !n.IsIntegral() {
		return 0, fmt.Errorf("number %s is not an integer", n)
	}
	var r apd.Decimal
	r.Reduce(n.dec())
	return r.Int64()
}

// Float64 returns the closest binary float.
func (n Number) Float64() (float64, error) {
	return n.dec().Float64()
}

// Sign returns -1, 0 or +1.
func (n Number) Sign() int {
	return n.dec().Sign()
}

// Add returns n + o.
func (n Number) Add(o Number) (Number, error) {
	var out apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(64).Add(&out, n.dec(), o.dec()); err != nil {
		return Number{}, fmt.Errorf("add %s + %s: %w", n, o, err)
	}
	return Number{d: &out}, nil
}
