// Package money provides the fixed-point amount type used throughout the
// ledger. Amounts are stored as integer cents; parsing and normalisation go
// through shopspring/decimal so no floating point ever touches a balance.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrInvalidAmount indicates input that cannot be read as a decimal amount.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Amount is a fixed-point decimal with exactly two fractional digits.
// The zero value is a valid zero amount.
type Amount struct {
	cents int64
}

// Zero is the zero amount.
var Zero = Amount{}

// FromCents builds an Amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{cents: cents}
}

// Parse reads a decimal amount from user input. Both "1234.56" and the
// Dutch-style "1.234,56" are accepted. The result is normalised to two
// fractional digits, matching the client-side toFixed(2) behaviour.
func Parse(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d = d.Round(2)
	return Amount{cents: d.Mul(decimal.NewFromInt(100)).IntPart()}, nil
}

// MustParse is Parse for fixtures and tests. It panics on bad input.
func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// normalizeSeparators rewrites locale-formatted input to plain decimal
// notation. When both separators appear the rightmost one is decimal.
func normalizeSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}

// Cents returns the amount in integer cents.
func (a Amount) Cents() int64 {
	return a.cents
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{cents: a.cents + b.cents}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{cents: a.cents - b.cents}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{cents: -a.cents}
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.cents < b.cents:
		return -1
	case a.cents > b.cents:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b are the same amount.
func (a Amount) Equal(b Amount) bool {
	return a.cents == b.cents
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.cents == 0
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.cents < 0
}

// IsPositive reports whether the amount is above zero.
func (a Amount) IsPositive() bool {
	return a.cents > 0
}

// Decimal returns the amount as an exact decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.cents, -2)
}

// String renders the amount with two fractional digits, e.g. "1234.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

var printer = message.NewPrinter(language.Dutch)

// Format renders the amount for display. With withSymbol the euro symbol and
// Dutch digit grouping are applied.
func (a Amount) Format(withSymbol bool) string {
	if !withSymbol {
		return a.String()
	}
	f, _ := a.Decimal().Float64()
	return printer.Sprintf("€ %.2f", f)
}

// MarshalJSON encodes the amount as a fixed two-digit decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds up a slice of amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
