// Package core holds the ledger domain model: money, categories, entries,
// summary shapes and the error taxonomy shared by every layer.
//
// This file contains the Money type and its parsing from external text.
// Amounts are always kept as integer cents and never pass through float64.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact amount in minor units (cents). The zero value is Money(0).
type Money struct {
	Cents int64
}

// MaxCents bounds the magnitude of any single parsed amount or budget
// (10 trillion major units). Sums of up to ~9000 maximal amounts stay exact.
const MaxCents int64 = 1_000_000_000_000_000

var (
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

	maxCents = decimal.NewFromInt(MaxCents)
	minCents = decimal.NewFromInt(-MaxCents)
)

// Cents builds a Money from a minor unit count.
func Cents(c int64) Money { return Money{Cents: c} }

// ParseMoney converts a decimal string to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted, as is a leading
// sign. Digits past the second fractional place are rounded half away from
// zero. Values whose magnitude exceeds MaxCents are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("12,345") -> 1235
//	ParseMoney("-0.5")   -> -50
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if !decimalPattern.MatchString(s) {
		return Money{}, ErrInvalidAmount
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "+"), ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ParseAmount parses an entry amount, which must be strictly positive.
func ParseAmount(s string) (Money, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return Money{}, err
	}
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// Sum adds all amounts. Summing nothing yields Money(0).
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Add saturates at the int64 range instead of wrapping.
func (m Money) Add(o Money) Money {
	sum := m.Cents + o.Cents
	switch {
	case o.Cents > 0 && sum < m.Cents:
		return Money{Cents: math.MaxInt64}
	case o.Cents < 0 && sum > m.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: sum}
}

// Sub saturates like Add.
func (m Money) Sub(o Money) Money {
	diff := m.Cents - o.Cents
	switch {
	case o.Cents < 0 && diff < m.Cents:
		return Money{Cents: math.MaxInt64}
	case o.Cents > 0 && diff > m.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: diff}
}

func (m Money) Neg() Money { return Money{}.Sub(m) }

// Cmp returns -1, 0 or +1 comparing m with o.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	}
	return 0
}

func (m Money) Equal(o Money) bool      { return m.Cents == o.Cents }
func (m Money) GreaterThan(o Money) bool { return m.Cents > o.Cents }
func (m Money) IsZero() bool             { return m.Cents == 0 }
func (m Money) IsPositive() bool         { return m.Cents > 0 }
func (m Money) IsNegative() bool         { return m.Cents < 0 }

// Validate checks that m is usable as an entry amount.
func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the value in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders a fixed two digit decimal, e.g. "-12.05".
func (m Money) String() string {
	sign := ""
	abs := uint64(m.Cents)
	if m.Cents < 0 {
		sign = "-"
		abs = uint64(-(m.Cents + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// MarshalJSON encodes Money as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a decimal string or a number literal. Number literals
// are parsed from their text, never through float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("decode money: %w", err)
		}
	}
	parsed, err := ParseMoney(text)
	if err != nil {
		return fmt.Errorf("decode money %q: %w", text, err)
	}
	*m = parsed
	return nil
}
