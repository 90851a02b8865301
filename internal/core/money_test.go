package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{"1.004", 100, true},
		{"-1.005", -101, true},
		{" 2.50 ", 250, true},
		{"+3", 300, true},
		{".5", 50, true},
		{"-.5", -50, true},
		{"7.", 700, true},
		{"0", 0, true},
		{"-1", -100, true},
		{"100.01", 10001, true},
		{"10000000000000.00", 1_000_000_000_000_000, true},
		{"-10000000000000", -1_000_000_000_000_000, true},
		{"10000000000000.01", 0, false},
		{"-10000000000000.01", 0, false},
		{"50000000000000000.00", 0, false},
		{"92233720368547758.07", 0, false},
		{"92233720368547758.08", 0, false},
		{"1e3", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{".", 0, false},
		{"--1", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	if m, err := ParseAmount("0.01"); err != nil || m.Cents != 1 {
		t.Fatalf("expected 1 cent, got %v (err=%v)", m, err)
	}
	for _, in := range []string{"0", "-1", "0.004"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("%q expected error", in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		-5:     "-0.05",
		1234:   "12.34",
		-1205:  "-12.05",
		100000: "1000.00",
	}
	for cents, want := range cases {
		if got := Cents(cents).String(); got != want {
			t.Fatalf("%d: expected %q, got %q", cents, want, got)
		}
	}
	if got := Cents(-9223372036854775808).String(); got != "-92233720368547758.08" {
		t.Fatalf("min int64: got %q", got)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, b := Cents(10001), Cents(10000)
	if !a.Sub(b).Equal(Cents(1)) {
		t.Fatalf("sub: got %v", a.Sub(b))
	}
	if a.Cmp(b) != 1 || b.Cmp(a) != -1 || a.Cmp(a) != 0 {
		t.Fatalf("cmp is not a total order")
	}
	if !Sum().IsZero() {
		t.Fatalf("empty sum must be zero")
	}
	if got := Sum(Cents(5000), Cents(3000), Cents(2000)); got.Cents != 10000 {
		t.Fatalf("sum: got %v", got)
	}
	if !b.Sub(a).IsNegative() || !a.Neg().Neg().Equal(a) {
		t.Fatalf("negation")
	}
	if got := Cents(1234).Decimal().String(); got != "12.34" {
		t.Fatalf("decimal: got %q", got)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := Cents(1).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := Cents(MaxCents).Validate(); err != nil {
		t.Fatalf("expected ok at the cap, got %v", err)
	}
	if err := Cents(0).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := Cents(MaxCents + 1).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above the cap, got %v", err)
	}
}

func TestMoneyLargeAmountsDoNotWrap(t *testing.T) {
	if _, err := ParseAmount("50000000000000000.00"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	top, err := ParseAmount("10000000000000.00")
	if err != nil {
		t.Fatalf("parse cap: %v", err)
	}
	if got := Sum(top, top); got.Cents != 2*MaxCents {
		t.Fatalf("sum of two capped amounts: got %v", got)
	}

	huge := Cents(math.MaxInt64)
	if got := huge.Add(Cents(1)); got.Cents != math.MaxInt64 {
		t.Fatalf("add wrapped to %d", got.Cents)
	}
	if got := Cents(math.MinInt64).Sub(Cents(1)); got.Cents != math.MinInt64 {
		t.Fatalf("sub wrapped to %d", got.Cents)
	}
	if got := Cents(math.MinInt64).Neg(); got.Cents != math.MaxInt64 {
		t.Fatalf("neg wrapped to %d", got.Cents)
	}
	if got := Sum(huge, huge, Cents(-1)); !got.IsPositive() {
		t.Fatalf("sum changed sign: %v", got)
	}
}

func TestMoneyJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A Money `json:"a"`
	}{Cents(-1205)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"-12.05"}` {
		t.Fatalf("unexpected json %s", out)
	}

	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{`"12.34"`, 1234, true},
		{`12.34`, 1234, true},
		{`0.1`, 10, true},
		{`100.01`, 10001, true},
		{`null`, 0, true},
		{`"x"`, 0, false},
		{`true`, 0, false},
	}
	for _, tc := range cases {
		var m Money
		err := json.Unmarshal([]byte(tc.in), &m)
		if tc.ok {
			if err != nil || m.Cents != tc.out {
				t.Fatalf("%s expected %d, got %d (err=%v)", tc.in, tc.out, m.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%s expected error", tc.in)
		}
	}
}
