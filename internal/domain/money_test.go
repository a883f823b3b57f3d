package domain

import "testing"

func TestMoneyFromMajorRounds(t *testing.T) {
	cases := []struct {
		in   float64
		want Money
	}{
		{40.00, 4000},
		{0.01, 1},
		{99.995, 10000},
		{-10.50, -1050},
		{0, 0},
	}
	for _, tc := range cases {
		if got := MoneyFromMajor(tc.in); got != tc.want {
			t.Fatalf("MoneyFromMajor(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{12000, "120.00"},
		{1000, "10.00"},
		{5, "0.05"},
		{-1050, "-10.50"},
		{0, "0.00"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Fatalf("Money(%d).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMoneyMulIsExact(t *testing.T) {
	price := Money(4000)
	if got := price.Mul(3); got != 12000 {
		t.Fatalf("expected 12000, got %d", got)
	}
	if got := price.Mul(3).Major(); got != 120.00 {
		t.Fatalf("expected 120.00, got %v", got)
	}
}
