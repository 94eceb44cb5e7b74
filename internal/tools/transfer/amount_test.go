package transfer

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{name: "whole ether", amount: "1", decimals: 18, want: "1000000000000000000"},
		{name: "fractional ether", amount: "1.5", decimals: 18, want: "1500000000000000000"},
		{name: "smallest usdc unit", amount: "0.000001", decimals: 6, want: "1"},
		{name: "leading dot", amount: ".5", decimals: 2, want: "50"},
		{name: "zero decimals", amount: "42", decimals: 0, want: "42"},
		{name: "empty", amount: "", decimals: 18, wantErr: true},
		{name: "negative", amount: "-1", decimals: 18, wantErr: true},
		{name: "too precise", amount: "0.0000001", decimals: 6, wantErr: true},
		{name: "not a number", amount: "one", decimals: 18, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.amount, tc.decimals)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		value    string
		decimals int
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 6, "0.000001"},
		{"0", 18, "0"},
		{"42", 0, "42"},
		{"-1500000", 6, "-1.5"},
	}

	for _, tc := range cases {
		value, ok := new(big.Int).SetString(tc.value, 10)
		if !ok {
			t.Fatalf("invalid test value %q", tc.value)
		}
		if got := FormatAmount(value, tc.decimals); got != tc.want {
			t.Fatalf("FormatAmount(%s, %d) = %q, want %q", tc.value, tc.decimals, got, tc.want)
		}
	}
}
