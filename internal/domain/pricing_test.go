package domain

import (
	"testing"
	"time"
)

func TestFinalUnitPrice(t *testing.T) {
	cases := []struct {
		name     string
		base     int64
		discount float64
		want     int64
	}{
		{"no discount", 100_000, 0, 100_000},
		{"ten percent off", 100_000, 0.1, 90_000},
		{"full discount", 250_000, 1, 0},
		{"negative discount ignored", 80_000, -0.5, 80_000},
		{"discount above one clamps to free", 80_000, 1.5, 0},
		{"zero base", 0, 0.3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FinalUnitPrice(tc.base, tc.discount); got != tc.want {
				t.Fatalf("FinalUnitPrice(%d, %v) = %d, want %d", tc.base, tc.discount, got, tc.want)
			}
		})
	}
}

func TestVoucherReduction(t *testing.T) {
	cap50k := int64(50_000)
	cap30k := int64(30_000)

	cases := []struct {
		name     string
		amount   int64
		discount int64
		max      *int64
		kind     VoucherType
		want     int64
	}{
		{"percentage uncapped", 1_000_000, 10, nil, VoucherTypePercentage, 100_000},
		{"percentage capped", 1_000_000, 10, &cap50k, VoucherTypePercentage, 50_000},
		{"fixed uncapped", 500_000, 30_000, nil, VoucherTypeFixed, 30_000},
		{"fixed capped", 500_000, 60_000, &cap30k, VoucherTypeFixed, 30_000},
		{"fixed exceeding order clamps", 20_000, 30_000, nil, VoucherTypeFixed, 20_000},
		{"zero amount", 0, 10, nil, VoucherTypePercentage, 0},
		{"unknown kind", 1_000_000, 10, nil, VoucherType("mystery"), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VoucherReduction(tc.amount, tc.discount, tc.max, tc.kind); got != tc.want {
				t.Fatalf("VoucherReduction(%d, %d) = %d, want %d", tc.amount, tc.discount, got, tc.want)
			}
		})
	}
}

func TestInstallmentAmountRoundsUpToThousand(t *testing.T) {
	if got := InstallmentAmount(1_000_000, 3); got != 334_000 {
		t.Fatalf("InstallmentAmount(1_000_000, 3) = %d, want 334000", got)
	}
	if got := InstallmentAmount(900_000, 3); got != 300_000 {
		t.Fatalf("InstallmentAmount(900_000, 3) = %d, want 300000", got)
	}
	if got := InstallmentAmount(1_000, 3); got != 1_000 {
		t.Fatalf("InstallmentAmount(1_000, 3) = %d, want 1000", got)
	}
	if got := InstallmentAmount(0, 3); got != 0 {
		t.Fatalf("InstallmentAmount(0, 3) = %d, want 0", got)
	}
	if got := InstallmentAmount(1_000_000, 0); got != 0 {
		t.Fatalf("InstallmentAmount(1_000_000, 0) = %d, want 0", got)
	}
}

func TestInstallmentSumNeverBelowTotal(t *testing.T) {
	totals := []int64{1, 999, 1_000, 333_333, 1_000_000, 2_345_678}
	counts := []int{2, 3, 6, 12}
	for _, total := range totals {
		for _, count := range counts {
			per := InstallmentAmount(total, count)
			if per*int64(count) < total {
				t.Fatalf("installments %d x %d undershoot total %d", per, count, total)
			}
		}
	}
}

func TestNextPayDay(t *testing.T) {
	now := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	want := time.Date(2025, 4, 15, 8, 0, 0, 0, time.UTC)
	if got := NextPayDay(now); !got.Equal(want) {
		t.Fatalf("NextPayDay(%v) = %v, want %v", now, got, want)
	}
}
