package money

import "testing"

func TestApplyBpsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		rate   int64
		want   int64
	}{
		{5000, 3000, 1500},  // 50.00 at 30% = 15.00
		{10000, 1100, 1100}, // 100.00 at 11% tax
		{101, 2500, 25},     // 25.25 cents-of-cents rounds down
		{102, 2500, 26},     // 25.5 rounds up
		{0, 3000, 0},
		{5000, 0, 0},
	}
	for _, tc := range cases {
		if got := ApplyBps(tc.amount, tc.rate); got != tc.want {
			t.Fatalf("ApplyBps(%d, %d) = %d, want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func TestPerMille(t *testing.T) {
	// 10,000 impressions at a 5.00 CPM is 50.00 of revenue.
	if got := PerMille(10_000, 500); got != 5_000 {
		t.Fatalf("PerMille(10000, 500) = %d, want 5000", got)
	}
	if got := PerMille(1_500, 100); got != 150 {
		t.Fatalf("PerMille(1500, 100) = %d, want 150", got)
	}
	// Half-up on the sub-cent remainder.
	if got := PerMille(15, 100); got != 2 {
		t.Fatalf("PerMille(15, 100) = %d, want 2", got)
	}
	if got := PerMille(14, 100); got != 1 {
		t.Fatalf("PerMille(14, 100) = %d, want 1", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(5000); got != "50.00" {
		t.Fatalf("Format(5000) = %q", got)
	}
	if got := Format(-101); got != "-1.01" {
		t.Fatalf("Format(-101) = %q", got)
	}
	if got := Format(7); got != "0.07" {
		t.Fatalf("Format(7) = %q", got)
	}
}
