package mining

import (
	"math"
	"testing"
)

func TestRatePerSecond(t *testing.T) {
	e := NewEngine()
	free := FreeTier()

	// 10 GOLD/day comes out to roughly 0.0001157 per second
	got := e.RatePerSecond(free)
	want := 10.0 / 86400.0
	if got != want {
		t.Fatalf("RatePerSecond(free) = %v; want %v", got, want)
	}
	if math.Abs(got-0.0001157) > 1e-7 {
		t.Fatalf("RatePerSecond(free) = %v; expected ~0.0001157", got)
	}
}

func TestAccrueFullDay(t *testing.T) {
	e := NewEngine()
	got := e.Accrue(0, FreeTier(), 86400)
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("Accrue(0, free, 86400) = %v; want 10", got)
	}
}

func TestAccrueClampsNegativeElapsed(t *testing.T) {
	e := NewEngine()
	if got := e.Accrue(5, FreeTier(), -3600); got != 5 {
		t.Fatalf("Accrue with negative elapsed = %v; want 5 (no decrease)", got)
	}
}

func TestAccrueStartsFromBalance(t *testing.T) {
	e := NewEngine()
	tier, err := TierByID(1)
	if err != nil {
		t.Fatalf("TierByID(1): %v", err)
	}
	got := e.Accrue(2.5, tier, 86400)
	if math.Abs(got-(2.5+tier.DailyRate)) > 1e-9 {
		t.Fatalf("Accrue(2.5, tier1, 86400) = %v; want %v", got, 2.5+tier.DailyRate)
	}
}

func TestProjectedTotal(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		tierID int
		days   float64
		want   float64
	}{
		{0, 30, 300},
		{0, 365, 3650},
		{3, 30, 7500},
		{3, 365, 91250},
	}

	for _, tc := range cases {
		tier, err := TierByID(tc.tierID)
		if err != nil {
			t.Fatalf("TierByID(%d): %v", tc.tierID, err)
		}
		if got := e.ProjectedTotal(tier, tc.days); got != tc.want {
			t.Fatalf("ProjectedTotal(tier%d, %v) = %v; want %v", tc.tierID, tc.days, got, tc.want)
		}
	}
}

func TestTierByIDInvalid(t *testing.T) {
	for _, id := range []int{-1, 4, 99} {
		if _, err := TierByID(id); err != ErrInvalidTier {
			t.Fatalf("TierByID(%d) err = %v; want ErrInvalidTier", id, err)
		}
	}
}

func TestTierTable(t *testing.T) {
	ts := Tiers()
	if len(ts) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(ts))
	}
	if ts[0].Price != 0 {
		t.Fatalf("free tier must have zero price, got %d", ts[0].Price)
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].ID != i {
			t.Fatalf("tier at index %d has id %d", i, ts[i].ID)
		}
		if ts[i].Price <= 0 {
			t.Fatalf("paid tier %d must have a price", i)
		}
		if ts[i].DailyRate <= ts[i-1].DailyRate {
			t.Fatalf("tier rates must increase with id: tier %d", i)
		}
	}
}
