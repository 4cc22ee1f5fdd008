package domain

import "time"

// Tier is a mining-speed plan with a fixed daily accrual rate and a one-time
// activation price. Tier 0 is free and never expires; paid tiers accrue at the
// elevated rate only inside their contract window.
type Tier struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	DailyRate float64 `json:"daily_rate"` // GOLD per 24h
	Price     int64   `json:"price"`      // coins, 0 for the free tier
}

// MiningSession is the persisted per-user mining state. MiningBalance is a
// snapshot as of UpdatedAt, not a live value; the live pending balance is
// recomputed from it on every tick.
type MiningSession struct {
	UserID        int64     `db:"user_id" json:"user_id"`
	TierID        int       `db:"tier_id" json:"tier_id"`
	MiningBalance float64   `db:"mining_balance" json:"mining_balance"`
	TotalMined    float64   `db:"total_mined" json:"total_mined"`
	LastClaimTime time.Time `db:"last_claim_time" json:"last_claim_time"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// PackagePurchase records the activation (or renewal) of a paid tier. One row
// per (user, tier); a renewal overwrites PurchasedAt in place so exactly one
// contract window exists per pair.
type PackagePurchase struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	TierID      int       `db:"tier_id" json:"tier_id"`
	Price       int64     `db:"price" json:"price"`
	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

// ContractEnd returns the end of the accrual window for this purchase.
func (p PackagePurchase) ContractEnd(duration time.Duration) time.Time {
	return p.PurchasedAt.Add(duration)
}
