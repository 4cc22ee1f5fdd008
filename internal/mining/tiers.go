package mining

import (
	"errors"

	"mining_webapp/internal/domain"
)

var ErrInvalidTier = errors.New("invalid tier")

// DefaultContractHours is the length of a paid tier's accrual window.
const DefaultContractHours = 48

// tiers is the fixed plan table. Tier 0 is free and never expires.
var tiers = []domain.Tier{
	{ID: 0, Name: "Free", DailyRate: 10, Price: 0},
	{ID: 1, Name: "Bronze", DailyRate: 40, Price: 100},
	{ID: 2, Name: "Silver", DailyRate: 100, Price: 250},
	{ID: 3, Name: "Gold", DailyRate: 250, Price: 500},
}

// Tiers returns the plan table in id order.
func Tiers() []domain.Tier {
	out := make([]domain.Tier, len(tiers))
	copy(out, tiers)
	return out
}

// TierByID looks up a tier; unknown ids are a caller error, not a store error.
func TierByID(id int) (domain.Tier, error) {
	if id < 0 || id >= len(tiers) {
		return domain.Tier{}, ErrInvalidTier
	}
	return tiers[id], nil
}

// FreeTier returns tier 0, the fallback rate after a contract expires.
func FreeTier() domain.Tier {
	return tiers[0]
}
