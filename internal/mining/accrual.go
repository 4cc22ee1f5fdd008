package mining

import "mining_webapp/internal/domain"

const secondsPerDay = 86400

// Engine computes accrued GOLD from elapsed wall-clock time. It is pure and
// stateless; construct one explicitly and pass it where needed instead of
// sharing a package-level instance.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// RatePerSecond returns the tier's accrual rate per second. No rounding is
// applied here; values are rounded only for display.
func (e *Engine) RatePerSecond(t domain.Tier) float64 {
	return t.DailyRate / secondsPerDay
}

// Accrue returns balance plus accrual over elapsedSeconds at the tier's rate.
// Negative elapsed time (clock skew) is clamped to zero, never subtracted.
func (e *Engine) Accrue(balance float64, t domain.Tier, elapsedSeconds float64) float64 {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	return balance + e.RatePerSecond(t)*elapsedSeconds
}

// ProjectedTotal returns the amount a tier would mine over periodDays. Used
// for the 30-day and 365-day projections shown in the webapp; these are flat
// multipliers, not calendar months.
func (e *Engine) ProjectedTotal(t domain.Tier, periodDays float64) float64 {
	return t.DailyRate * periodDays
}
