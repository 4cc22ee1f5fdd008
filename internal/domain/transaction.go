package domain

import "time"

// Transaction is a coins ledger entry: tier purchases, referral bonuses and
// admin adjustments all leave one.
type Transaction struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Type      string                 `db:"type" json:"type"`
	Amount    int64                  `db:"amount" json:"amount"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

const (
	TxTierPurchase  = "tier_purchase"
	TxReferralBonus = "referral_bonus"
	TxAdminAdjust   = "admin_adjust"
)
