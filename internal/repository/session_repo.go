package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mining_webapp/internal/domain"
	"mining_webapp/internal/mining"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository persists mining sessions and package purchases. It is the
// Postgres implementation of mining.SessionStore.
type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetSession fetches the user's session row. last_claim_time is NULL until the
// first claim, so it is read as epoch to scan into a plain time.Time.
func (r *SessionRepository) GetSession(ctx context.Context, userID int64) (*domain.MiningSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, tier_id, mining_balance, total_mined, COALESCE(last_claim_time, 'epoch'), updated_at
		 FROM mining_sessions
		 WHERE user_id = $1`,
		userID,
	)

	var s domain.MiningSession
	if err := row.Scan(
		&s.UserID,
		&s.TierID,
		&s.MiningBalance,
		&s.TotalMined,
		&s.LastClaimTime,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mining.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) CreateSession(ctx context.Context, userID int64, tierID int) (*domain.MiningSession, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO mining_sessions (user_id, tier_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING user_id, tier_id, mining_balance, total_mined, COALESCE(last_claim_time, 'epoch'), updated_at`,
		userID, tierID,
	)

	var s domain.MiningSession
	if err := row.Scan(&s.UserID, &s.TierID, &s.MiningBalance, &s.TotalMined, &s.LastClaimTime, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSession writes only the fields present in upd. updated_at always moves
// forward; it is the accrual baseline for every later recomputation.
func (r *SessionRepository) UpdateSession(ctx context.Context, userID int64, upd mining.SessionUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{upd.UpdatedAt}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.MiningBalance != nil {
		add("mining_balance", *upd.MiningBalance)
	}
	if upd.TierID != nil {
		add("tier_id", *upd.TierID)
	}
	if upd.TotalMined != nil {
		add("total_mined", *upd.TotalMined)
	}
	if upd.LastClaimTime != nil {
		add("last_claim_time", *upd.LastClaimTime)
	}

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE mining_sessions SET %s WHERE user_id = $%d`,
		strings.Join(sets, ", "), len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mining.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) GetActivePurchase(ctx context.Context, userID int64, tierID int) (*domain.PackagePurchase, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, tier_id, price, purchased_at
		 FROM package_purchases
		 WHERE user_id = $1 AND tier_id = $2`,
		userID, tierID,
	)

	var p domain.PackagePurchase
	if err := row.Scan(&p.UserID, &p.TierID, &p.Price, &p.PurchasedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mining.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePurchase records a tier activation. A renewal for the same (user, tier)
// overwrites the previous row, so at most one contract window exists per pair.
func (r *SessionRepository) CreatePurchase(ctx context.Context, userID int64, tierID int, price int64) (*domain.PackagePurchase, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO package_purchases (user_id, tier_id, price, purchased_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, tier_id) DO UPDATE
		 SET price = EXCLUDED.price, purchased_at = EXCLUDED.purchased_at
		 RETURNING user_id, tier_id, price, purchased_at`,
		userID, tierID, price,
	)

	var p domain.PackagePurchase
	if err := row.Scan(&p.UserID, &p.TierID, &p.Price, &p.PurchasedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
