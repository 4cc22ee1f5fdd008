package mining

import (
	"context"
	"errors"
	"sync"
	"time"

	"mining_webapp/internal/domain"
	"mining_webapp/internal/logger"
)

var ErrNotFound = errors.New("not found")

// SessionUpdate is a partial write to the session row. Nil fields are left
// untouched; UpdatedAt always moves to the given time.
type SessionUpdate struct {
	MiningBalance *float64
	TierID        *int
	TotalMined    *float64
	LastClaimTime *time.Time
	UpdatedAt     time.Time
}

// SessionStore is the persistence contract the reconciler runs against.
// Implementations must return ErrNotFound for missing rows.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (*domain.MiningSession, error)
	CreateSession(ctx context.Context, userID int64, tierID int) (*domain.MiningSession, error)
	UpdateSession(ctx context.Context, userID int64, upd SessionUpdate) error
	GetActivePurchase(ctx context.Context, userID int64, tierID int) (*domain.PackagePurchase, error)
	CreatePurchase(ctx context.Context, userID int64, tierID int, price int64) (*domain.PackagePurchase, error)
}

// State is the live view pushed to transports on every tick.
type State struct {
	UserID          int64     `json:"user_id"`
	TierID          int       `json:"tier_id"`
	EffectiveTierID int       `json:"effective_tier_id"`
	RatePerSecond   float64   `json:"rate_per_second"`
	Pending         float64   `json:"pending"`
	TotalMined      float64   `json:"total_mined"`
	ContractEnd     time.Time `json:"contract_end,omitzero"`
	LastClaimTime   time.Time `json:"last_claim_time,omitzero"`
	SyncedAt        time.Time `json:"synced_at"`
}

// Config tunes a reconciler. Zero values fall back to defaults.
type Config struct {
	ContractDuration time.Duration    // paid tier window, default 48h
	SyncEveryTicks   int              // flush cadence in ticks, default 30
	SyncTimeout      time.Duration    // per-flush deadline, default 5s
	Now              func() time.Time // injectable clock for tests
	OnState          func(State)      // called after every tick
	OnSync           func(err error)  // called after every flush attempt
}

// Reconciler tracks one user's mining session: it recomputes the live pending
// balance every tick from the last persisted snapshot and flushes the snapshot
// forward on the sync cadence. The in-memory pending value is the source of
// truth between flushes; the store is eventually consistent with it.
type Reconciler struct {
	userID int64
	store  SessionStore
	engine *Engine
	cfg    Config

	reload chan struct{}

	mu          sync.Mutex
	tier        domain.Tier
	contractEnd time.Time // zero while on the free tier
	snapshot    float64
	pending     float64
	totalMined  float64
	lastSync    time.Time
	lastClaim   time.Time
	ticks       int
	syncing     bool
	// gen invalidates an in-flight sync whenever claim/setTier/reload move the
	// baseline, so a stale flush can never roll local state backwards.
	gen uint64
}

func NewReconciler(userID int64, store SessionStore, engine *Engine, cfg Config) *Reconciler {
	if cfg.ContractDuration <= 0 {
		cfg.ContractDuration = DefaultContractHours * time.Hour
	}
	if cfg.SyncEveryTicks <= 0 {
		cfg.SyncEveryTicks = 30
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		userID: userID,
		store:  store,
		engine: engine,
		cfg:    cfg,
		reload: make(chan struct{}, 1),
	}
}

// Load fetches the persisted session (creating a zero-valued free-tier one if
// absent) plus the active purchase for paid tiers, and computes the initial
// pending balance. Store failures propagate; a session is never fabricated
// over a failed read.
func (r *Reconciler) Load(ctx context.Context) error {
	sess, err := r.store.GetSession(ctx, r.userID)
	if errors.Is(err, ErrNotFound) {
		sess, err = r.store.CreateSession(ctx, r.userID, 0)
	}
	if err != nil {
		return err
	}

	tier, err := TierByID(sess.TierID)
	if err != nil {
		return err
	}

	var contractEnd time.Time
	if tier.ID > 0 {
		purchase, err := r.store.GetActivePurchase(ctx, r.userID, tier.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Paid tier without a purchase row: no window to honor, treat the
			// contract as already over.
			logger.Warn("session on paid tier without purchase", "user_id", r.userID, "tier_id", tier.ID)
			contractEnd = sess.UpdatedAt
		case err != nil:
			return err
		default:
			contractEnd = purchase.ContractEnd(r.cfg.ContractDuration)
		}
	}

	r.mu.Lock()
	r.tier = tier
	r.contractEnd = contractEnd
	r.snapshot = sess.MiningBalance
	r.totalMined = sess.TotalMined
	r.lastSync = sess.UpdatedAt
	r.lastClaim = sess.LastClaimTime
	r.pending, _ = r.computeLocked(r.cfg.Now())
	r.gen++
	r.mu.Unlock()
	return nil
}

// computeLocked applies the accrual rule and returns the pending balance plus
// the tier whose rate applies from now on. Three cases:
//   - free tier or contract still active: accrue over the whole window
//   - contract already expired at lastSync: snapshot unchanged, rate drops to free
//   - contract expired inside (lastSync, now): accrue only up to the contract
//     end, rate drops to free afterwards
//
// A user is never credited past expiry and never loses pre-expiry credit, no
// matter how long the window was.
func (r *Reconciler) computeLocked(now time.Time) (float64, domain.Tier) {
	if r.tier.ID == 0 || r.contractEnd.IsZero() {
		return r.engine.Accrue(r.snapshot, r.tier, now.Sub(r.lastSync).Seconds()), r.tier
	}
	if !r.lastSync.Before(r.contractEnd) {
		return r.snapshot, FreeTier()
	}
	if now.Before(r.contractEnd) {
		return r.engine.Accrue(r.snapshot, r.tier, now.Sub(r.lastSync).Seconds()), r.tier
	}
	return r.engine.Accrue(r.snapshot, r.tier, r.contractEnd.Sub(r.lastSync).Seconds()), FreeTier()
}

func (r *Reconciler) stateLocked(effective domain.Tier) State {
	return State{
		UserID:          r.userID,
		TierID:          r.tier.ID,
		EffectiveTierID: effective.ID,
		RatePerSecond:   r.engine.RatePerSecond(effective),
		Pending:         r.pending,
		TotalMined:      r.totalMined,
		ContractEnd:     r.contractEnd,
		LastClaimTime:   r.lastClaim,
		SyncedAt:        r.lastSync,
	}
}

// State returns the current live view, recomputed at the current time.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, eff := r.computeLocked(r.cfg.Now())
	r.pending = pending
	return r.stateLocked(eff)
}

// Tick recomputes pending from the last sync point. It never advances the
// snapshot itself, so timer jitter cannot accumulate drift. Returns true when
// the sync cadence boundary was reached.
func (r *Reconciler) Tick() bool {
	r.mu.Lock()
	pending, eff := r.computeLocked(r.cfg.Now())
	r.pending = pending
	r.ticks++
	boundary := r.ticks%r.cfg.SyncEveryTicks == 0
	st := r.stateLocked(eff)
	r.mu.Unlock()

	if r.cfg.OnState != nil {
		r.cfg.OnState(st)
	}
	return boundary
}

// Sync flushes the current pending balance and effective tier to the store and
// moves the local snapshot forward. A failed flush leaves local state exactly
// as it was; the same value is retried at the next cadence boundary. Overlap
// with a still in-flight sync is skipped.
func (r *Reconciler) Sync(ctx context.Context) error {
	r.mu.Lock()
	if r.syncing {
		r.mu.Unlock()
		return nil
	}
	r.syncing = true
	now := r.cfg.Now()
	pending, eff := r.computeLocked(now)
	gen := r.gen
	tierID := eff.ID
	upd := SessionUpdate{MiningBalance: &pending, TierID: &tierID, UpdatedAt: now}
	r.mu.Unlock()

	err := r.store.UpdateSession(ctx, r.userID, upd)
	if r.cfg.OnSync != nil {
		r.cfg.OnSync(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = false
	if err != nil {
		return err
	}
	if gen != r.gen {
		// claim/setTier/reload moved the baseline while the write was in
		// flight; the flushed value is stale, keep the newer local state
		return nil
	}
	r.snapshot = pending
	r.pending = pending
	r.lastSync = now
	if eff.ID != r.tier.ID {
		r.tier = eff
		r.contractEnd = time.Time{}
	}
	return nil
}

// Claim moves the whole pending balance into the lifetime total and zeroes the
// running balance. The store write happens before any local reset, so a failed
// claim changes nothing and surfaces to the caller. Claiming again before any
// new accrual yields zero.
func (r *Reconciler) Claim(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Now()
	pending, eff := r.computeLocked(now)
	newTotal := r.totalMined + pending
	zero := 0.0
	tierID := eff.ID
	upd := SessionUpdate{
		MiningBalance: &zero,
		TierID:        &tierID,
		TotalMined:    &newTotal,
		LastClaimTime: &now,
		UpdatedAt:     now,
	}
	if err := r.store.UpdateSession(ctx, r.userID, upd); err != nil {
		return 0, err
	}

	r.snapshot = 0
	r.pending = 0
	r.totalMined = newTotal
	r.lastSync = now
	r.lastClaim = now
	if eff.ID != r.tier.ID {
		r.tier = eff
		r.contractEnd = time.Time{}
	}
	r.gen++
	return pending, nil
}

// SetTier switches the session to a validated tier. The already-accrued
// pending balance carries over; only the accrual rate and contract window
// change. Paid tiers require the purchase row to exist already.
func (r *Reconciler) SetTier(ctx context.Context, newTierID int) error {
	tier, err := TierByID(newTierID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var contractEnd time.Time
	if tier.ID > 0 {
		purchase, err := r.store.GetActivePurchase(ctx, r.userID, tier.ID)
		if err != nil {
			return err
		}
		contractEnd = purchase.ContractEnd(r.cfg.ContractDuration)
	}

	now := r.cfg.Now()
	pending, _ := r.computeLocked(now)
	tierID := tier.ID
	upd := SessionUpdate{MiningBalance: &pending, TierID: &tierID, UpdatedAt: now}
	if err := r.store.UpdateSession(ctx, r.userID, upd); err != nil {
		return err
	}

	r.tier = tier
	r.contractEnd = contractEnd
	r.snapshot = pending
	r.pending = pending
	r.lastSync = now
	r.gen++
	return nil
}

// NotifyExternalChange signals that the session row was modified out of band
// (admin adjustment, another writer). The run loop answers with a fresh Load
// rather than merging the remote value into in-flight local accrual.
func (r *Reconciler) NotifyExternalChange() {
	select {
	case r.reload <- struct{}{}:
	default:
	}
}

// Run drives the reconciler: a 1Hz tick recomputes pending, every cadence
// boundary kicks off an async flush, external-change signals trigger a reload.
// On shutdown a final best-effort flush is attempted so up to a full cadence
// window of accrual is not lost.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
			if err := r.Sync(sctx); err != nil {
				logger.Warn("final session flush failed", "user_id", r.userID, "error", err)
			}
			cancel()
			return

		case <-r.reload:
			rctx, cancel := context.WithTimeout(ctx, r.cfg.SyncTimeout)
			if err := r.Load(rctx); err != nil {
				logger.Warn("session reload after external change failed", "user_id", r.userID, "error", err)
			}
			cancel()

		case <-ticker.C:
			if r.Tick() {
				go func() {
					sctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
					defer cancel()
					if err := r.Sync(sctx); err != nil {
						logger.Warn("session sync failed, retrying next cadence", "user_id", r.userID, "error", err)
					}
				}()
			}
		}
	}
}
