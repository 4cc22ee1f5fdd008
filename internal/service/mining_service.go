package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"mining_webapp/internal/domain"
	"mining_webapp/internal/logger"
	"mining_webapp/internal/mining"
	"mining_webapp/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// MiningService owns the active reconcilers, one per user context. Starting a
// session for a user who already has one reuses it; stopping tears down the
// ticker so a stale loop can never keep writing a departed user's session.
type MiningService struct {
	db           *pgxpool.Pool
	engine       *mining.Engine
	sessions     *repository.SessionRepository
	users        *repository.UserRepository
	transactions *repository.TransactionRepository

	contractDuration time.Duration
	syncEveryTicks   int
	onState          func(mining.State)

	mu     sync.Mutex
	active map[int64]*activeSession
}

type activeSession struct {
	rec    *mining.Reconciler
	cancel context.CancelFunc
}

// MiningConfig tunes the service; zero values fall back to the reconciler
// defaults (48h contracts, 30-tick sync cadence).
type MiningConfig struct {
	ContractDuration time.Duration
	SyncEveryTicks   int
	OnState          func(mining.State) // live tick fan-out, usually the ws hub
}

func NewMiningService(db *pgxpool.Pool, cfg MiningConfig) *MiningService {
	return &MiningService{
		db:               db,
		engine:           mining.NewEngine(),
		sessions:         repository.NewSessionRepository(db),
		users:            repository.NewUserRepository(db),
		transactions:     repository.NewTransactionRepository(db),
		contractDuration: cfg.ContractDuration,
		syncEveryTicks:   cfg.SyncEveryTicks,
		onState:          cfg.OnState,
		active:           make(map[int64]*activeSession),
	}
}

// StartSession loads (or creates) the user's session and starts its tick loop.
// Idempotent: a second start for the same user returns the running session.
func (s *MiningService) StartSession(ctx context.Context, userID int64) (mining.State, error) {
	s.mu.Lock()
	if a, ok := s.active[userID]; ok {
		s.mu.Unlock()
		return a.rec.State(), nil
	}
	s.mu.Unlock()

	rec := mining.NewReconciler(userID, s.sessions, s.engine, mining.Config{
		ContractDuration: s.contractDuration,
		SyncEveryTicks:   s.syncEveryTicks,
		OnState:          s.onState,
		OnSync: func(err error) {
			MiningSyncTotal.Inc()
			if err != nil {
				MiningSyncFailures.Inc()
			}
		},
	})
	if err := rec.Load(ctx); err != nil {
		return mining.State{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if a, ok := s.active[userID]; ok {
		// lost the race to another start; keep the first loop
		s.mu.Unlock()
		cancel()
		return a.rec.State(), nil
	}
	s.active[userID] = &activeSession{rec: rec, cancel: cancel}
	ActiveSessions.Set(float64(len(s.active)))
	s.mu.Unlock()

	go rec.Run(runCtx)
	logger.Info("mining session started", "user_id", userID)
	return rec.State(), nil
}

// StopSession cancels the user's tick loop; the reconciler performs a final
// best-effort flush on its way out.
func (s *MiningService) StopSession(userID int64) {
	s.mu.Lock()
	a, ok := s.active[userID]
	if ok {
		delete(s.active, userID)
		ActiveSessions.Set(float64(len(s.active)))
	}
	s.mu.Unlock()

	if ok {
		a.cancel()
		logger.Info("mining session stopped", "user_id", userID)
	}
}

// StopAll tears down every active session, used on shutdown.
func (s *MiningService) StopAll() {
	s.mu.Lock()
	sessions := s.active
	s.active = make(map[int64]*activeSession)
	ActiveSessions.Set(0)
	s.mu.Unlock()

	for _, a := range sessions {
		a.cancel()
	}
}

// reconciler returns the user's running reconciler, or a loaded ephemeral one
// for plain request/response calls. Ephemeral reconcilers never tick; the live
// loop exists only while the user's webapp is connected.
func (s *MiningService) reconciler(ctx context.Context, userID int64) (*mining.Reconciler, error) {
	s.mu.Lock()
	a, ok := s.active[userID]
	s.mu.Unlock()
	if ok {
		return a.rec, nil
	}

	rec := mining.NewReconciler(userID, s.sessions, s.engine, mining.Config{
		ContractDuration: s.contractDuration,
		SyncEveryTicks:   s.syncEveryTicks,
	})
	if err := rec.Load(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// State returns the live session view. Uses the running reconciler when one
// exists, otherwise a one-off load; no tick loop is started here.
func (s *MiningService) State(ctx context.Context, userID int64) (mining.State, error) {
	rec, err := s.reconciler(ctx, userID)
	if err != nil {
		return mining.State{}, err
	}
	return rec.State(), nil
}

// Claim moves the pending balance into the lifetime total. Store failures
// surface to the caller; nothing is zeroed locally on error.
func (s *MiningService) Claim(ctx context.Context, userID int64) (float64, mining.State, error) {
	rec, err := s.reconciler(ctx, userID)
	if err != nil {
		return 0, mining.State{}, err
	}
	claimed, err := rec.Claim(ctx)
	if err != nil {
		return 0, mining.State{}, err
	}
	MiningClaims.Inc()
	logger.Info("mining balance claimed", "user_id", userID, "amount", claimed)
	return claimed, rec.State(), nil
}

// PurchaseTier debits the tier price, records (or renews) the purchase and
// switches the session. The pending balance carries over across the switch.
func (s *MiningService) PurchaseTier(ctx context.Context, userID int64, tierID int) (mining.State, error) {
	tier, err := mining.TierByID(tierID)
	if err != nil {
		return mining.State{}, err
	}

	rec, err := s.reconciler(ctx, userID)
	if err != nil {
		return mining.State{}, err
	}

	// tier 0 is free: a plain switch, no purchase involved
	if tier.ID == 0 {
		if err := rec.SetTier(ctx, 0); err != nil {
			return mining.State{}, err
		}
		return rec.State(), nil
	}

	if _, err := s.users.DebitCoins(ctx, userID, tier.Price); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return mining.State{}, ErrInsufficientFunds
		}
		return mining.State{}, err
	}

	if _, err := s.sessions.CreatePurchase(ctx, userID, tier.ID, tier.Price); err != nil {
		// refund the debit so a store hiccup doesn't eat the user's coins
		if _, rerr := s.users.UpdateCoins(ctx, userID, tier.Price); rerr != nil {
			logger.Error("refund after failed purchase", "user_id", userID, "error", rerr)
		}
		return mining.State{}, err
	}

	ledger := &domain.Transaction{
		UserID: userID,
		Type:   domain.TxTierPurchase,
		Amount: -tier.Price,
		Meta:   map[string]interface{}{"tier_id": tier.ID},
	}
	if err := s.transactions.Create(ctx, ledger); err != nil {
		logger.Warn("purchase ledger entry failed", "user_id", userID, "error", err)
	}

	if err := rec.SetTier(ctx, tier.ID); err != nil {
		return mining.State{}, err
	}
	MiningPurchases.Inc()
	logger.Info("tier purchased", "user_id", userID, "tier_id", tier.ID, "price", tier.Price)
	return rec.State(), nil
}

// NotifySessionChanged routes an out-of-band change signal to the user's
// reconciler, which answers with a fresh load. No-op when the user has no
// active session, the next load will see the new row anyway.
func (s *MiningService) NotifySessionChanged(userID int64) {
	s.mu.Lock()
	a, ok := s.active[userID]
	s.mu.Unlock()
	if ok {
		a.rec.NotifyExternalChange()
	}
}

// Projections returns flat 30-day and 365-day mining projections per tier.
func (s *MiningService) Projections() []TierProjection {
	var out []TierProjection
	for _, t := range mining.Tiers() {
		out = append(out, TierProjection{
			Tier:    t,
			Monthly: s.engine.ProjectedTotal(t, 30),
			Annual:  s.engine.ProjectedTotal(t, 365),
		})
	}
	return out
}

type TierProjection struct {
	Tier    domain.Tier `json:"tier"`
	Monthly float64     `json:"monthly"`
	Annual  float64     `json:"annual"`
}
