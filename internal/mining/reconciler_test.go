package mining

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"mining_webapp/internal/domain"
)

type purchaseKey struct {
	userID int64
	tierID int
}

// fakeStore is an in-memory SessionStore. Renewals overwrite the purchase row
// in place, mirroring the upsert the Postgres repository does.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[int64]*domain.MiningSession
	purchases map[purchaseKey]*domain.PackagePurchase

	failUpdates bool
	updateCount int
	onUpdate    func() // fired once inside UpdateSession, before the write
	now         func() time.Time
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		sessions:  make(map[int64]*domain.MiningSession),
		purchases: make(map[purchaseKey]*domain.PackagePurchase),
		now:       now,
	}
}

func (s *fakeStore) GetSession(ctx context.Context, userID int64) (*domain.MiningSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) CreateSession(ctx context.Context, userID int64, tierID int) (*domain.MiningSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &domain.MiningSession{UserID: userID, TierID: tierID, UpdatedAt: s.now()}
	s.sessions[userID] = sess
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) UpdateSession(ctx context.Context, userID int64, upd SessionUpdate) error {
	if hook := s.onUpdate; hook != nil {
		s.onUpdate = nil
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return errors.New("store unavailable")
	}
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	if upd.MiningBalance != nil {
		sess.MiningBalance = *upd.MiningBalance
	}
	if upd.TierID != nil {
		sess.TierID = *upd.TierID
	}
	if upd.TotalMined != nil {
		sess.TotalMined = *upd.TotalMined
	}
	if upd.LastClaimTime != nil {
		sess.LastClaimTime = *upd.LastClaimTime
	}
	sess.UpdatedAt = upd.UpdatedAt
	s.updateCount++
	return nil
}

func (s *fakeStore) GetActivePurchase(ctx context.Context, userID int64, tierID int) (*domain.PackagePurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[purchaseKey{userID, tierID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CreatePurchase(ctx context.Context, userID int64, tierID int, price int64) (*domain.PackagePurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &domain.PackagePurchase{UserID: userID, TierID: tierID, Price: price, PurchasedAt: s.now()}
	s.purchases[purchaseKey{userID, tierID}] = p
	cp := *p
	return &cp, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestReconciler(t *testing.T, userID int64) (*Reconciler, *fakeStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := newFakeStore(clock.Now)
	r := NewReconciler(userID, store, NewEngine(), Config{Now: clock.Now})
	return r, store, clock
}

func TestLoadCreatesSessionWhenAbsent(t *testing.T) {
	r, store, _ := newTestReconciler(t, 1)

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	sess, err := store.GetSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if sess.TierID != 0 || sess.MiningBalance != 0 || sess.TotalMined != 0 {
		t.Fatalf("new session must start zeroed at the free tier, got %+v", sess)
	}
	if st := r.State(); st.Pending != 0 {
		t.Fatalf("fresh session pending = %v; want 0", st.Pending)
	}
}

func TestLoadSurfacesStoreFailure(t *testing.T) {
	r := NewReconciler(2, failingStore{}, NewEngine(), Config{Now: newFakeClock().Now})

	if err := r.Load(context.Background()); err == nil {
		t.Fatal("expected load to propagate store failure")
	}
}

type failingStore struct{}

func (failingStore) GetSession(context.Context, int64) (*domain.MiningSession, error) {
	return nil, errors.New("store unavailable")
}
func (failingStore) CreateSession(context.Context, int64, int) (*domain.MiningSession, error) {
	return nil, errors.New("store unavailable")
}
func (failingStore) UpdateSession(context.Context, int64, SessionUpdate) error {
	return errors.New("store unavailable")
}
func (failingStore) GetActivePurchase(context.Context, int64, int) (*domain.PackagePurchase, error) {
	return nil, errors.New("store unavailable")
}
func (failingStore) CreatePurchase(context.Context, int64, int, int64) (*domain.PackagePurchase, error) {
	return nil, errors.New("store unavailable")
}

func TestPendingMonotonic(t *testing.T) {
	r, _, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	prev := r.State().Pending
	for i := 0; i < 10; i++ {
		clock.Advance(time.Duration(i) * time.Second) // uneven steps, including zero
		cur := r.State().Pending
		if cur < prev {
			t.Fatalf("pending decreased from %v to %v at step %d", prev, cur, i)
		}
		prev = cur
	}
}

func TestOfflineAccrualFullDay(t *testing.T) {
	r, _, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	// client gone for exactly one day at the free tier (10/day)
	clock.Advance(24 * time.Hour)
	if got := r.State().Pending; math.Abs(got-10) > 1e-9 {
		t.Fatalf("pending after 86400s offline = %v; want 10", got)
	}
}

func TestClockSkewDoesNotDecreasePending(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	store.sessions[1] = &domain.MiningSession{
		UserID: 1, TierID: 0, MiningBalance: 7.5, UpdatedAt: clock.Now().Add(time.Hour),
	}

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := r.State().Pending; got != 7.5 {
		t.Fatalf("pending with lastSync in the future = %v; want snapshot 7.5", got)
	}
}

func TestExpiryClipping(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	t0 := clock.Now()

	// paid tier purchased so that the contract ends exactly 1000s after t0
	contractEnd := t0.Add(1000 * time.Second)
	store.purchases[purchaseKey{1, 2}] = &domain.PackagePurchase{
		UserID: 1, TierID: 2, PurchasedAt: contractEnd.Add(-DefaultContractHours * time.Hour),
	}
	store.sessions[1] = &domain.MiningSession{
		UserID: 1, TierID: 2, MiningBalance: 3, UpdatedAt: t0,
	}

	clock.Advance(5000 * time.Second)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	tier2, _ := TierByID(2)
	rate := NewEngine().RatePerSecond(tier2)
	want := 3 + rate*1000 // credit for 1000s, not 5000s

	st := r.State()
	if math.Abs(st.Pending-want) > 1e-9 {
		t.Fatalf("pending = %v; want %v (accrual clipped at contract end)", st.Pending, want)
	}
	if st.EffectiveTierID != 0 {
		t.Fatalf("effective tier after expiry = %d; want 0", st.EffectiveTierID)
	}
}

func TestExpiredBeforeLastSyncNoFurtherAccrual(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	t0 := clock.Now()

	// contract ended an hour before the last snapshot was written
	store.purchases[purchaseKey{1, 1}] = &domain.PackagePurchase{
		UserID: 1, TierID: 1, PurchasedAt: t0.Add(-DefaultContractHours*time.Hour - time.Hour),
	}
	store.sessions[1] = &domain.MiningSession{
		UserID: 1, TierID: 1, MiningBalance: 42, UpdatedAt: t0,
	}

	clock.Advance(10 * time.Hour)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	st := r.State()
	if st.Pending != 42 {
		t.Fatalf("pending = %v; want snapshot 42 unchanged", st.Pending)
	}
	if st.EffectiveTierID != 0 {
		t.Fatalf("effective tier = %d; want 0", st.EffectiveTierID)
	}
}

func TestSyncAdvancesSnapshotAndPersistsEffectiveTier(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	t0 := clock.Now()
	store.purchases[purchaseKey{1, 1}] = &domain.PackagePurchase{
		UserID: 1, TierID: 1, PurchasedAt: t0.Add(-DefaultContractHours*time.Hour + 500*time.Second),
	}
	store.sessions[1] = &domain.MiningSession{UserID: 1, TierID: 1, UpdatedAt: t0}

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	// cross the contract boundary, then flush
	clock.Advance(2000 * time.Second)
	if err := r.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	tier1, _ := TierByID(1)
	want := NewEngine().RatePerSecond(tier1) * 500

	sess, _ := store.GetSession(context.Background(), 1)
	if math.Abs(sess.MiningBalance-want) > 1e-9 {
		t.Fatalf("persisted balance = %v; want %v", sess.MiningBalance, want)
	}
	if sess.TierID != 0 {
		t.Fatalf("persisted tier = %d; want 0 after expiry", sess.TierID)
	}

	// accrual continues at the free rate from the new snapshot
	clock.Advance(100 * time.Second)
	wantLive := want + NewEngine().RatePerSecond(FreeTier())*100
	if got := r.State().Pending; math.Abs(got-wantLive) > 1e-9 {
		t.Fatalf("pending after sync = %v; want %v", got, wantLive)
	}
}

func TestSyncFailureLeavesLocalStateUntouched(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.Advance(300 * time.Second)
	before := r.State().Pending

	store.failUpdates = true
	if err := r.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if got := r.State().Pending; got != before {
		t.Fatalf("pending changed across failed sync: %v -> %v", before, got)
	}

	// retry succeeds and loses nothing
	store.failUpdates = false
	if err := r.Sync(context.Background()); err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	sess, _ := store.GetSession(context.Background(), 1)
	if math.Abs(sess.MiningBalance-before) > 1e-9 {
		t.Fatalf("persisted balance = %v; want %v", sess.MiningBalance, before)
	}
}

func TestClaimZeroesPendingAndAddsToTotal(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.Advance(6 * time.Hour)
	beforeClaim := r.State().Pending
	if beforeClaim <= 0 {
		t.Fatal("expected positive pending before claim")
	}

	claimed, err := r.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if math.Abs(claimed-beforeClaim) > 1e-9 {
		t.Fatalf("claimed %v; want pending before claim %v", claimed, beforeClaim)
	}

	st := r.State()
	if st.Pending != 0 {
		t.Fatalf("pending after claim = %v; want 0", st.Pending)
	}
	if math.Abs(st.TotalMined-beforeClaim) > 1e-9 {
		t.Fatalf("total mined = %v; want %v", st.TotalMined, beforeClaim)
	}

	sess, _ := store.GetSession(context.Background(), 1)
	if sess.MiningBalance != 0 || math.Abs(sess.TotalMined-beforeClaim) > 1e-9 {
		t.Fatalf("persisted session after claim = %+v", sess)
	}
	if !sess.LastClaimTime.Equal(clock.Now()) {
		t.Fatalf("last claim time = %v; want %v", sess.LastClaimTime, clock.Now())
	}
}

func TestDoubleClaimYieldsZero(t *testing.T) {
	r, _, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := r.Claim(context.Background()); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	claimed, err := r.Claim(context.Background())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("second immediate claim = %v; want 0", claimed)
	}
}

func TestClaimFailurePropagatesAndKeepsPending(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.Advance(time.Hour)
	before := r.State().Pending

	store.failUpdates = true
	if _, err := r.Claim(context.Background()); err == nil {
		t.Fatal("expected claim error when store is down")
	}
	if got := r.State().Pending; got != before {
		t.Fatalf("pending after failed claim = %v; want %v", got, before)
	}
}

func TestSetTierCarriesPendingOver(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	clock.Advance(12 * time.Hour)
	pendingAtSwitch := r.State().Pending

	if _, err := store.CreatePurchase(context.Background(), 1, 3, 500); err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if err := r.SetTier(context.Background(), 3); err != nil {
		t.Fatalf("set tier: %v", err)
	}

	st := r.State()
	if math.Abs(st.Pending-pendingAtSwitch) > 1e-9 {
		t.Fatalf("pending after switch = %v; want %v (additive, not reset)", st.Pending, pendingAtSwitch)
	}
	if st.TierID != 3 {
		t.Fatalf("tier after switch = %d; want 3", st.TierID)
	}

	// accrual continues at the new rate on top of the carried balance
	clock.Advance(100 * time.Second)
	tier3, _ := TierByID(3)
	want := pendingAtSwitch + NewEngine().RatePerSecond(tier3)*100
	if got := r.State().Pending; math.Abs(got-want) > 1e-9 {
		t.Fatalf("pending 100s after switch = %v; want %v", got, want)
	}
}

func TestSetTierInvalidRejectedWithoutStateChange(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	clock.Advance(time.Minute)
	before := r.State()
	updatesBefore := store.updateCount

	if err := r.SetTier(context.Background(), 9); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("SetTier(9) err = %v; want ErrInvalidTier", err)
	}
	after := r.State()
	if after.TierID != before.TierID || after.Pending != before.Pending {
		t.Fatalf("state changed on invalid tier: %+v -> %+v", before, after)
	}
	if store.updateCount != updatesBefore {
		t.Fatal("invalid tier must not touch the store")
	}
}

func TestSetTierRequiresPurchase(t *testing.T) {
	r, _, _ := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.SetTier(context.Background(), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetTier without purchase err = %v; want ErrNotFound", err)
	}
}

func TestStaleSyncDoesNotOverwriteClaim(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	clock.Advance(time.Hour)

	// a claim lands while the sync's write is in flight; the sync must not
	// roll the zeroed balance back to its stale pending value
	store.onUpdate = func() {
		if _, err := r.Claim(context.Background()); err != nil {
			t.Errorf("claim during sync: %v", err)
		}
	}

	if err := r.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := r.State().Pending; got != 0 {
		t.Fatalf("pending after claim-during-sync = %v; want 0", got)
	}
}

func TestRenewalOverwritesContractWindow(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := store.CreatePurchase(context.Background(), 1, 1, 100); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := r.SetTier(context.Background(), 1); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	firstEnd := r.State().ContractEnd

	// renew the same tier 10 hours later; the old window must be replaced,
	// not accumulated alongside
	clock.Advance(10 * time.Hour)
	if _, err := store.CreatePurchase(context.Background(), 1, 1, 100); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := r.SetTier(context.Background(), 1); err != nil {
		t.Fatalf("set tier after renewal: %v", err)
	}

	secondEnd := r.State().ContractEnd
	wantEnd := clock.Now().Add(DefaultContractHours * time.Hour)
	if !secondEnd.Equal(wantEnd) {
		t.Fatalf("contract end after renewal = %v; want %v", secondEnd, wantEnd)
	}
	if !secondEnd.After(firstEnd) {
		t.Fatalf("renewal did not extend the window: %v -> %v", firstEnd, secondEnd)
	}
	if len(store.purchases) != 1 {
		t.Fatalf("expected a single purchase row after renewal, got %d", len(store.purchases))
	}

	// accrual keeps the elevated rate past the original end
	clock.Advance(DefaultContractHours*time.Hour - 5*time.Hour)
	tier1, _ := TierByID(1)
	st := r.State()
	if st.EffectiveTierID != tier1.ID {
		t.Fatalf("effective tier inside renewed window = %d; want %d", st.EffectiveTierID, tier1.ID)
	}
}

func TestExternalChangeTriggersFreshLoad(t *testing.T) {
	r, store, clock := newTestReconciler(t, 1)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	clock.Advance(time.Minute)

	// admin bumps the balance out of band
	sess := store.sessions[1]
	sess.MiningBalance = 1000
	sess.UpdatedAt = clock.Now()

	// reconciler answers the notification with a reload, not a merge
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := r.State().Pending; got < 1000 {
		t.Fatalf("pending after external adjustment = %v; want >= 1000", got)
	}
}
