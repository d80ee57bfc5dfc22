package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/remote"
)

// fakeStore gates every Query on a release channel so tests can hold a fetch
// in flight deterministically.
type fakeStore struct {
	mu      sync.Mutex
	owner   string
	records []core.Transaction
	queryErr error
	queries int

	entered chan struct{}
	release chan struct{}
}

func newFakeStore(owner string) *fakeStore {
	return &fakeStore{
		owner:   owner,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}, 16),
	}
}

func (f *fakeStore) CurrentUser(context.Context) (string, error) {
	if f.owner == "" {
		return "", core.ErrUnauthenticated
	}
	return f.owner, nil
}

func (f *fakeStore) Query(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
	f.entered <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]core.Transaction, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeStore) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *fakeStore) setRecords(records []core.Transaction) {
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
}

func (f *fakeStore) setQueryErr(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

func (f *fakeStore) Insert(context.Context, string, core.TransactionFields) (core.Transaction, error) {
	return core.Transaction{}, nil
}

func (f *fakeStore) Update(context.Context, string, core.TransactionFields) (core.Transaction, error) {
	return core.Transaction{}, nil
}

func (f *fakeStore) Delete(context.Context, string) error { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	handler  func(remote.ChangeEvent)
	canceled bool
}

type fakeSubscription struct{ n *fakeNotifier }

func (s *fakeSubscription) Cancel() error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.canceled = true
	s.n.handler = nil
	return nil
}

func (n *fakeNotifier) Subscribe(_ context.Context, _ string, fn func(remote.ChangeEvent)) (remote.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = fn
	return &fakeSubscription{n: n}, nil
}

func (n *fakeNotifier) Publish(_ context.Context, _ string, ev remote.ChangeEvent) error {
	n.mu.Lock()
	fn := n.handler
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CoalesceDelay = 0
	cfg.FetchTimeout = time.Second
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestActivateWithoutUser(t *testing.T) {
	store := newFakeStore("")
	c := New(store, &fakeNotifier{}, ledger.NewStore(), nil, testConfig())

	err := c.Activate(context.Background())
	if !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	state, stateErr := c.State()
	if state != StateError || !errors.Is(stateErr, core.ErrUnauthenticated) {
		t.Errorf("expected error state, got %s / %v", state, stateErr)
	}
	if store.queryCount() != 0 {
		t.Errorf("no fetch may be attempted without a user, got %d", store.queryCount())
	}
	if c.IsRunning() {
		t.Error("coordinator must not run without a user")
	}
}

func TestActivateFetchesAndApplies(t *testing.T) {
	store := newFakeStore("user-1")
	store.setRecords([]core.Transaction{
		{ID: "1", Type: core.Income, Amount: 100, Category: "pay", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	ledgerStore := ledger.NewStore()
	c := New(store, &fakeNotifier{}, ledgerStore, nil, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer c.Deactivate(context.Background())

	<-store.entered
	if !ledgerStore.Loading() {
		t.Error("ledger should be loading while the first fetch is in flight")
	}
	store.release <- struct{}{}

	waitFor(t, "snapshot applied", func() bool { return len(ledgerStore.List()) == 1 })
	waitFor(t, "ready state", func() bool { s, _ := c.State(); return s == StateReady })

	if ledgerStore.Loading() {
		t.Error("loading should clear after the first snapshot")
	}
}

func TestActivateIdempotent(t *testing.T) {
	store := newFakeStore("user-1")
	c := New(store, &fakeNotifier{}, ledger.NewStore(), nil, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer c.Deactivate(context.Background())
	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("second activate: %v", err)
	}

	<-store.entered
	store.release <- struct{}{}
	waitFor(t, "initial fetch", func() bool { s, _ := c.State(); return s == StateReady })

	// One loop, one initial fetch: a second Activate must not double either.
	if got := store.queryCount(); got != 1 {
		t.Errorf("query count = %d, want 1", got)
	}
}

func TestNotificationsCoalesce(t *testing.T) {
	store := newFakeStore("user-1")
	notifier := &fakeNotifier{}
	c := New(store, notifier, ledger.NewStore(), nil, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer c.Deactivate(context.Background())

	// Hold the initial fetch in flight, then burst notifications into it.
	<-store.entered
	for i := 0; i < 25; i++ {
		notifier.Publish(context.Background(), "transactions", remote.ChangeEvent{Op: remote.OpInsert})
	}
	store.release <- struct{}{}

	// Exactly one follow-up fetch for the whole burst.
	<-store.entered
	store.release <- struct{}{}
	waitFor(t, "follow-up fetch done", func() bool { s, _ := c.State(); return s == StateReady && store.queryCount() == 2 })

	// Quiet period: no further fetches appear.
	time.Sleep(50 * time.Millisecond)
	if got := store.queryCount(); got != 2 {
		t.Errorf("query count = %d, want 2 (initial + one coalesced follow-up)", got)
	}
}

func TestFetchFailureKeepsLastGoodSnapshot(t *testing.T) {
	store := newFakeStore("user-1")
	store.setRecords([]core.Transaction{
		{ID: "1", Type: core.Income, Amount: 10, Category: "pay", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	ledgerStore := ledger.NewStore()
	c := New(store, &fakeNotifier{}, ledgerStore, nil, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer c.Deactivate(context.Background())

	<-store.entered
	store.release <- struct{}{}
	waitFor(t, "first snapshot", func() bool { return len(ledgerStore.List()) == 1 })

	// Second cycle fails.
	store.setQueryErr(errors.New("connection refused"))
	c.Refresh()
	<-store.entered
	store.release <- struct{}{}

	waitFor(t, "error state", func() bool { s, _ := c.State(); return s == StateError })

	if got := ledgerStore.List(); len(got) != 1 {
		t.Fatalf("last good snapshot must stay visible, got %d records", len(got))
	}
	_, stateErr := c.State()
	var readErr *core.RemoteReadError
	if !errors.As(stateErr, &readErr) {
		t.Errorf("expected RemoteReadError, got %v", stateErr)
	}

	// The next trigger retries and recovers.
	store.setQueryErr(nil)
	c.Refresh()
	<-store.entered
	store.release <- struct{}{}
	waitFor(t, "recovery", func() bool { s, _ := c.State(); return s == StateReady })
}

func TestDeactivateDiscardsInFlightFetch(t *testing.T) {
	store := newFakeStore("user-1")
	store.setRecords([]core.Transaction{
		{ID: "late", Type: core.Income, Amount: 1, Category: "pay", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	notifier := &fakeNotifier{}
	ledgerStore := ledger.NewStore()
	c := New(store, notifier, ledgerStore, nil, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Fetch in flight; deactivate while it hangs.
	<-store.entered

	done := make(chan error, 1)
	go func() { done <- c.Deactivate(context.Background()) }()

	// Deactivate cancels the fetch context, so the in-flight query unblocks
	// on its own; its result must not land.
	if err := <-done; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if got := ledgerStore.List(); len(got) != 0 {
		t.Fatalf("in-flight result applied after deactivation: %+v", got)
	}
	if !notifier.canceled {
		t.Error("subscription must be released on deactivation")
	}
	if c.IsRunning() {
		t.Error("coordinator should not be running after deactivation")
	}

	// Deactivate is idempotent.
	if err := c.Deactivate(context.Background()); err != nil {
		t.Errorf("second deactivate: %v", err)
	}
}

func TestWarmStartSeedsAndIsSuperseded(t *testing.T) {
	cached := []core.Transaction{
		{ID: "cached", Type: core.Expense, Amount: 5, Category: "food", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	fresh := []core.Transaction{
		{ID: "fresh", Type: core.Income, Amount: 50, Category: "pay", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	store := newFakeStore("user-1")
	store.setRecords(fresh)
	ledgerStore := ledger.NewStore()
	cache := &memCache{snapshots: map[string][]core.Transaction{"user-1": cached}}
	c := New(store, &fakeNotifier{}, ledgerStore, cache, testConfig())

	if err := c.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer c.Deactivate(context.Background())

	// Cached snapshot is visible while the first fetch is in flight.
	<-store.entered
	got := ledgerStore.List()
	if len(got) != 1 || got[0].ID != "cached" {
		t.Fatalf("expected warm-start snapshot, got %+v", got)
	}

	store.release <- struct{}{}
	waitFor(t, "fresh snapshot", func() bool {
		l := ledgerStore.List()
		return len(l) == 1 && l[0].ID == "fresh"
	})

	// The applied snapshot was written back to the cache.
	waitFor(t, "cache save", func() bool {
		saved, _ := cache.Load(context.Background(), "user-1")
		return len(saved) == 1 && saved[0].ID == "fresh"
	})
}

type memCache struct {
	mu        sync.Mutex
	snapshots map[string][]core.Transaction
}

func (m *memCache) Load(_ context.Context, owner string) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[owner], nil
}

func (m *memCache) Save(_ context.Context, owner string, records []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[owner] = records
	return nil
}
