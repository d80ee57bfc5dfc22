package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/remote"
)

// Coordinator states. Every reconciliation cycle goes Loading -> Ready, or
// Loading -> Error on a failed fetch; the next trigger moves Error back to
// Loading.
const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

type State string

// Config holds coordinator tuning.
type Config struct {
	// Resource is the change-notification resource to subscribe to.
	Resource string

	// FetchTimeout bounds a single reconciliation fetch.
	FetchTimeout time.Duration

	// CoalesceDelay is how long to sit on a trigger before fetching, so a
	// burst of notifications becomes one fetch. Zero disables the delay.
	CoalesceDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Resource:      "transactions",
		FetchTimeout:  10 * time.Second,
		CoalesceDelay: 150 * time.Millisecond,
	}
}

// SnapshotCache persists the last good snapshot so a restart can show
// stale-but-available data before the first fetch completes.
type SnapshotCache interface {
	Load(ctx context.Context, ownerID string) ([]core.Transaction, error)
	Save(ctx context.Context, ownerID string, records []core.Transaction) error
}

// Coordinator owns the subscription to the change-notification channel and
// is the single writer of the ledger store. Any notification (or an explicit
// Refresh) schedules a reconciliation: a full owner-scoped fetch whose result
// replaces the snapshot under a sequence-number guard, so a reconciliation
// that completes late can never overwrite one that completed earlier with
// fresher data. At most one fetch is in flight and at most one is pending.
type Coordinator struct {
	remote   remote.Store
	notifier remote.Notifier
	ledger   *ledger.Store
	cache    SnapshotCache
	config   Config

	seq atomic.Uint64

	mu      sync.Mutex
	running bool
	owner   string
	state   State
	lastErr error
	sub     remote.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
	kick    chan struct{}
	cancel  context.CancelFunc
}

// New creates a coordinator. notifier and cache may be nil: without a
// notifier only explicit Refresh calls trigger reconciliation, without a
// cache there is no warm start.
func New(store remote.Store, notifier remote.Notifier, ledgerStore *ledger.Store, cache SnapshotCache, config Config) *Coordinator {
	return &Coordinator{
		remote:   store,
		notifier: notifier,
		ledger:   ledgerStore,
		cache:    cache,
		config:   config,
		state:    StateIdle,
	}
}

// Activate resolves the current user, opens the change subscription and
// kicks off the first reconciliation. It is idempotent: activating a running
// coordinator is a no-op. Without an authenticated user it parks in the
// error state and never fetches; a later Activate retries from scratch.
func (c *Coordinator) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	owner, err := c.remote.CurrentUser(ctx)
	if err != nil || owner == "" {
		c.setState(StateError, core.ErrUnauthenticated)
		return core.ErrUnauthenticated
	}

	var sub remote.Subscription
	if c.notifier != nil {
		sub, err = c.notifier.Subscribe(ctx, c.config.Resource, func(remote.ChangeEvent) {
			c.Refresh()
		})
		if err != nil {
			// Degraded channel: our own writes still reconcile eagerly
			// through the mutation gateway.
			slog.WarnContext(ctx, "Change subscription unavailable, relying on explicit refresh",
				"resource", c.config.Resource, "error", err)
			sub = nil
		}
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return nil
	}
	// The loop outlives the activation call; its context is cancelled by
	// Deactivate so an in-flight fetch unblocks immediately.
	loopCtx, loopCancel := context.WithCancel(context.WithoutCancel(ctx))

	c.running = true
	c.owner = owner
	c.sub = sub
	c.state = StateLoading
	c.lastErr = nil
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.kick = make(chan struct{}, 1)
	c.cancel = loopCancel
	c.mu.Unlock()

	c.warmStart(ctx, owner)

	go c.runLoop(loopCtx)
	c.Refresh()

	slog.InfoContext(ctx, "Sync coordinator activated",
		"owner", owner,
		"resource", c.config.Resource,
		"subscribed", sub != nil)

	return nil
}

// Deactivate releases the subscription, stops the loop and raises the
// sequence barrier so an in-flight fetch result is discarded instead of
// applied. Idempotent; safe to call while a fetch is in flight.
func (c *Coordinator) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	sub := c.sub
	c.sub = nil
	stopCh, doneCh := c.stopCh, c.doneCh
	cancel := c.cancel
	c.mu.Unlock()

	// Cancel the subscription first so no notification handler fires after
	// deactivation.
	if sub != nil {
		if err := sub.Cancel(); err != nil {
			slog.WarnContext(ctx, "Failed to cancel change subscription", "error", err)
		}
	}

	close(stopCh)
	cancel()

	select {
	case <-doneCh:
	case <-ctx.Done():
		c.ledger.Discard(c.seq.Add(1))
		return fmt.Errorf("wait for sync loop: %w", ctx.Err())
	}

	// Barrier: anything fetched under an older sequence can no longer land.
	c.ledger.Discard(c.seq.Add(1))
	c.setState(StateIdle, nil)

	slog.InfoContext(ctx, "Sync coordinator deactivated", "resource", c.config.Resource)
	return nil
}

// Refresh schedules one reconciliation, coalescing with any already pending.
// The mutation gateway calls this after every successful write so
// correctness does not depend on the notification channel firing.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	running, kick := c.running, c.kick
	c.mu.Unlock()
	if !running {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
		// A reconciliation is already pending; this trigger folds into it.
	}
}

// State returns the current lifecycle state and, for StateError, its cause.
func (c *Coordinator) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// IsRunning reports whether the coordinator loop is active.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// warmStart seeds the ledger from the snapshot cache. The seed goes through
// the normal sequence-guarded path, so the first completed fetch supersedes
// it.
func (c *Coordinator) warmStart(ctx context.Context, owner string) {
	if c.cache == nil {
		return
	}
	records, err := c.cache.Load(ctx, owner)
	if err != nil {
		slog.WarnContext(ctx, "Snapshot cache load failed", "owner", owner, "error", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if c.ledger.ReplaceSnapshot(c.seq.Add(1), records) {
		slog.InfoContext(ctx, "Warm-started ledger from snapshot cache",
			"owner", owner, "records", len(records))
	}
}

func (c *Coordinator) runLoop(ctx context.Context) {
	c.mu.Lock()
	stopCh, kick := c.stopCh, c.kick
	c.mu.Unlock()
	defer close(c.doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-kick:
		}

		if d := c.config.CoalesceDelay; d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			// Fold triggers that arrived during the delay into this fetch.
			select {
			case <-kick:
			default:
			}
		}

		c.reconcile(ctx)
	}
}

// reconcile performs one fetch-and-replace cycle.
func (c *Coordinator) reconcile(ctx context.Context) {
	c.setState(StateLoading, nil)
	c.ledger.MarkLoading()

	seq := c.seq.Add(1)

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	records, err := c.remote.Query(fetchCtx, c.owner)
	cancel()

	if err != nil {
		// Keep the last good snapshot visible; only the first-load flag and
		// this cycle's sequence are burned.
		c.ledger.Discard(seq)
		readErr := &core.RemoteReadError{Err: err}
		c.setState(StateError, readErr)
		slog.WarnContext(ctx, "Reconciliation fetch failed",
			"owner", c.owner, "seq", seq, "error", err)
		return
	}

	applied := c.ledger.ReplaceSnapshot(seq, records)
	if !applied {
		slog.DebugContext(ctx, "Discarded stale reconciliation result", "seq", seq)
		return
	}

	c.setState(StateReady, nil)
	slog.DebugContext(ctx, "Reconciliation applied",
		"owner", c.owner, "seq", seq, "records", len(records))

	if c.cache != nil {
		if err := c.cache.Save(ctx, c.owner, c.ledger.List()); err != nil {
			slog.WarnContext(ctx, "Snapshot cache save failed", "owner", c.owner, "error", err)
		}
	}
}

func (c *Coordinator) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.lastErr = err
	c.mu.Unlock()
}
