package ledger

import (
	"sort"
	"sync"

	"fintrack/internal/core"
)

// Store holds the in-memory snapshot of one user's ledger. It is a cache of
// the remote store, never the source of truth: the only way records get in is
// a reconciled snapshot carrying a sequence number, and a snapshot whose
// sequence is not newer than the last applied one is discarded. That guard is
// what keeps a slow reconciliation from overwriting a faster, later one.
//
// Single-writer discipline: only the sync coordinator may call
// ReplaceSnapshot and Discard. Everyone else reads through List and Loading.
type Store struct {
	mu          sync.Mutex
	records     []core.Transaction
	lastApplied uint64
	loading     bool
	listeners   []func()
}

func NewStore() *Store {
	return &Store{}
}

// MarkLoading flags the store as loading. The flag holds from the first
// reconciliation request until the first snapshot is applied or discarded.
func (s *Store) MarkLoading() {
	s.mu.Lock()
	s.loading = s.lastApplied == 0
	s.mu.Unlock()
}

// ReplaceSnapshot atomically replaces the whole snapshot with records,
// normalized to created_at descending with ties broken by id descending.
// It reports whether the snapshot was applied; a stale sequence (not greater
// than the last applied or discarded one) is dropped without effect.
func (s *Store) ReplaceSnapshot(seq uint64, records []core.Transaction) bool {
	next := make([]core.Transaction, len(records))
	copy(next, records)
	sort.SliceStable(next, func(i, j int) bool {
		if !next[i].CreatedAt.Equal(next[j].CreatedAt) {
			return next[i].CreatedAt.After(next[j].CreatedAt)
		}
		return next[i].ID > next[j].ID
	})

	s.mu.Lock()
	if seq <= s.lastApplied {
		s.mu.Unlock()
		return false
	}
	s.lastApplied = seq
	s.records = next
	s.loading = false
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return true
}

// Discard raises the sequence barrier without touching the records. It is
// used when a reconciliation fails or the coordinator deactivates: any fetch
// still in flight with an older sequence can no longer be applied, and the
// last good snapshot stays visible.
func (s *Store) Discard(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastApplied {
		return false
	}
	s.lastApplied = seq
	s.loading = false
	return true
}

// List returns a copy of the current snapshot. Callers may hold and iterate
// it freely; it never changes under them.
func (s *Store) List() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.records))
	copy(out, s.records)
	return out
}

// Loading reports whether the first reconciliation is still outstanding.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastApplied returns the sequence number of the snapshot currently visible.
func (s *Store) LastApplied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApplied
}

// OnChange registers fn to run after every applied snapshot. Listeners are
// invoked outside the store lock, in registration order.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
