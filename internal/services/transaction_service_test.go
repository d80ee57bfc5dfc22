package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

type stubStore struct {
	owner     string
	inserts   int
	updates   int
	deletes   int
	writeErr  error
	lastOwner string
}

func (s *stubStore) CurrentUser(context.Context) (string, error) {
	if s.owner == "" {
		return "", core.ErrUnauthenticated
	}
	return s.owner, nil
}

func (s *stubStore) Query(context.Context, string) ([]core.Transaction, error) {
	return nil, nil
}

func (s *stubStore) Insert(_ context.Context, ownerID string, f core.TransactionFields) (core.Transaction, error) {
	s.inserts++
	s.lastOwner = ownerID
	if s.writeErr != nil {
		return core.Transaction{}, s.writeErr
	}
	return core.Transaction{
		ID:          "remote-1",
		OwnerID:     ownerID,
		Amount:      f.Amount,
		Type:        f.Type,
		Category:    f.Category,
		Description: f.Description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *stubStore) Update(_ context.Context, id string, f core.TransactionFields) (core.Transaction, error) {
	s.updates++
	if s.writeErr != nil {
		return core.Transaction{}, s.writeErr
	}
	return core.Transaction{ID: id, Amount: f.Amount, Type: f.Type, Category: f.Category}, nil
}

func (s *stubStore) Delete(context.Context, string) error {
	s.deletes++
	return s.writeErr
}

type stubNotifier struct {
	published []remote.ChangeEvent
	err       error
}

func (n *stubNotifier) Subscribe(context.Context, string, func(remote.ChangeEvent)) (remote.Subscription, error) {
	return nil, errors.New("not used")
}

func (n *stubNotifier) Publish(_ context.Context, _ string, ev remote.ChangeEvent) error {
	if n.err != nil {
		return n.err
	}
	n.published = append(n.published, ev)
	return nil
}

type stubRefresher struct{ refreshes int }

func (r *stubRefresher) Refresh() { r.refreshes++ }

func validFields() core.TransactionFields {
	return core.TransactionFields{Amount: 25, Type: core.Expense, Category: "Food", Description: "lunch"}
}

func TestCreateValidationSkipsRemote(t *testing.T) {
	store := &stubStore{owner: "user-1"}
	refresher := &stubRefresher{}
	svc := NewTransactionService(store, &stubNotifier{}, refresher, "transactions")

	fields := validFields()
	fields.Amount = -5
	_, err := svc.Create(context.Background(), fields)

	if !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if store.inserts != 0 {
		t.Error("validation failure must not contact the remote store")
	}
	if refresher.refreshes != 0 {
		t.Error("validation failure must not trigger reconciliation")
	}
}

func TestCreatePublishesAndRefreshes(t *testing.T) {
	store := &stubStore{owner: "user-1"}
	notifier := &stubNotifier{}
	refresher := &stubRefresher{}
	svc := NewTransactionService(store, notifier, refresher, "transactions")

	tx, err := svc.Create(context.Background(), validFields())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.ID == "" || tx.CreatedAt.IsZero() {
		t.Errorf("remote-assigned fields missing: %+v", tx)
	}
	if store.lastOwner != "user-1" {
		t.Errorf("insert scoped to %q, want user-1", store.lastOwner)
	}
	if len(notifier.published) != 1 || notifier.published[0].Op != remote.OpInsert {
		t.Errorf("expected one insert event, got %+v", notifier.published)
	}
	if notifier.published[0].EventID == "" {
		t.Error("change events should carry an event id")
	}
	if refresher.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refresher.refreshes)
	}
}

func TestCreateWithoutUser(t *testing.T) {
	store := &stubStore{}
	svc := NewTransactionService(store, &stubNotifier{}, &stubRefresher{}, "transactions")

	_, err := svc.Create(context.Background(), validFields())
	if !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if store.inserts != 0 {
		t.Error("no write without a user")
	}
}

func TestRemoteWriteErrorSurfacesCause(t *testing.T) {
	cause := errors.New("row level security violation")
	store := &stubStore{owner: "user-1", writeErr: cause}
	refresher := &stubRefresher{}
	svc := NewTransactionService(store, &stubNotifier{}, refresher, "transactions")

	_, err := svc.Create(context.Background(), validFields())

	var we *core.RemoteWriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected RemoteWriteError, got %v", err)
	}
	if we.Op != "insert" || !errors.Is(err, cause) {
		t.Errorf("wrapped error lost details: %+v", we)
	}
	if refresher.refreshes != 0 {
		t.Error("failed write must not trigger reconciliation")
	}
}

func TestUpdateAndDeleteAnnounce(t *testing.T) {
	store := &stubStore{owner: "user-1"}
	notifier := &stubNotifier{}
	refresher := &stubRefresher{}
	svc := NewTransactionService(store, notifier, refresher, "transactions")

	if _, err := svc.Update(context.Background(), "tx-9", validFields()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.Delete(context.Background(), "tx-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if store.updates != 1 || store.deletes != 1 {
		t.Errorf("remote calls: updates=%d deletes=%d", store.updates, store.deletes)
	}
	if len(notifier.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(notifier.published))
	}
	if notifier.published[0].Op != remote.OpUpdate || notifier.published[1].Op != remote.OpDelete {
		t.Errorf("unexpected ops: %+v", notifier.published)
	}
	if refresher.refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", refresher.refreshes)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	store := &stubStore{owner: "user-1"}
	notifier := &stubNotifier{err: errors.New("channel down")}
	refresher := &stubRefresher{}
	svc := NewTransactionService(store, notifier, refresher, "transactions")

	if _, err := svc.Create(context.Background(), validFields()); err != nil {
		t.Fatalf("create should survive a dead notification channel: %v", err)
	}
	if refresher.refreshes != 1 {
		t.Error("eager reconciliation must still run when publish fails")
	}
}
