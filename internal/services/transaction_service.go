package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

// Refresher schedules a reconciliation of the ledger snapshot.
type Refresher interface {
	Refresh()
}

// TransactionService is the mutation gateway: it validates user intents
// locally, issues the remote writes, and makes sure the snapshot catches up
// afterwards. Every successful write both publishes a change event (so other
// sessions learn about it) and triggers one local reconciliation (so our own
// view is correct even when the notification channel is down).
type TransactionService struct {
	remote    remote.Store
	notifier  remote.Notifier
	refresher Refresher
	resource  string
}

// NewTransactionService creates the gateway. notifier and refresher may be
// nil; missing pieces degrade to the remaining reconciliation path.
func NewTransactionService(store remote.Store, notifier remote.Notifier, refresher Refresher, resource string) *TransactionService {
	return &TransactionService{
		remote:    store,
		notifier:  notifier,
		refresher: refresher,
		resource:  resource,
	}
}

// Create validates fields and inserts a new transaction. The remote store
// assigns id and created_at.
func (s *TransactionService) Create(ctx context.Context, fields core.TransactionFields) (core.Transaction, error) {
	owner, err := s.remote.CurrentUser(ctx)
	if err != nil {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	if err := fields.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := s.remote.Insert(ctx, owner, fields)
	if err != nil {
		return core.Transaction{}, &core.RemoteWriteError{Op: "insert", Err: err}
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", tx.ID, "type", tx.Type, "amount", tx.Amount, "category", tx.Category)

	s.announce(ctx, remote.OpInsert, tx.ID)
	return tx, nil
}

// Update validates fields and rewrites the editable part of a transaction in
// place. id and created_at never change.
func (s *TransactionService) Update(ctx context.Context, id string, fields core.TransactionFields) (core.Transaction, error) {
	if _, err := s.remote.CurrentUser(ctx); err != nil {
		return core.Transaction{}, core.ErrUnauthenticated
	}
	if err := fields.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := s.remote.Update(ctx, id, fields)
	if err != nil {
		return core.Transaction{}, &core.RemoteWriteError{Op: "update", Err: err}
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id)

	s.announce(ctx, remote.OpUpdate, id)
	return tx, nil
}

// Delete removes a transaction by id.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	if _, err := s.remote.CurrentUser(ctx); err != nil {
		return core.ErrUnauthenticated
	}

	if err := s.remote.Delete(ctx, id); err != nil {
		return &core.RemoteWriteError{Op: "delete", Err: err}
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)

	s.announce(ctx, remote.OpDelete, id)
	return nil
}

// announce publishes a change event and schedules the eager reconciliation.
// Publication is best effort: the write already succeeded remotely.
func (s *TransactionService) announce(ctx context.Context, op, rowID string) {
	if s.notifier != nil {
		ev := remote.ChangeEvent{
			EventID:   uuid.New().String(),
			Op:        op,
			RowID:     rowID,
			Timestamp: time.Now().UTC(),
		}
		if err := s.notifier.Publish(ctx, s.resource, ev); err != nil {
			slog.WarnContext(ctx, "Failed to publish change event",
				"op", op, "row_id", rowID, "error", err)
		}
	}
	if s.refresher != nil {
		s.refresher.Refresh()
	}
}
