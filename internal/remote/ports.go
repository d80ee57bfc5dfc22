package remote

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Change operations carried by notification events. Consumers must not rely
// on the payload beyond "something changed": delivery is unordered and
// at-least-once.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Ports for the remote ledger boundary.
type (
	// Store is the authoritative row store. Every call is scoped to the
	// owner's rows; ownership itself is enforced remotely.
	Store interface {
		// CurrentUser returns the authenticated owner ID, or
		// core.ErrUnauthenticated when no session exists.
		CurrentUser(ctx context.Context) (string, error)

		// Query returns all of the owner's transactions, newest first
		// (created_at descending, ties broken by id descending).
		Query(ctx context.Context, ownerID string) ([]core.Transaction, error)

		Insert(ctx context.Context, ownerID string, f core.TransactionFields) (core.Transaction, error)
		Update(ctx context.Context, id string, f core.TransactionFields) (core.Transaction, error)
		Delete(ctx context.Context, id string) error
	}

	// Notifier is the change-notification channel for a resource.
	Notifier interface {
		// Subscribe delivers every change event for the resource to fn until
		// the subscription is cancelled. fn is called from the notifier's own
		// goroutine and must not block.
		Subscribe(ctx context.Context, resource string, fn func(ChangeEvent)) (Subscription, error)

		// Publish announces a change on the resource, best effort.
		Publish(ctx context.Context, resource string, ev ChangeEvent) error
	}

	Subscription interface {
		Cancel() error
	}
)

// ChangeEvent says that a row of a resource changed. EventID exists only so
// duplicate deliveries can be told apart in logs.
type ChangeEvent struct {
	EventID   string    `json:"event_id"`
	Op        string    `json:"op"`
	RowID     string    `json:"row_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
