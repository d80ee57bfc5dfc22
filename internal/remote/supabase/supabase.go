// Package supabase implements the remote ledger store on a Supabase
// (PostgREST) table with row-level ownership.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

const table = "transactions"

// Store talks to the transactions table. The owner ID comes from the
// session established at startup; row-level security enforces ownership
// remotely, this client only scopes its queries to it.
type Store struct {
	client  *supabase.Client
	ownerID string
}

// row is the wire shape of a mutation payload. id and created_at are left to
// the remote store.
type row struct {
	OwnerID     string               `json:"user_id"`
	Amount      float64              `json:"amount"`
	Type        core.TransactionType `json:"type"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
}

// NewStore creates a client for the given project. ownerID may be empty when
// no session exists; reads and writes then fail with ErrUnauthenticated.
func NewStore(url, key, ownerID string) (*Store, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{client: client, ownerID: ownerID}, nil
}

func (s *Store) CurrentUser(ctx context.Context) (string, error) {
	if s.ownerID == "" {
		return "", core.ErrUnauthenticated
	}
	return s.ownerID, nil
}

// Query returns all of the owner's transactions, newest first.
func (s *Store) Query(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	data, _, err := s.client.From(table).
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("created_at.desc", nil).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	var transactions []core.Transaction
	if err := json.Unmarshal(data, &transactions); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}
	return transactions, nil
}

func (s *Store) Insert(ctx context.Context, ownerID string, f core.TransactionFields) (core.Transaction, error) {
	payload := row{
		OwnerID:     ownerID,
		Amount:      f.Amount,
		Type:        f.Type,
		Category:    f.Category,
		Description: f.Description,
	}

	data, _, err := s.client.From(table).Insert(payload, false, "", "representation", "").Execute()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return parseSingle(data, "insert")
}

func (s *Store) Update(ctx context.Context, id string, f core.TransactionFields) (core.Transaction, error) {
	payload := map[string]any{
		"amount":      f.Amount,
		"type":        f.Type,
		"category":    f.Category,
		"description": f.Description,
	}

	data, _, err := s.client.From(table).
		Update(payload, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	return parseSingle(data, "update")
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, _, err := s.client.From(table).
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// parseSingle decodes a PostgREST representation response, which is always a
// JSON array, and returns its first element.
func parseSingle(data []byte, op string) (core.Transaction, error) {
	var rows []core.Transaction
	if err := json.Unmarshal(data, &rows); err != nil {
		return core.Transaction{}, fmt.Errorf("parse %s response: %w", op, err)
	}
	if len(rows) == 0 {
		return core.Transaction{}, fmt.Errorf("%s returned no rows", op)
	}
	return rows[0], nil
}

var _ remote.Store = (*Store)(nil)
