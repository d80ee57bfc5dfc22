package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	// Transaction is a single ledger row as stored remotely. ID and CreatedAt
	// are assigned by the remote store and never change afterwards; Amount is
	// always a non-negative magnitude with the sign carried by Type.
	Transaction struct {
		ID          string          `json:"id"`
		OwnerID     string          `json:"user_id"`
		Amount      float64         `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	// TransactionFields is the user-editable part of a transaction, used as
	// mutation input for create and update.
	TransactionFields struct {
		Amount      float64         `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
	}
)

var (
	ErrNegativeAmount = errors.New("amount must be non-negative")
	ErrInvalidType    = errors.New("type must be income or expense")
	ErrEmptyCategory  = errors.New("empty category")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (f TransactionFields) Validate() error {
	if f.Amount < 0 {
		return &ValidationError{Field: "amount", Err: ErrNegativeAmount}
	}
	if !f.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if strings.TrimSpace(f.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	return nil
}

// DayKey returns the calendar-date bucket key for the transaction, a canonical
// YYYY-MM-DD derived from CreatedAt in UTC so bucketing never depends on a
// display locale or the time of day.
func (t Transaction) DayKey() string {
	return t.CreatedAt.UTC().Format("2006-01-02")
}
