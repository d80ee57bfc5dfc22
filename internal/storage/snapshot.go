// Package storage persists the last good reconciled snapshot per owner, so a
// restart can show stale-but-available data before the first fetch completes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

type SnapshotCache struct {
	db *sql.DB
}

func NewSnapshotCache(dbPath string) (*SnapshotCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SnapshotCache{db: db}, nil
}

func (c *SnapshotCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Save replaces the cached snapshot for the owner with records, atomically.
func (c *SnapshotCache) Save(ctx context.Context, ownerID string, records []core.Transaction) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_rows WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear cached snapshot: %w", err)
	}

	const insert = `
		INSERT INTO snapshot_rows (owner_id, id, amount, type, category, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, t := range records {
		_, err := tx.ExecContext(ctx, insert,
			ownerID, t.ID, t.Amount, string(t.Type), t.Category, t.Description,
			t.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert cached row %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}

	slog.DebugContext(ctx, "Snapshot cached", "owner", ownerID, "records", len(records))
	return nil
}

// Load returns the cached snapshot for the owner, newest first. A missing
// snapshot is not an error; it loads as empty.
func (c *SnapshotCache) Load(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	const query = `
		SELECT id, amount, type, category, description, created_at
		FROM snapshot_rows
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`

	rows, err := c.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load cached snapshot: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t       core.Transaction
			typ     string
			created string
		)
		if err := rows.Scan(&t.ID, &t.Amount, &typ, &t.Category, &t.Description, &created); err != nil {
			return nil, fmt.Errorf("scan cached row: %w", err)
		}
		t.OwnerID = ownerID
		t.Type = core.TransactionType(typ)
		t.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse cached timestamp %q: %w", created, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached rows: %w", err)
	}
	return out, nil
}
