// Package storage is the SQLite persistence for transactions, users and
// preferences.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"fintrack/internal/core"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable, for health checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectOwnerTransactions = `
SELECT logical_id, owner_id, amount, description, category, kind, occurred_at
FROM transactions
WHERE owner_id = ?
ORDER BY occurred_at DESC, row_id DESC`

// Load returns the owner's rows as raw records. Decoding happens in the store
// so that bad rows are dropped under the same policy as every backend.
func (r *SQLiteRepository) Load(ctx context.Context, ownerID string) ([]core.RawRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectOwnerTransactions, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.RawRecord
	for rows.Next() {
		var id, owner, amount, desc, cat, kind, when string
		if err := rows.Scan(&id, &owner, &amount, &desc, &cat, &kind, &when); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, core.RawRecord{
			core.FieldID:          id,
			core.FieldOwnerID:     owner,
			core.FieldAmount:      amount,
			core.FieldDescription: desc,
			core.FieldCategory:    cat,
			core.FieldKind:        kind,
			core.FieldOccurredAt:  when,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO transactions (logical_id, owner_id, amount, description, category, kind, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Amount.String(), t.Description, t.Category, string(t.Kind), core.FormatTime(t.OccurredAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// DeleteMatching uses the (owner_id, logical_id) index instead of scanning.
func (r *SQLiteRepository) DeleteMatching(ctx context.Context, ownerID, logicalID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE owner_id = ? AND logical_id = ?`, ownerID, logicalID)
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepository) Overwrite(ctx context.Context, t core.Transaction) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE transactions
SET amount = ?, description = ?, category = ?, kind = ?, occurred_at = ?
WHERE owner_id = ? AND logical_id = ?`,
		t.Amount.String(), t.Description, t.Category, string(t.Kind), core.FormatTime(t.OccurredAt),
		t.OwnerID, t.ID)
	if err != nil {
		return 0, fmt.Errorf("update transaction: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

var _ store.Records = (*SQLiteRepository)(nil)
