package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"fintrack/internal/prefs"
)

// PreferencesKV adapts the preferences table to the synchronous prefs.KV
// contract.
type PreferencesKV struct {
	repo *SQLiteRepository
}

func (r *SQLiteRepository) Preferences() *PreferencesKV {
	return &PreferencesKV{repo: r}
}

func (p *PreferencesKV) GetString(key string) (string, bool, error) {
	var v string
	err := p.repo.db.QueryRowContext(context.Background(),
		`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return v, true, nil
}

func (p *PreferencesKV) SetString(key, value string) error {
	_, err := p.repo.db.ExecContext(context.Background(), `
INSERT INTO preferences (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (p *PreferencesKV) GetBool(key string) (bool, bool, error) {
	s, ok, err := p.GetString(key)
	if err != nil || !ok {
		return false, ok, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false, fmt.Errorf("parse preference %s: %w", key, err)
	}
	return b, true, nil
}

func (p *PreferencesKV) SetBool(key string, value bool) error {
	return p.SetString(key, strconv.FormatBool(value))
}

var _ prefs.KV = (*PreferencesKV)(nil)
