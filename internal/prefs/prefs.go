// Package prefs stores the user's display preferences and exposes them as
// live values.
package prefs

import (
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/live"
	"fintrack/internal/log"
)

const (
	KeyDarkTheme    = "dark_theme"
	KeyCurrencyCode = "currency_code"

	DefaultCurrencyCode = "USD"
)

type Store struct {
	kv     KV
	logger *log.Logger

	// mu orders persist-then-publish so that concurrent setters publish in
	// the order they were persisted.
	mu           sync.Mutex
	darkTheme    *live.Value[bool]
	currencyCode *live.Value[string]
}

// Open reads the persisted preferences, falling back to defaults for missing
// keys. A read error is returned because it usually means a broken backend.
func Open(kv KV, logger *log.Logger) (*Store, error) {
	dark, _, err := kv.GetBool(KeyDarkTheme)
	if err != nil {
		return nil, fmt.Errorf("load dark theme: %w", err)
	}
	code, ok, err := kv.GetString(KeyCurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("load currency code: %w", err)
	}
	if !ok {
		code = DefaultCurrencyCode
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		kv:           kv,
		logger:       logger.WithComponent(log.ComponentPrefs),
		darkTheme:    live.NewValue(dark),
		currencyCode: live.NewValue(code),
	}, nil
}

func (s *Store) DarkTheme() *live.Value[bool] {
	return s.darkTheme
}

func (s *Store) CurrencyCode() *live.Value[string] {
	return s.currencyCode
}

// Snapshot returns both preferences at once.
func (s *Store) Snapshot() core.Preferences {
	return core.Preferences{
		DarkTheme:    s.darkTheme.Get(),
		CurrencyCode: s.currencyCode.Get(),
	}
}

// SetDarkTheme persists the flag, then publishes it. Nothing is published if
// persisting fails.
func (s *Store) SetDarkTheme(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetBool(KeyDarkTheme, on); err != nil {
		return fmt.Errorf("save dark theme: %w", err)
	}
	s.darkTheme.Set(on)
	s.logger.Info("Preference updated", "key", KeyDarkTheme, "value", on)
	return nil
}

// SetCurrencyCode accepts any string. Unknown codes render with the generic
// currency sign.
func (s *Store) SetCurrencyCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetString(KeyCurrencyCode, code); err != nil {
		return fmt.Errorf("save currency code: %w", err)
	}
	s.currencyCode.Set(code)
	s.logger.Info("Preference updated", "key", KeyCurrencyCode, "value", code)
	return nil
}
