package backend

import (
	"context"

	"fintrack/internal/export"
	"fintrack/internal/identity"
	"fintrack/internal/notify"
	"fintrack/internal/prefs"
	"fintrack/internal/store"
)

// CleanupFunc releases everything a Factory opened.
type CleanupFunc func() error

// HealthFunc reports whether the data layer can serve requests.
type HealthFunc func(ctx context.Context) error

// Services is the wired data layer of one process. Bus and Sheets are nil
// when not configured.
type Services struct {
	Store    *store.Store
	Identity identity.Backend
	Prefs    *prefs.Store
	Bus      notify.Bus
	Sheets   *export.SheetsExporter
	Health   HealthFunc
	Cleanup  CleanupFunc
}

// Factory builds the data layer from configuration.
type Factory interface {
	Create(ctx context.Context, config Config) (*Services, error)
}

// DataType selects where transactions, users and preferences live.
type DataType string

const (
	SQLiteData DataType = "sqlite"
	MemoryData DataType = "memory"
)

func (t DataType) String() string {
	return string(t)
}

func (t DataType) IsValid() bool {
	switch t {
	case SQLiteData, MemoryData:
		return true
	default:
		return false
	}
}

// NotifyType selects the cross-process change bus.
type NotifyType string

const (
	NoNotify    NotifyType = "none"
	AMQPNotify  NotifyType = "amqp"
	RedisNotify NotifyType = "redis"
)

func (t NotifyType) IsValid() bool {
	switch t {
	case NoNotify, AMQPNotify, RedisNotify:
		return true
	default:
		return false
	}
}
