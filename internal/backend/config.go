package backend

import (
	"errors"
	"fmt"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/export"
	"fintrack/internal/identity/local"
)

// Config holds what the Factory needs, detached from the environment layout.
type Config struct {
	Data           DataType
	SQLiteDBPath   string
	MemorySeedFile string

	Notify       NotifyType
	AMQPURL      string
	AMQPExchange string
	RedisAddr    string
	RedisChannel string

	Auth local.Config

	// Sheets is nil when spreadsheet export is disabled.
	Sheets *export.SheetsConfig
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	cfg := Config{
		Data:           DataType(app.DataBackend),
		SQLiteDBPath:   app.SQLiteDBPath,
		MemorySeedFile: app.MemorySeedFile,
		Notify:         NotifyType(app.NotifyBackend),
		AMQPURL:        app.AMQPURL,
		AMQPExchange:   app.AMQPExchange,
		RedisAddr:      app.RedisAddr,
		RedisChannel:   app.RedisChannel,
		Auth: local.Config{
			Secret:     app.AuthJWTSecret,
			Issuer:     app.AuthJWTIssuer,
			SessionTTL: app.AuthSessionTTL,
			BcryptCost: app.AuthBcryptCost,
		},
	}
	if app.SheetsEnabled() {
		cfg.Sheets = &export.SheetsConfig{
			SpreadsheetID:   app.GoogleSpreadsheetID,
			SheetName:       app.GoogleSheetName,
			CredentialsJSON: app.GoogleServiceAccountJSON,
			CredentialsFile: app.GoogleServiceAccountFile,
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if !c.Data.IsValid() {
		return fmt.Errorf("invalid data backend: %s", c.Data)
	}
	if c.Data == SQLiteData && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	if c.Notify == "" {
		c.Notify = NoNotify
	}
	if !c.Notify.IsValid() {
		return fmt.Errorf("invalid notify backend: %s", c.Notify)
	}
	if c.Notify == AMQPNotify && c.AMQPURL == "" {
		return errors.New("AMQP URL is required for amqp notifications")
	}
	if c.Notify == RedisNotify && c.RedisAddr == "" {
		return errors.New("Redis address is required for redis notifications")
	}
	if c.Auth.Secret == "" {
		return errors.New("JWT secret is required")
	}
	return nil
}

// pingTimeout bounds a single health check.
const pingTimeout = 2 * time.Second
