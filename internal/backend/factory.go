package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/export"
	"fintrack/internal/identity/local"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/prefs"
	"fintrack/internal/redisbus"
	"fintrack/internal/storage"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create opens the data stores, the optional change bus and the optional
// spreadsheet exporter. On error everything opened so far is released.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Services, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		closers []func() error
		svc     = &Services{}
	)
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Services, error) {
		if cerr := cleanup(); cerr != nil {
			f.logger.Warn("Cleanup after failed start", log.FieldError, cerr)
		}
		return nil, err
	}

	var (
		records store.Records
		users   local.UserStore
		kv      prefs.KV
	)
	switch config.Data {
	case SQLiteData:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize SQLite repository: %w", err))
		}
		records, users, kv = repo, repo, repo.Preferences()
		closers = append(closers, repo.Close)
		svc.Health = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return repo.Ping(ctx)
		}
		f.logger.Info("Initialized SQLite data backend", "db_path", config.SQLiteDBPath)
	case MemoryData:
		mem := memory.New()
		if config.MemorySeedFile != "" {
			var err error
			if mem, err = memory.NewFromFile(config.MemorySeedFile); err != nil {
				return fail(fmt.Errorf("failed to seed memory backend: %w", err))
			}
		}
		records, users, kv = mem, local.NewMemoryUsers(), prefs.NewMemoryKV()
		closers = append(closers, mem.Close)
		svc.Health = func(context.Context) error { return nil }
		f.logger.Info("Initialized memory data backend", "seed_file", config.MemorySeedFile)
	}

	bus, err := f.createBus(ctx, config)
	if err != nil {
		return fail(err)
	}
	opts := []store.Option{store.WithLogger(f.logger)}
	if bus != nil {
		svc.Bus = bus
		closers = append(closers, bus.Close)
		opts = append(opts, store.WithPublisher(bus))
	}

	svc.Store = store.New(records, opts...)

	svc.Identity = local.New(users, config.Auth, f.logger)

	svc.Prefs, err = prefs.Open(kv, f.logger)
	if err != nil {
		return fail(fmt.Errorf("failed to open preferences: %w", err))
	}

	if config.Sheets != nil {
		svc.Sheets, err = export.NewSheetsExporter(ctx, *config.Sheets, f.logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize sheets exporter: %w", err))
		}
		f.logger.Info("Initialized sheets exporter", "spreadsheet_id", config.Sheets.SpreadsheetID)
	}

	svc.Cleanup = cleanup
	return svc, nil
}

func (f *DefaultFactory) createBus(ctx context.Context, config Config) (notify.Bus, error) {
	origin := notify.NewOrigin()
	switch config.Notify {
	case AMQPNotify:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, origin, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP change bus", "exchange", config.AMQPExchange, "origin", origin)
		return client, nil
	case RedisNotify:
		bus, err := redisbus.Dial(ctx, config.RedisAddr, config.RedisChannel, origin, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis change bus: %w", err)
		}
		f.logger.Info("Initialized Redis change bus", "channel", config.RedisChannel, "origin", origin)
		return bus, nil
	default:
		return nil, nil
	}
}
