package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schema drives golang-migrate over a private connection, so closing it never
// touches the repository's pool.
type schema struct {
	db *sql.DB
	m  *migrate.Migrate
}

func openSchema(dbPath string) (*schema, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &schema{db: db, m: m}, nil
}

func (s *schema) close() {
	s.m.Close()
	s.db.Close()
}

// version is 0 for an empty database. A dirty schema is an error: it needs a
// manual fix before the service can start.
func (s *schema) version() (uint, error) {
	v, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// RunMigrations applies every pending up migration to the database at dbPath
// and returns the resulting schema version.
func RunMigrations(dbPath string) (uint, error) {
	s, err := openSchema(dbPath)
	if err != nil {
		return 0, err
	}
	defer s.close()

	if err := s.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return s.version()
}

// RollbackMigrations applies down migrations until the schema is at target.
func RollbackMigrations(dbPath string, target uint) (uint, error) {
	s, err := openSchema(dbPath)
	if err != nil {
		return 0, err
	}
	defer s.close()

	cur, err := s.version()
	if err != nil {
		return 0, err
	}
	if target >= cur {
		return cur, nil
	}
	if target == 0 {
		err = s.m.Down()
	} else {
		err = s.m.Migrate(target)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("roll back migrations: %w", err)
	}
	return s.version()
}
