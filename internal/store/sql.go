package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQL keeps cache entries in a sqlite3 or postgres table.
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite serialises writers anyway; one connection also keeps
		// in-memory databases alive and shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s cache: %w", driver, err)
	}
	if err := migrateUp(db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQL{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB, driver string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	var target database.Driver
	switch driver {
	case "sqlite3":
		target, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "postgres":
		target, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("no migration driver for %q", driver)
	}
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE cache_key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if s.now().UnixMilli() > expiresAt {
		_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = $1`, key)
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(value), expiresAt,
	)
	return err
}

// Purge removes every expired entry and returns how many were deleted.
func (s *SQL) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < $1`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQL) Close() error {
	return s.db.Close()
}
