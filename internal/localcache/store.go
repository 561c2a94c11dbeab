package localcache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the durable local mirror of every entity collection plus the
// running id counters. Operations are synchronous and serialized; the
// store is the fallback when the remote document store is unreachable and
// the warm-start seed on boot.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open creates (or reuses) the SQLite file at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if err := runMigrations(path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCollection stores the JSON snapshot for one collection.
func (s *Store) SaveCollection(name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, name, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("save collection %s: %w", name, err)
	}
	return nil
}

// LoadCollection returns the stored JSON snapshot. The second result is
// false when the collection has never been saved.
func (s *Store) LoadCollection(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.Get(&payload, "SELECT payload FROM collections WHERE name = ?", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load collection %s: %w", name, err)
	}
	return []byte(payload), true, nil
}

// NextID atomically increments and returns the named counter. Counters
// survive restarts so locally issued ids are never reused.
func (s *Store) NextID(counter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `INSERT INTO counters (name, value) VALUES (?, 1)
        ON CONFLICT(name) DO UPDATE SET value = value + 1
        RETURNING value`
	var value int64
	if err := s.db.Get(&value, query, counter); err != nil {
		return 0, fmt.Errorf("next id %s: %w", counter, err)
	}
	return value, nil
}

func runMigrations(path string) error {
	migrateDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
