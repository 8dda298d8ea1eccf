package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath opens a private in-memory database, mostly for tests and dry runs.
const MemoryPath = ":memory:"

type DB struct {
	*sql.DB
	now func() time.Time
}

// New opens (creating if needed) the database at dbPath and brings its schema
// up to date.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every :memory: connection is its own database.
	if dbPath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	d := &DB{DB: db, now: func() time.Time { return time.Now().UTC() }}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return d, nil
}

// dsn applies per-connection pragmas. Writers take the lock up front
// (_txlock=immediate) so read-then-write transactions never deadlock on
// lock upgrade.
func dsn(dbPath string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate"
	if dbPath == MemoryPath {
		return dbPath + "?" + params
	}
	return dbPath + "?" + params + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// migrate applies the embedded goose migrations.
func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
