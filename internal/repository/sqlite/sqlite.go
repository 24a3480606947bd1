// Package sqlite implements the repository interfaces on SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compilation just works. ":memory:" gives each test a private database.
//
// LAYOUT:
// Each aggregate has a root table plus child tables for its ordered
// collections. Child rows carry a position column and are rewritten whole
// on Save, inside a transaction.
//
//	users ─┬─ user_folders   (list = private | shared | recent)
//	       ├─ user_requests  (direction = in | out)
//	       └─ notifications
//	folders ─┬─ folder_members
//	         └─ folder_files
//	files
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/tripsync/internal/repository"
)

var _ repository.Transactor = (*DB)(nil)

// DB wraps the connection pool and hands out the per-aggregate stores.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/tripsync.db" → file-based database
//   - ":memory:"         → in-memory database for tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SINGLE CONNECTION:
	// SQLite allows one writer at a time, and every ":memory:" connection
	// would otherwise get its own empty database. One pooled connection
	// serialises access and keeps tests honest.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB     { return &UserDB{db: db} }
func (db *DB) Folders() *FolderDB { return &FolderDB{db: db} }
func (db *DB) Files() *FileDB     { return &FileDB{db: db} }

// =========================================================================
// TRANSACTIONS
// =========================================================================

type txKey struct{}

// querier is what both *sql.DB and *sql.Tx offer.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction bound to ctx, or the pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

// InTx runs fn inside a transaction. If ctx already carries one, fn joins it.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// =========================================================================
// MIGRATIONS
// =========================================================================

// Migrate creates every table. CREATE ... IF NOT EXISTS makes it safe to
// run on every start; later column additions go through
// addColumnIfNotExists.
func (db *DB) Migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                     TEXT PRIMARY KEY,
			username               TEXT NOT NULL UNIQUE COLLATE NOCASE,
			email                  TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash          TEXT NOT NULL DEFAULT '',
			github_id              INTEGER UNIQUE,
			is_private             INTEGER NOT NULL DEFAULT 0,
			new_notification_count INTEGER NOT NULL DEFAULT 0,
			created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS user_folders (
			user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			list      TEXT NOT NULL,
			position  INTEGER NOT NULL,
			folder_id TEXT NOT NULL,
			PRIMARY KEY (user_id, list, position)
		);

		CREATE TABLE IF NOT EXISTS user_requests (
			user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			direction     TEXT NOT NULL,
			position      INTEGER NOT NULL,
			other_user_id TEXT NOT NULL,
			folder_id     TEXT NOT NULL,
			PRIMARY KEY (user_id, direction, position)
		);
		CREATE INDEX IF NOT EXISTS idx_user_requests_other ON user_requests(other_user_id);

		CREATE TABLE IF NOT EXISTS notifications (
			user_id              TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			position             INTEGER NOT NULL,
			actor_id             TEXT NOT NULL,
			folder_id            TEXT NOT NULL,
			kind                 TEXT NOT NULL,
			fallback_actor_name  TEXT NOT NULL DEFAULT '',
			fallback_folder_name TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS folders (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			is_shared  INTEGER NOT NULL DEFAULT 0,
			trip_date  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS folder_members (
			folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
			position  INTEGER NOT NULL,
			user_id   TEXT NOT NULL,
			PRIMARY KEY (folder_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_folder_members_user ON folder_members(user_id);

		CREATE TABLE IF NOT EXISTS folder_files (
			folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
			position  INTEGER NOT NULL,
			file_id   TEXT NOT NULL,
			PRIMARY KEY (folder_id, position)
		);

		CREATE TABLE IF NOT EXISTS files (
			id               TEXT PRIMARY KEY,
			folder_id        TEXT NOT NULL,
			image_url        TEXT NOT NULL,
			uploaded_by      TEXT NOT NULL,
			uploaded_by_name TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			upload_date      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			trip_date        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_files_folder_uploader ON files(folder_id, uploaded_by);
	`)
	if err != nil {
		return fmt.Errorf("creating folder tables: %w", err)
	}

	// Columns added after the initial schema. addColumnIfNotExists skips
	// columns that are already there, so these run on every start.
	if err := db.addColumnIfNotExists("files", "image_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding image_hash to files: %w", err)
	}

	if err := db.addColumnIfNotExists("users", "reset_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding reset_hash to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "reset_expires", "DATETIME"); err != nil {
		return fmt.Errorf("adding reset_expires to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// =========================================================================
// HELPERS
// =========================================================================

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// likePattern wraps s for a LIKE ... ESCAPE '\' substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
