package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/crypto"

	"github.com/mattn/go-sqlite3"
)

// DefaultFileName is the database file name inside the data directory.
const DefaultFileName = "database.sqlite"

// Options tunes how a store is created.
type Options struct {
	KDF crypto.Argon2Params
}

// SQLiteStorage is an open, unlocked encrypted store.
type SQLiteStorage struct {
	db     *sql.DB
	keys   *crypto.Keyring
	dbPath string
}

// Exists reports whether a store file is present at dbPath. The parent
// directory is created if missing; any error is treated as "not initialized".
func Exists(dbPath string) bool {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		slog.Debug("failed to create data directory", "path", filepath.Dir(dbPath), "error", err)
		return false
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Open opens the store at dbPath with passphrase, creating it if absent.
// Every failure is reported as common.ErrInitialization.
func Open(ctx context.Context, dbPath, passphrase string, opts Options) (*SQLiteStorage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInitialization, err)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: %w", common.ErrInitialization, crypto.ErrEmptyPassphrase)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %w", common.ErrInitialization, err)
	}

	created := !Exists(dbPath)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", common.ErrInitialization, err)
	}

	// One connection: every caller is serialized anyway, and a single
	// connection keeps transactions and reads on the same session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s, err := open(ctx, db, dbPath, passphrase, opts)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrInitialization, err)
	}

	if err := ensureDBPermissions(dbPath); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrInitialization, err)
	}

	slog.Info("opened store", "path", dbPath, "created", created)
	return s, nil
}

func open(ctx context.Context, db *sql.DB, dbPath, passphrase string, opts Options) (*SQLiteStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{db: db, dbPath: dbPath}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}

	keys, err := unlockKeyring(ctx, db, passphrase, opts)
	if err != nil {
		return nil, err
	}
	s.keys = keys
	return s, nil
}

// Close destroys the key material and closes the database.
func (s *SQLiteStorage) Close() error {
	if s == nil {
		return nil
	}
	s.keys.Destroy()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// NewCheckpointManager creates a new checkpoint manager for this storage instance.
func (s *SQLiteStorage) NewCheckpointManager() (*CheckpointManager, error) {
	return NewCheckpointManager(s.db, s.dbPath)
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func ensureDBPermissions(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Chmod(p, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set permissions on %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
