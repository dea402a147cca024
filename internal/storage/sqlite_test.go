package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/crypto"
	"github.com/Veraticus/coffer/internal/model"
)

const testPassphrase = "correct horse battery staple"

func testOptions() Options {
	return Options{KDF: crypto.Argon2Params{
		Memory:      crypto.MinArgon2MemoryKiB,
		Iterations:  1,
		Parallelism: 1,
	}}
}

// createTestStorage opens a fresh store in a temp dir and closes it on cleanup.
func createTestStorage(t *testing.T) (*SQLiteStorage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	store, err := Open(context.Background(), dbPath, testPassphrase, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, dbPath
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(model.DateLayout, s)
	require.NoError(t, err)
	return d
}

func newTestTransaction(t *testing.T, date, name string, types ...string) model.Transaction {
	t.Helper()
	if len(types) == 0 {
		types = []string{"Debit"}
	}
	return model.Transaction{
		Date:             mustDate(t, date),
		Name:             name,
		Category:         "Food",
		Amount:           decimal.RequireFromString("-12.50"),
		Bank:             "Chase",
		TransactionTypes: types,
	}
}

func TestExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	dbPath := filepath.Join(dir, DefaultFileName)

	assert.False(t, Exists(dbPath))

	info, err := os.Stat(dir)
	require.NoError(t, err, "probe should create the data directory")
	assert.True(t, info.IsDir())

	store, err := Open(context.Background(), dbPath, testPassphrase, testOptions())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.True(t, Exists(dbPath))
}

func TestExists_DirectoryIsNotAStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.MkdirAll(dbPath, 0750))

	assert.False(t, Exists(dbPath))
}

func TestOpen_ReopenWithSamePassphrase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	store, err := Open(ctx, dbPath, testPassphrase, testOptions())
	require.NoError(t, err)

	txn := newTestTransaction(t, "2024-03-01", "Coffee")
	_, err = store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, dbPath, testPassphrase, testOptions())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Name)
	assert.Equal(t, dbPath, reopened.Path())
}

func TestOpen_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	store, err := Open(ctx, dbPath, testPassphrase, testOptions())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(ctx, dbPath, "not the passphrase", testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInitialization)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestOpen_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	tests := []struct {
		name       string
		path       string
		passphrase string
	}{
		{name: "empty path", path: "", passphrase: testPassphrase},
		{name: "empty passphrase", path: dbPath, passphrase: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.path, tt.passphrase, testOptions())
			assert.ErrorIs(t, err, common.ErrInitialization)
		})
	}
}

func TestOpen_NotADatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(dbPath, []byte(strings.Repeat("not a sqlite database ", 64)), 0o600))

	_, err := Open(context.Background(), dbPath, testPassphrase, testOptions())
	assert.ErrorIs(t, err, common.ErrInitialization)
}

func TestOpen_NewerSchemaRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), dbPath, testPassphrase, testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInitialization)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_RestrictsPermissions(t *testing.T) {
	_, dbPath := createTestStorage(t)

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpen_NoPlaintextOnDisk(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	store, err := Open(ctx, dbPath, testPassphrase, testOptions())
	require.NoError(t, err)

	txn := model.Transaction{
		Date:             mustDate(t, "2024-05-05"),
		Name:             "ZanzibarTeaHouse",
		Category:         "QuixoticLeisure",
		Amount:           decimal.RequireFromString("-987654.32"),
		Bank:             "VelvetMutualBank",
		TransactionTypes: []string{"WireXferMarker"},
	}
	_, err = store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var onDisk []byte
	for _, p := range []string{dbPath, dbPath + "-wal"} {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		require.NoError(t, err)
		onDisk = append(onDisk, data...)
	}

	for _, secret := range []string{"ZanzibarTeaHouse", "QuixoticLeisure", "987654.32", "VelvetMutualBank", "WireXferMarker"} {
		assert.NotContains(t, string(onDisk), secret)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestClose_NilSafe(t *testing.T) {
	var s *SQLiteStorage
	assert.NoError(t, s.Close())
}
