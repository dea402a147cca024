package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/coffer/internal/model"
)

func setupCheckpointManager(t *testing.T) (*SQLiteStorage, *CheckpointManager) {
	t.Helper()
	store, _ := createTestStorage(t)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	return store, cm
}

func TestCheckpointManager_Create(t *testing.T) {
	store, cm := setupCheckpointManager(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", "Card")
	_, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "manual snapshot")
	require.NoError(t, err)

	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, "manual snapshot", info.Description)
	assert.Equal(t, 1, info.Transactions)
	assert.Equal(t, 1, info.Categories)
	assert.Equal(t, 1, info.Banks)
	assert.Equal(t, 2, info.TransactionTypes)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.False(t, info.IsAuto)
	assert.Positive(t, info.FileSize)

	stat, err := os.Stat(filepath.Join(cm.Dir(), "before-import.db"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), stat.Mode().Perm())

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)
}

func TestCheckpointManager_SnapshotOpensWithSamePassphrase(t *testing.T) {
	store, cm := setupCheckpointManager(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch")
	_, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	_, err = cm.Create(ctx, "snap", "")
	require.NoError(t, err)

	snap, err := Open(ctx, filepath.Join(cm.Dir(), "snap.db"), testPassphrase, testOptions())
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	page, err := snap.ListPage(ctx, 10, model.FirstPage())
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Lunch", page[0].Name)
}

func TestCheckpointManager_InvalidTags(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	for _, tag := range []string{"../escape", "a/b", `a\b`, "x..y"} {
		t.Run(tag, func(t *testing.T) {
			_, err := cm.Create(ctx, tag, "")
			assert.ErrorIs(t, err, ErrInvalidCheckpoint)
			assert.ErrorIs(t, cm.Delete(ctx, tag), ErrInvalidCheckpoint)
		})
	}
}

func TestCheckpointManager_ListAndDelete(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cm.Create(ctx, fmt.Sprintf("cp-%d", i), "")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "cp-2", list[0].ID, "newest first")
	assert.Equal(t, "cp-0", list[2].ID)

	require.NoError(t, cm.Delete(ctx, "cp-1"))
	assert.ErrorIs(t, cm.Delete(ctx, "cp-1"), ErrCheckpointNotFound)

	_, err = cm.Get(ctx, "cp-1")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	list, err = cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCheckpointManager_ListSkipsCorruptMetadata(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	_, err := cm.Create(ctx, "good", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cm.Dir(), "bad.meta.json"), []byte("{not json"), 0o600))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	_, err := cm.Create(ctx, "manual", "")
	require.NoError(t, err)

	for i := 0; i < maxAutoCheckpoints+2; i++ {
		info, err := cm.AutoCheckpoint(ctx, fmt.Sprintf("import%d", i))
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)

	auto := 0
	manual := 0
	for _, cp := range list {
		if cp.IsAuto {
			auto++
		} else {
			manual++
		}
	}
	assert.Equal(t, maxAutoCheckpoints, auto)
	assert.Equal(t, 1, manual, "manual checkpoints are never pruned")
}
