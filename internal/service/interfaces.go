// Package service is the API the presentation layer talks to. Every
// operation borrows the store from the vault handle for the length of one
// call.
package service

import (
	"context"

	"github.com/Veraticus/coffer/internal/importer"
	"github.com/Veraticus/coffer/internal/model"
	"github.com/Veraticus/coffer/internal/storage"
)

// Storage is the persistence contract the service relies on.
type Storage interface {
	// Reference operations
	AddReference(ctx context.Context, kind model.LookupKind, value string) error
	ListReferences(ctx context.Context, kind model.LookupKind) ([]string, error)
	SuggestReference(ctx context.Context, kind model.LookupKind, value string) (string, bool, error)

	// Transaction operations
	InsertTransaction(ctx context.Context, txn *model.Transaction) (int64, error)
	EditTransaction(ctx context.Context, txn *model.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	ListPage(ctx context.Context, recordsPerPage int, cursor model.Cursor) ([]model.Transaction, error)
	CountTransactions(ctx context.Context) (int, error)

	// Database management
	NewCheckpointManager() (*storage.CheckpointManager, error)
}

var (
	_ Storage        = (*storage.SQLiteStorage)(nil)
	_ importer.Store = Storage(nil)
)
