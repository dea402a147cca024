package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/importer"
	"github.com/Veraticus/coffer/internal/model"
	"github.com/Veraticus/coffer/internal/ofx"
	"github.com/Veraticus/coffer/internal/storage"
	"github.com/Veraticus/coffer/internal/vault"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 50

// Options tunes the service.
type Options struct {
	// AutoCheckpoint snapshots the store before every import.
	AutoCheckpoint bool
}

// ImportOptions configures one import run.
type ImportOptions struct {
	// Progress is called after each row.
	Progress func(done int, outcome model.RowOutcome)
	// Sheet selects the workbook sheet; empty picks the default.
	Sheet string
}

// Service exposes every boundary operation. The Err and Detailed variants
// keep typed errors; the plain variants collapse them to a bool for callers
// that only need success or failure.
type Service struct {
	handle *vault.Handle
	opts   Options
}

// New creates a service over handle.
func New(handle *vault.Handle, opts Options) *Service {
	return &Service{handle: handle, opts: opts}
}

func (s *Service) with(ctx context.Context, fn func(context.Context, Storage) error) error {
	return s.handle.With(ctx, func(ctx context.Context, st *storage.SQLiteStorage) error {
		return fn(ctx, st)
	})
}

// succeeded logs err and reports whether the call succeeded.
func succeeded(err error, op string) bool {
	if err != nil {
		common.LogError(err, op+" failed", nil)
		return false
	}
	return true
}

// IsInitialized reports whether a store file exists. It never decrypts.
func (s *Service) IsInitialized() bool {
	return s.handle.IsInitialized()
}

// IsUnlocked reports whether a store is installed for this process.
func (s *Service) IsUnlocked() bool {
	return s.handle.Ready()
}

// SetPassphraseErr opens or creates the store and installs it.
func (s *Service) SetPassphraseErr(ctx context.Context, passphrase string) error {
	return s.handle.Unlock(ctx, passphrase)
}

// SetPassphrase is SetPassphraseErr collapsed to success or failure.
func (s *Service) SetPassphrase(ctx context.Context, passphrase string) bool {
	return s.SetPassphraseErr(ctx, passphrase) == nil
}

// AddReferenceErr adds value to the lookup set of kind.
func (s *Service) AddReferenceErr(ctx context.Context, kind model.LookupKind, value string) error {
	return s.with(ctx, func(ctx context.Context, st Storage) error {
		return st.AddReference(ctx, kind, value)
	})
}

// AddCategoryErr adds a category.
func (s *Service) AddCategoryErr(ctx context.Context, value string) error {
	return s.AddReferenceErr(ctx, model.LookupCategory, value)
}

// AddCategory adds a category.
func (s *Service) AddCategory(ctx context.Context, value string) bool {
	return succeeded(s.AddCategoryErr(ctx, value), "add category")
}

// AddBankErr adds a bank.
func (s *Service) AddBankErr(ctx context.Context, value string) error {
	return s.AddReferenceErr(ctx, model.LookupBank, value)
}

// AddBank adds a bank.
func (s *Service) AddBank(ctx context.Context, value string) bool {
	return succeeded(s.AddBankErr(ctx, value), "add bank")
}

// AddTransactionTypeErr adds a transaction type tag.
func (s *Service) AddTransactionTypeErr(ctx context.Context, value string) error {
	return s.AddReferenceErr(ctx, model.LookupTransactionType, value)
}

// AddTransactionType adds a transaction type tag.
func (s *Service) AddTransactionType(ctx context.Context, value string) bool {
	return succeeded(s.AddTransactionTypeErr(ctx, value), "add transaction type")
}

// AddTransactionErr stores a new transaction and returns its id.
func (s *Service) AddTransactionErr(ctx context.Context, txn *model.Transaction) (int64, error) {
	var id int64
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		var err error
		id, err = st.InsertTransaction(ctx, txn)
		return err
	})
	return id, err
}

// AddTransaction stores a new transaction.
func (s *Service) AddTransaction(ctx context.Context, txn *model.Transaction) bool {
	_, err := s.AddTransactionErr(ctx, txn)
	return succeeded(err, "add transaction")
}

// EditTransactionErr replaces a stored transaction.
func (s *Service) EditTransactionErr(ctx context.Context, txn *model.Transaction) error {
	return s.with(ctx, func(ctx context.Context, st Storage) error {
		return st.EditTransaction(ctx, txn)
	})
}

// EditTransaction replaces a stored transaction.
func (s *Service) EditTransaction(ctx context.Context, txn *model.Transaction) bool {
	return succeeded(s.EditTransactionErr(ctx, txn), "edit transaction")
}

// DeleteTransactionErr removes a transaction by id.
func (s *Service) DeleteTransactionErr(ctx context.Context, id int64) error {
	return s.with(ctx, func(ctx context.Context, st Storage) error {
		return st.DeleteTransaction(ctx, id)
	})
}

// DeleteTransaction removes a transaction by id.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) bool {
	return succeeded(s.DeleteTransactionErr(ctx, id), "delete transaction")
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	var txn *model.Transaction
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		var err error
		txn, err = st.GetTransaction(ctx, id)
		return err
	})
	return txn, err
}

// ListTransactions returns one keyset page. Feed model.NextCursor of the
// result back in for the following page. Rows written between two page
// requests may be skipped or seen twice; nothing holds the store across pages.
func (s *Service) ListTransactions(ctx context.Context, pageSize int, cursor model.Cursor) ([]model.Transaction, error) {
	var page []model.Transaction
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		var err error
		page, err = st.ListPage(ctx, pageSize, cursor)
		return err
	})
	return page, err
}

// CountTransactions returns the number of stored transactions.
func (s *Service) CountTransactions(ctx context.Context) (int, error) {
	var n int
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		var err error
		n, err = st.CountTransactions(ctx)
		return err
	})
	return n, err
}

// ValuesFor returns every value of kind in insertion order.
func (s *Service) ValuesFor(ctx context.Context, kind model.LookupKind) ([]string, error) {
	var values []string
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		var err error
		values, err = st.ListReferences(ctx, kind)
		return err
	})
	return values, err
}

// ListValues is ValuesFor keyed by field name ("category", "bank" or
// "transaction_type"). An unknown name is a validation error.
func (s *Service) ListValues(ctx context.Context, field string) ([]string, error) {
	kind, err := model.ParseLookupKind(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return s.ValuesFor(ctx, kind)
}

// ImportSpreadsheetDetailed imports an .xlsx or .csv file and returns the
// outcome of every row. The error covers only failures to read the file or
// reach the store; row failures are in the summary.
func (s *Service) ImportSpreadsheetDetailed(ctx context.Context, path string, opts ImportOptions) (model.ImportSummary, error) {
	rows, closeSource, err := openSpreadsheet(path, opts.Sheet)
	if err != nil {
		return model.ImportSummary{}, err
	}
	defer closeSource()

	return s.importRows(ctx, "import", rows, opts.Progress)
}

// ImportSpreadsheet imports a file and reports whether any row failed or
// the file could not be read.
func (s *Service) ImportSpreadsheet(ctx context.Context, path string) (hadError bool) {
	summary, err := s.ImportSpreadsheetDetailed(ctx, path, ImportOptions{})
	if err != nil {
		common.LogError(err, "import failed", common.Fields{"path": path})
		return true
	}
	return summary.HadFailure()
}

// ImportOFXDetailed imports the transactions of one OFX/QFX statement file.
func (s *Service) ImportOFXDetailed(ctx context.Context, path string, defaults ofx.Defaults, opts ImportOptions) (model.ImportSummary, error) {
	// #nosec G304 - path is supplied by the local user
	f, err := os.Open(path)
	if err != nil {
		return model.ImportSummary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	parsed, err := ofx.NewParser(defaults).ParseFile(ctx, f)
	if err != nil {
		return model.ImportSummary{}, err
	}

	return s.importRows(ctx, "import-ofx", importer.SliceRows(parsed), opts.Progress)
}

// importRows runs one import while holding the store for the whole run. The
// run is detached from ctx cancellation so it always visits every row.
func (s *Service) importRows(ctx context.Context, operation string, rows iter.Seq2[model.RawRow, error], progress func(int, model.RowOutcome)) (model.ImportSummary, error) {
	ctx = context.WithoutCancel(ctx)

	var summary model.ImportSummary
	err := s.with(ctx, func(ctx context.Context, st Storage) error {
		if s.opts.AutoCheckpoint {
			checkpointBefore(ctx, st, operation)
		}

		p := importer.NewPipeline(st)
		p.Progress = progress
		summary = p.Import(ctx, rows)
		return nil
	})
	return summary, err
}

func checkpointBefore(ctx context.Context, st Storage, operation string) {
	cm, err := st.NewCheckpointManager()
	if err == nil {
		_, err = cm.AutoCheckpoint(ctx, operation)
	}
	if err != nil {
		// Importing without a snapshot is still allowed.
		slog.Warn("failed to create checkpoint before import", "operation", operation, "error", err)
	}
}

// openSpreadsheet picks a row source by file extension.
func openSpreadsheet(path, sheet string) (iter.Seq2[model.RawRow, error], func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		src, err := importer.OpenXLSX(path, sheet)
		if err != nil {
			return nil, nil, err
		}
		return src.Rows(), func() { _ = src.Close() }, nil
	case ".csv":
		// #nosec G304 - path is supplied by the local user
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return importer.CSVRows(f), func() { _ = f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported spreadsheet type %q", common.ErrValidation, filepath.Ext(path))
	}
}

// CreateCheckpoint snapshots the store under tag.
func (s *Service) CreateCheckpoint(ctx context.Context, tag, description string) (*storage.CheckpointInfo, error) {
	var info *storage.CheckpointInfo
	err := s.withCheckpoints(ctx, func(ctx context.Context, cm *storage.CheckpointManager) error {
		var err error
		info, err = cm.Create(ctx, tag, description)
		return err
	})
	return info, err
}

// ListCheckpoints returns every checkpoint, newest first.
func (s *Service) ListCheckpoints(ctx context.Context) ([]storage.CheckpointInfo, error) {
	var list []storage.CheckpointInfo
	err := s.withCheckpoints(ctx, func(ctx context.Context, cm *storage.CheckpointManager) error {
		var err error
		list, err = cm.List(ctx)
		return err
	})
	return list, err
}

// DeleteCheckpoint removes a checkpoint.
func (s *Service) DeleteCheckpoint(ctx context.Context, tag string) error {
	return s.withCheckpoints(ctx, func(ctx context.Context, cm *storage.CheckpointManager) error {
		return cm.Delete(ctx, tag)
	})
}

func (s *Service) withCheckpoints(ctx context.Context, fn func(context.Context, *storage.CheckpointManager) error) error {
	return s.with(ctx, func(ctx context.Context, st Storage) error {
		cm, err := st.NewCheckpointManager()
		if err != nil {
			return err
		}
		return fn(ctx, cm)
	})
}

// Close releases the store.
func (s *Service) Close() error {
	return s.handle.Close()
}
