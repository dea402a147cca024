package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

const (
	aadName     = "transactions.name"
	aadCategory = "transactions.category"
	aadAmount   = "transactions.amount"
	aadBank     = "transactions.bank"
	aadTag      = "transaction_type_links.tag"

	// Tags share the blind-index domain of the transaction_types set.
	tagIndexDomain = "transaction_types"
)

// sealedTransaction is the at-rest form of a transaction row.
type sealedTransaction struct {
	date     string
	name     []byte
	category []byte
	amount   []byte
	bank     []byte
}

// InsertTransaction persists a new transaction together with its type tags in
// one database transaction and returns the assigned id, which is also set on
// txn. Category, bank and tags are added to their lookup sets if missing.
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, txn *model.Transaction) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateNewTransaction(txn); err != nil {
		return 0, err
	}

	row, err := s.sealTransaction(txn)
	if err != nil {
		return 0, err
	}
	types := model.NormalizeTypes(txn.TransactionTypes)

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (date, name, category, amount, bank)
			VALUES (?, ?, ?, ?, ?)
		`, row.date, row.name, row.category, row.amount, row.bank)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transaction ID: %w", err)
		}

		if err := s.insertTypeLinks(ctx, tx, id, types); err != nil {
			return err
		}
		return s.ensureReferences(ctx, tx, txn, types)
	})
	if err != nil {
		return 0, err
	}

	txn.ID = id
	slog.Debug("inserted transaction", "id", id, "date", row.date, "types", len(types))
	return id, nil
}

// EditTransaction replaces every field of the stored transaction txn.ID and
// fully replaces its tag set, atomically.
func (s *SQLiteStorage) EditTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExistingTransaction(txn); err != nil {
		return err
	}

	row, err := s.sealTransaction(txn)
	if err != nil {
		return err
	}
	types := model.NormalizeTypes(txn.TransactionTypes)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET date = ?, name = ?, category = ?, amount = ?, bank = ?
			WHERE id = ?
		`, row.date, row.name, row.category, row.amount, row.bank, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := expectOneRow(res, txn.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_type_links WHERE transaction_id = ?`, txn.ID); err != nil {
			return fmt.Errorf("failed to clear transaction types: %w", err)
		}
		if err := s.insertTypeLinks(ctx, tx, txn.ID, types); err != nil {
			return err
		}
		return s.ensureReferences(ctx, tx, txn, types)
	})
	if err != nil {
		return err
	}

	slog.Debug("edited transaction", "id", txn.ID, "types", len(types))
	return nil
}

// DeleteTransaction removes a transaction and its tag links atomically.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_type_links WHERE transaction_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete transaction types: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		return expectOneRow(res, id)
	})
	if err != nil {
		return err
	}

	slog.Debug("deleted transaction", "id", id)
	return nil
}

// GetTransaction retrieves a single transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, date, name, category, amount, bank
		FROM transactions
		WHERE id = ?
	`, id)

	txn, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	types, err := s.loadTypes(ctx, s.db, []int64{id})
	if err != nil {
		return nil, err
	}
	txn.TransactionTypes = types[id]
	return &txn, nil
}

// ListPage returns up to recordsPerPage transactions ordered by (date, id)
// descending whose key is strictly below cursor. Feeding model.NextCursor of
// each page back in visits every row exactly once as long as the store is not
// mutated between calls. Rows inserted or deleted between calls may be
// skipped or repeated relative to the first call; no lock spans pages.
func (s *SQLiteStorage) ListPage(ctx context.Context, recordsPerPage int, cursor model.Cursor) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if recordsPerPage <= 0 {
		return nil, fmt.Errorf("%w: records per page must be positive, got %d", common.ErrValidation, recordsPerPage)
	}

	query := `SELECT id, date, name, category, amount, bank FROM transactions`
	args := []any{}
	if !cursor.IsFirst() {
		date := cursor.Date.Format(model.DateLayout)
		query += ` WHERE date < ? OR (date = ? AND id < ?)`
		args = append(args, date, date, cursor.ID)
	}
	query += ` ORDER BY date DESC, id DESC LIMIT ?`
	args = append(args, recordsPerPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	page := make([]model.Transaction, 0, recordsPerPage)
	for rows.Next() {
		txn, err := s.scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		page = append(page, txn)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	// The pool holds a single connection; release it before the tag query.
	_ = rows.Close()

	if len(page) == 0 {
		return page, nil
	}

	ids := make([]int64, len(page))
	for i := range page {
		ids[i] = page[i].ID
	}
	types, err := s.loadTypes(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range page {
		page[i].TransactionTypes = types[page[i].ID]
	}

	return page, nil
}

// CountTransactions returns the number of stored transactions.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) sealTransaction(txn *model.Transaction) (sealedTransaction, error) {
	row := sealedTransaction{date: model.CalendarDate(txn.Date).Format(model.DateLayout)}

	fields := []struct {
		dst   *[]byte
		aad   string
		value string
	}{
		{&row.name, aadName, strings.TrimSpace(txn.Name)},
		{&row.category, aadCategory, strings.TrimSpace(txn.Category)},
		{&row.amount, aadAmount, txn.Amount.String()},
		{&row.bank, aadBank, strings.TrimSpace(txn.Bank)},
	}
	for _, f := range fields {
		sealed, err := s.keys.SealString(f.aad, f.value)
		if err != nil {
			return sealedTransaction{}, fmt.Errorf("failed to seal %s: %w", f.aad, err)
		}
		*f.dst = sealed
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) scanTransaction(r rowScanner) (model.Transaction, error) {
	var (
		txn  model.Transaction
		date string
		row  sealedTransaction
	)

	if err := r.Scan(&txn.ID, &date, &row.name, &row.category, &row.amount, &row.bank); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return txn, err
		}
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return txn, fmt.Errorf("transaction %d has malformed date %q: %w", txn.ID, date, err)
	}
	txn.Date = parsed

	if txn.Name, err = s.keys.OpenString(aadName, row.name); err != nil {
		return txn, fmt.Errorf("failed to open name of transaction %d: %w", txn.ID, err)
	}
	if txn.Category, err = s.keys.OpenString(aadCategory, row.category); err != nil {
		return txn, fmt.Errorf("failed to open category of transaction %d: %w", txn.ID, err)
	}
	if txn.Bank, err = s.keys.OpenString(aadBank, row.bank); err != nil {
		return txn, fmt.Errorf("failed to open bank of transaction %d: %w", txn.ID, err)
	}

	amount, err := s.keys.OpenString(aadAmount, row.amount)
	if err != nil {
		return txn, fmt.Errorf("failed to open amount of transaction %d: %w", txn.ID, err)
	}
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return txn, fmt.Errorf("transaction %d has malformed amount: %w", txn.ID, err)
	}

	return txn, nil
}

func (s *SQLiteStorage) insertTypeLinks(ctx context.Context, q queryable, id int64, types []string) error {
	for _, tag := range types {
		sealed, err := s.keys.SealString(aadTag, tag)
		if err != nil {
			return fmt.Errorf("failed to seal transaction type: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO transaction_type_links (transaction_id, tag_index, tag)
			VALUES (?, ?, ?)
		`, id, s.keys.Index(tagIndexDomain, tag), sealed); err != nil {
			return fmt.Errorf("failed to link transaction type to transaction %d: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) ensureReferences(ctx context.Context, q queryable, txn *model.Transaction, types []string) error {
	if err := s.ensureReference(ctx, q, model.LookupCategory, strings.TrimSpace(txn.Category)); err != nil {
		return err
	}
	if err := s.ensureReference(ctx, q, model.LookupBank, strings.TrimSpace(txn.Bank)); err != nil {
		return err
	}
	for _, tag := range types {
		if err := s.ensureReference(ctx, q, model.LookupTransactionType, tag); err != nil {
			return err
		}
	}
	return nil
}

// loadTypes returns the tags of each id in link insertion order.
func (s *SQLiteStorage) loadTypes(ctx context.Context, q queryable, ids []int64) (map[int64][]string, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	// #nosec G202 - only placeholders are concatenated
	query := `
		SELECT transaction_id, tag
		FROM transaction_type_links
		WHERE transaction_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY transaction_id, rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction types: %w", err)
	}
	defer rows.Close()

	types := make(map[int64][]string, len(ids))
	for rows.Next() {
		var (
			id     int64
			sealed []byte
		)
		if err := rows.Scan(&id, &sealed); err != nil {
			return nil, fmt.Errorf("failed to scan transaction type: %w", err)
		}
		tag, err := s.keys.OpenString(aadTag, sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to open transaction type of transaction %d: %w", id, err)
		}
		types[id] = append(types[id], tag)
	}

	return types, rows.Err()
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
	}
	return nil
}
