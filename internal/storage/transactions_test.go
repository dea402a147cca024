package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/crypto"
	"github.com/Veraticus/coffer/internal/model"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestInsertTransaction_RoundTrip(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := model.Transaction{
		Date:             mustDate(t, "2024-02-29"),
		Name:             "Grocery Outlet",
		Category:         "Groceries",
		Amount:           decimal.RequireFromString("-1234.56"),
		Bank:             "Chase",
		TransactionTypes: []string{"Debit", "Card"},
	}

	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, txn.ID)

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)

	if diff := cmp.Diff(txn, *got, decimalComparer); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertTransaction_AddsReferences(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.AddReference(ctx, model.LookupCategory, "Food"))

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", "Card")
	_, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	categories, err := store.ListReferences(ctx, model.LookupCategory)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food"}, categories)

	banks, err := store.ListReferences(ctx, model.LookupBank)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chase"}, banks)

	types, err := store.ListReferences(ctx, model.LookupTransactionType)
	require.NoError(t, err)
	assert.Equal(t, []string{"Debit", "Card"}, types)
}

func TestInsertTransaction_Validation(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		mutate func(*model.Transaction)
		name   string
	}{
		{name: "zero date", mutate: func(tx *model.Transaction) { tx.Date = mustDate(t, "0001-01-01") }},
		{name: "empty name", mutate: func(tx *model.Transaction) { tx.Name = "  " }},
		{name: "empty category", mutate: func(tx *model.Transaction) { tx.Category = "" }},
		{name: "empty bank", mutate: func(tx *model.Transaction) { tx.Bank = "" }},
		{name: "no types", mutate: func(tx *model.Transaction) { tx.TransactionTypes = nil }},
		{name: "blank types", mutate: func(tx *model.Transaction) { tx.TransactionTypes = []string{" ", ""} }},
		{name: "id already set", mutate: func(tx *model.Transaction) { tx.ID = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := newTestTransaction(t, "2024-01-01", "Lunch")
			tt.mutate(&txn)

			_, err := store.InsertTransaction(ctx, &txn)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}

	count, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInsertTransaction_DuplicateTypesCollapse(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", " Debit ", "Card")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Debit", "Card"}, got.TransactionTypes)
}

func TestInsertTransaction_AtomicOnLinkFailure(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		CREATE TRIGGER fail_links BEFORE INSERT ON transaction_type_links
		BEGIN
			SELECT RAISE(ABORT, 'forced link failure');
		END`)
	require.NoError(t, err)

	txn := newTestTransaction(t, "2024-01-01", "Lunch")
	_, err = store.InsertTransaction(ctx, &txn)
	require.Error(t, err)
	assert.Zero(t, txn.ID)

	page, err := store.ListPage(ctx, 10, model.FirstPage())
	require.NoError(t, err)
	assert.Empty(t, page)

	categories, err := store.ListReferences(ctx, model.LookupCategory)
	require.NoError(t, err)
	assert.Empty(t, categories, "reference rows must roll back with the transaction")
}

func TestInsertTransaction_RollsBackWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	keys, err := crypto.NewKeyring([]byte(testPassphrase), make([]byte, crypto.SaltLen), testOptions().KDF)
	require.NoError(t, err)
	defer keys.Destroy()

	store := &SQLiteStorage{db: db, keys: keys}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec("INSERT INTO transaction_type_links").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	txn := newTestTransaction(t, "2024-01-01", "Lunch")
	_, err = store.InsertTransaction(context.Background(), &txn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Zero(t, txn.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditTransaction(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", "Card")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	edited := model.Transaction{
		ID:               id,
		Date:             mustDate(t, "2024-01-03"),
		Name:             "Dinner",
		Category:         "Restaurants",
		Amount:           decimal.RequireFromString("-40"),
		Bank:             "Amex",
		TransactionTypes: []string{"Credit"},
	}
	require.NoError(t, store.EditTransaction(ctx, &edited))

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(edited, *got, decimalComparer); diff != "" {
		t.Errorf("edited transaction mismatch (-want +got):\n%s", diff)
	}

	banks, err := store.ListReferences(ctx, model.LookupBank)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chase", "Amex"}, banks)
}

func TestEditTransaction_Errors(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	missing := newTestTransaction(t, "2024-01-01", "Ghost")
	missing.ID = 999
	assert.ErrorIs(t, store.EditTransaction(ctx, &missing), common.ErrNotFound)

	noID := newTestTransaction(t, "2024-01-01", "Ghost")
	assert.ErrorIs(t, store.EditTransaction(ctx, &noID), common.ErrValidation)
}

func TestEditTransaction_AddsTypeToExistingSet(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Landlord", "Rent")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	txn.TransactionTypes = []string{"Rent", "Utilities"}
	require.NoError(t, store.EditTransaction(ctx, &txn))

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rent", "Utilities"}, got.TransactionTypes)

	var links int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_type_links WHERE transaction_id = ?`, id).Scan(&links))
	assert.Equal(t, 2, links)
}

func TestEditTransaction_AtomicOnLinkFailure(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Rent")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `
		CREATE TRIGGER fail_links BEFORE INSERT ON transaction_type_links
		BEGIN
			SELECT RAISE(ABORT, 'forced link failure');
		END`)
	require.NoError(t, err)

	edited := txn
	edited.Name = "Dinner"
	edited.Bank = "Amex"
	edited.TransactionTypes = []string{"Rent", "Utilities"}
	require.Error(t, store.EditTransaction(ctx, &edited))

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", got.Name)
	assert.Equal(t, "Chase", got.Bank)
	assert.Equal(t, []string{"Rent"}, got.TransactionTypes)

	banks, err := store.ListReferences(ctx, model.LookupBank)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chase"}, banks)
}

func TestEditTransaction_RollsBackWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	keys, err := crypto.NewKeyring([]byte(testPassphrase), make([]byte, crypto.SaltLen), testOptions().KDF)
	require.NoError(t, err)
	defer keys.Destroy()

	store := &SQLiteStorage{db: db, keys: keys}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM transaction_type_links").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	txn := newTestTransaction(t, "2024-01-01", "Lunch")
	txn.ID = 42
	err = store.EditTransaction(context.Background(), &txn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTransaction_AtomicOnRowFailure(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", "Card")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `
		CREATE TRIGGER keep_transactions BEFORE DELETE ON transactions
		BEGIN
			SELECT RAISE(ABORT, 'forced delete failure');
		END`)
	require.NoError(t, err)

	require.Error(t, store.DeleteTransaction(ctx, id))

	got, err := store.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Debit", "Card"}, got.TransactionTypes)

	var links int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_type_links WHERE transaction_id = ?`, id).Scan(&links))
	assert.Equal(t, 2, links)
}

func TestDeleteTransaction_RollsBackWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := &SQLiteStorage{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM transaction_type_links").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM transactions").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.DeleteTransaction(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction_RejectsFiveDigitYear(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	ok := newTestTransaction(t, "2024-01-01", "Lunch")
	_, err := store.InsertTransaction(ctx, &ok)
	require.NoError(t, err)

	far := newTestTransaction(t, "2024-01-01", "Far future")
	far.Date = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.InsertTransaction(ctx, &far)
	require.ErrorIs(t, err, common.ErrValidation)

	ok.Date = far.Date
	require.ErrorIs(t, store.EditTransaction(ctx, &ok), common.ErrValidation)

	page, err := store.ListPage(ctx, 10, model.FirstPage())
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 2024, page[0].Date.Year())
}

func TestDeleteTransaction(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	txn := newTestTransaction(t, "2024-01-01", "Lunch", "Debit", "Card")
	id, err := store.InsertTransaction(ctx, &txn)
	require.NoError(t, err)

	require.NoError(t, store.DeleteTransaction(ctx, id))

	_, err = store.GetTransaction(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var links int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_type_links`).Scan(&links))
	assert.Zero(t, links)

	assert.ErrorIs(t, store.DeleteTransaction(ctx, id), common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTransaction(ctx, 0), common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTransaction(ctx, -3), common.ErrNotFound)
}

func TestListPage_Ordering(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	dates := []string{"2024-01-02", "2024-01-05", "2024-01-02", "2023-12-31", "2024-01-05"}
	ids := make([]int64, len(dates))
	for i, d := range dates {
		txn := newTestTransaction(t, d, fmt.Sprintf("row %d", i))
		id, err := store.InsertTransaction(ctx, &txn)
		require.NoError(t, err)
		ids[i] = id
	}

	page, err := store.ListPage(ctx, 10, model.FirstPage())
	require.NoError(t, err)

	got := make([]int64, len(page))
	for i, txn := range page {
		got[i] = txn.ID
	}
	// (date, id) descending: same-date rows break ties by the later id.
	assert.Equal(t, []int64{ids[4], ids[1], ids[2], ids[0], ids[3]}, got)
}

func TestListPage_VisitsEveryRowOnce(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	const total = 23
	for i := 0; i < total; i++ {
		// Several rows share each date to exercise the id tie-break.
		txn := newTestTransaction(t, fmt.Sprintf("2024-03-%02d", i/4+1), fmt.Sprintf("row %d", i), "Debit", fmt.Sprintf("T%d", i%3))
		_, err := store.InsertTransaction(ctx, &txn)
		require.NoError(t, err)
	}

	for _, perPage := range []int{1, 4, 5, 23, 50} {
		t.Run(fmt.Sprintf("per page %d", perPage), func(t *testing.T) {
			seen := make(map[int64]bool, total)
			cursor := model.FirstPage()
			var prev *model.Transaction

			for {
				page, err := store.ListPage(ctx, perPage, cursor)
				require.NoError(t, err)
				require.LessOrEqual(t, len(page), perPage)

				for i := range page {
					txn := page[i]
					require.False(t, seen[txn.ID], "row %d returned twice", txn.ID)
					seen[txn.ID] = true
					require.Len(t, txn.TransactionTypes, 2)
					if prev != nil {
						ordered := txn.Date.Before(prev.Date) || (txn.Date.Equal(prev.Date) && txn.ID < prev.ID)
						require.True(t, ordered, "row %d out of order after %d", txn.ID, prev.ID)
					}
					prev = &txn
				}

				next, more := model.NextCursor(page)
				if !more {
					break
				}
				cursor = next
			}

			assert.Len(t, seen, total)
		})
	}
}

func TestListPage_InvalidPageSize(t *testing.T) {
	store, _ := createTestStorage(t)

	for _, n := range []int{0, -1} {
		_, err := store.ListPage(context.Background(), n, model.FirstPage())
		assert.ErrorIs(t, err, common.ErrValidation)
	}
}

func TestListPage_EmptyStore(t *testing.T) {
	store, _ := createTestStorage(t)

	page, err := store.ListPage(context.Background(), 5, model.FirstPage())
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestCountTransactions(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		txn := newTestTransaction(t, "2024-01-01", fmt.Sprintf("row %d", i))
		_, err := store.InsertTransaction(ctx, &txn)
		require.NoError(t, err)
	}

	count, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
