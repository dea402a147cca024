// Package storage provides the encrypted persistence layer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateKind(kind model.LookupKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown lookup kind %d", common.ErrValidation, int(kind))
	}
	return nil
}

// validateTransaction validates the fields shared by insert and edit.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: %w: transaction", common.ErrValidation, ErrNilParameter)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", common.ErrValidation)
	}
	// Dates are stored as YYYY-MM-DD text and ordered as text.
	if y := model.CalendarDate(txn.Date).Year(); y < 0 || y > 9999 {
		return fmt.Errorf("%w: date year %d outside 0000-9999", common.ErrValidation, y)
	}
	if strings.TrimSpace(txn.Name) == "" {
		return fmt.Errorf("%w: missing name", common.ErrValidation)
	}
	if strings.TrimSpace(txn.Category) == "" {
		return fmt.Errorf("%w: missing category", common.ErrValidation)
	}
	if strings.TrimSpace(txn.Bank) == "" {
		return fmt.Errorf("%w: missing bank", common.ErrValidation)
	}
	if len(model.NormalizeTypes(txn.TransactionTypes)) == 0 {
		return fmt.Errorf("%w: at least one transaction type is required", common.ErrValidation)
	}
	return nil
}

// validateNewTransaction validates a transaction about to be inserted.
func validateNewTransaction(txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.HasID() {
		return fmt.Errorf("%w: new transaction already has id %d", common.ErrValidation, txn.ID)
	}
	return nil
}

// validateExistingTransaction validates a transaction about to be edited.
func validateExistingTransaction(txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if !txn.HasID() {
		return fmt.Errorf("%w: missing id", common.ErrValidation)
	}
	return nil
}
