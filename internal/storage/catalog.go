package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

// maxSuggestionDistance bounds how different a near-duplicate reference value may be.
const maxSuggestionDistance = 2

func referenceTable(kind model.LookupKind) string {
	switch kind {
	case model.LookupCategory:
		return "categories"
	case model.LookupBank:
		return "banks"
	case model.LookupTransactionType:
		return "transaction_types"
	default:
		panic(fmt.Sprintf("unknown lookup kind %d", int(kind)))
	}
}

// AddReference adds value to the lookup set of kind. An existing value is
// reported as common.ErrDuplicateEntry.
func (s *SQLiteStorage) AddReference(ctx context.Context, kind model.LookupKind, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateKind(kind); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: empty %s", common.ErrValidation, kind)
	}

	table := referenceTable(kind)
	sealed, err := s.keys.SealString(table+".value", value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", kind, err)
	}

	// #nosec G201 - table comes from referenceTable, never from input
	query := fmt.Sprintf(`INSERT INTO %s (value_index, value) VALUES (?, ?)`, table)
	if _, err := s.db.ExecContext(ctx, query, s.keys.Index(table, value), sealed); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %q already exists", common.ErrDuplicateEntry, kind, value)
		}
		return fmt.Errorf("failed to add %s: %w", kind, err)
	}

	slog.Debug("added reference value", "kind", kind.String())
	return nil
}

// ListReferences returns every value of kind in insertion order.
func (s *SQLiteStorage) ListReferences(ctx context.Context, kind model.LookupKind) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	table := referenceTable(kind)
	// #nosec G201 - table comes from referenceTable, never from input
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT value FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var sealed []byte
		if err := rows.Scan(&sealed); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		value, err := s.keys.OpenString(table+".value", sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", kind, err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}

	return values, nil
}

// HasReference reports whether value is present in the set of kind.
func (s *SQLiteStorage) HasReference(ctx context.Context, kind model.LookupKind, value string) (bool, error) {
	if err := validateKind(kind); err != nil {
		return false, err
	}
	table := referenceTable(kind)

	var one int
	// #nosec G201 - table comes from referenceTable, never from input
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE value_index = ?`, table)
	err := s.db.QueryRowContext(ctx, query, s.keys.Index(table, strings.TrimSpace(value))).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", kind, err)
	}
	return true, nil
}

// SuggestReference returns the closest existing value of kind when value is
// not itself present but differs from an existing one by a small edit
// distance (case-insensitive).
func (s *SQLiteStorage) SuggestReference(ctx context.Context, kind model.LookupKind, value string) (string, bool, error) {
	value = strings.TrimSpace(value)
	exists, err := s.HasReference(ctx, kind, value)
	if err != nil || exists {
		return "", false, err
	}

	values, err := s.ListReferences(ctx, kind)
	if err != nil {
		return "", false, err
	}

	best, bestDistance := "", maxSuggestionDistance+1
	needle := strings.ToLower(value)
	for _, candidate := range values {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(candidate))
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
	}

	if bestDistance > maxSuggestionDistance {
		return "", false, nil
	}
	return best, true, nil
}

// ValuesFor is the lookup read used to populate selection lists.
func (s *SQLiteStorage) ValuesFor(ctx context.Context, kind model.LookupKind) ([]string, error) {
	return s.ListReferences(ctx, kind)
}

// ensureReference adds value to kind's set inside tx unless already present.
func (s *SQLiteStorage) ensureReference(ctx context.Context, q queryable, kind model.LookupKind, value string) error {
	table := referenceTable(kind)
	sealed, err := s.keys.SealString(table+".value", value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", kind, err)
	}

	// #nosec G201 - table comes from referenceTable, never from input
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (value_index, value) VALUES (?, ?)`, table)
	if _, err := q.ExecContext(ctx, query, s.keys.Index(table, value), sealed); err != nil {
		return fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return nil
}
