// Package importer turns raw spreadsheet or statement rows into stored
// transactions, one row at a time, recording an outcome for every row.
package importer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

// DateLayout is the day/month/year format of the date column. Day and month
// may have one or two digits.
const DateLayout = "2/1/2006"

// Store is the subset of the repository the pipeline writes through.
type Store interface {
	InsertTransaction(ctx context.Context, txn *model.Transaction) (int64, error)
	SuggestReference(ctx context.Context, kind model.LookupKind, value string) (string, bool, error)
}

// Pipeline imports rows into a Store.
type Pipeline struct {
	store Store
	// Progress, when set, is called after every row with the number of rows
	// processed so far and that row's outcome.
	Progress func(done int, outcome model.RowOutcome)
}

// NewPipeline returns a pipeline writing to store.
func NewPipeline(store Store) *Pipeline {
	return &Pipeline{store: store}
}

// Import consumes rows in order. A failing row is recorded and the run
// continues with the next one; nothing aborts the run and ctx is only
// forwarded to the store.
func (p *Pipeline) Import(ctx context.Context, rows iter.Seq2[model.RawRow, error]) model.ImportSummary {
	summary := model.ImportSummary{
		RunID:    uuid.NewString(),
		Outcomes: []model.RowOutcome{},
	}
	logger := slog.With("run_id", summary.RunID)
	started := time.Now()

	for raw, srcErr := range rows {
		outcome := model.RowOutcome{Line: raw.Line}

		if srcErr != nil {
			outcome.Err = srcErr
		} else {
			outcome = p.importRow(ctx, raw)
		}

		if outcome.OK() {
			summary.Imported++
			logger.Debug("imported row", "line", outcome.Line, "id", outcome.TransactionID)
		} else {
			summary.Failed++
			logger.Warn("row failed", "line", outcome.Line, "kind", common.Kind(outcome.Err), "error", outcome.Err)
		}
		for _, w := range outcome.Warnings {
			logger.Info("row warning", "line", outcome.Line, "warning", w)
		}

		summary.Outcomes = append(summary.Outcomes, outcome)
		if p.Progress != nil {
			p.Progress(len(summary.Outcomes), outcome)
		}
	}

	logger.Info("import finished",
		"rows", len(summary.Outcomes),
		"imported", summary.Imported,
		"failed", summary.Failed,
		"duration", time.Since(started))

	return summary
}

func (p *Pipeline) importRow(ctx context.Context, raw model.RawRow) model.RowOutcome {
	outcome := model.RowOutcome{Line: raw.Line}

	txn, err := ParseRow(raw)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	// Warnings are computed before the insert adds the values to the sets.
	outcome.Warnings = p.warnings(ctx, txn)

	id, err := p.store.InsertTransaction(ctx, &txn)
	if err != nil {
		outcome.Err = err
		outcome.Warnings = nil
		return outcome
	}
	outcome.TransactionID = id
	return outcome
}

type referenceCheck struct {
	kind  model.LookupKind
	value string
}

// warnings flags values that are new to their set but look like a misspelling
// of an existing value.
func (p *Pipeline) warnings(ctx context.Context, txn model.Transaction) []string {
	checks := []referenceCheck{
		{model.LookupCategory, txn.Category},
		{model.LookupBank, txn.Bank},
	}
	for _, tag := range txn.TransactionTypes {
		checks = append(checks, referenceCheck{model.LookupTransactionType, tag})
	}

	var warnings []string
	for _, c := range checks {
		suggestion, ok, err := p.store.SuggestReference(ctx, c.kind, c.value)
		if err != nil {
			slog.Debug("reference suggestion failed", "kind", c.kind.String(), "error", err)
			continue
		}
		if ok {
			warnings = append(warnings, fmt.Sprintf("new %s %q is close to existing %q", c.kind, c.value, suggestion))
		}
	}
	return warnings
}

// ParseRow validates a raw row and builds the transaction it describes.
// Every failure wraps common.ErrValidation.
func ParseRow(raw model.RawRow) (model.Transaction, error) {
	date, err := ParseDate(raw.Date)
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return model.Transaction{}, err
	}

	types := model.SplitTypes(raw.Types)
	if len(types) == 0 {
		return model.Transaction{}, fmt.Errorf("%w: no transaction types in %q", common.ErrValidation, raw.Types)
	}

	txn := model.Transaction{
		Date:             date,
		Name:             strings.TrimSpace(raw.Name),
		Category:         strings.TrimSpace(raw.Category),
		Amount:           amount,
		Bank:             strings.TrimSpace(raw.Bank),
		TransactionTypes: types,
	}

	switch {
	case txn.Name == "":
		return model.Transaction{}, fmt.Errorf("%w: missing name", common.ErrValidation)
	case txn.Category == "":
		return model.Transaction{}, fmt.Errorf("%w: missing category", common.ErrValidation)
	case txn.Bank == "":
		return model.Transaction{}, fmt.Errorf("%w: missing bank", common.ErrValidation)
	}

	return txn, nil
}

// ParseDate parses a day/month/year date. Impossible dates such as 31/2 are
// rejected.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want DD/MM/YYYY", common.ErrValidation, s)
	}
	return d, nil
}

// ParseAmount parses a signed decimal amount. Thousands separators and a
// leading currency symbol are ignored.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimPrefix(clean, "$")
	if strings.HasPrefix(clean, "-$") {
		clean = "-" + clean[2:]
	}

	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: invalid amount %q", common.ErrValidation, s)
	}
	return amount, nil
}
