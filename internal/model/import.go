package model

// RawRow is one unparsed input row of a bulk import.
type RawRow struct {
	Date     string
	Name     string
	Category string
	Amount   string
	Types    string
	Bank     string
	Line     int // 1-based row number in the source
}

// RowOutcome records what happened to a single imported row.
type RowOutcome struct {
	Err           error
	Warnings      []string
	Line          int
	TransactionID int64
}

// OK reports whether the row was persisted.
func (o RowOutcome) OK() bool {
	return o.Err == nil
}

// ImportSummary aggregates the per-row outcomes of one import run.
type ImportSummary struct {
	RunID    string
	Outcomes []RowOutcome
	Imported int
	Failed   int
}

// HadFailure reports whether at least one row failed.
func (s ImportSummary) HadFailure() bool {
	return s.Failed > 0
}

// Failures returns the failed outcomes in input order.
func (s ImportSummary) Failures() []RowOutcome {
	var out []RowOutcome
	for _, o := range s.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
