package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/model"
)

// FieldCount is the number of fields in every import row.
const FieldCount = 6

// ErrMalformedRow marks a source row that could not be split into fields.
var ErrMalformedRow = errors.New("malformed row")

// FromFields maps date, name, category, amount, types and bank onto a raw
// row. Trailing empty fields are tolerated; anything beyond the sixth
// non-empty field is an error.
func FromFields(fields []string, line int) (model.RawRow, error) {
	for len(fields) > 0 && strings.TrimSpace(fields[len(fields)-1]) == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) > FieldCount {
		return model.RawRow{Line: line}, fmt.Errorf("%w: %w: want %d fields, got %d",
			common.ErrValidation, ErrMalformedRow, FieldCount, len(fields))
	}

	padded := make([]string, FieldCount)
	copy(padded, fields)

	return model.RawRow{
		Date:     padded[0],
		Name:     padded[1],
		Category: padded[2],
		Amount:   padded[3],
		Types:    padded[4],
		Bank:     padded[5],
		Line:     line,
	}, nil
}

// isHeader reports whether the first record is a column header: its date
// cell names the column ("Date", "date (DD/MM/YYYY)", ...).
func isHeader(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	cell := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(fields[0], "\ufeff")))
	return strings.HasPrefix(cell, "date")
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// recordReader returns the next record and its 1-based line. A non-nil
// error with fatal set ends the stream after it is reported.
type recordReader func() (fields []string, line int, fatal bool, err error)

// records turns a stream of field slices into raw rows: blank records are
// skipped and a leading header is dropped.
func records(next recordReader) iter.Seq2[model.RawRow, error] {
	return func(yield func(model.RawRow, error) bool) {
		first := true
		for {
			fields, line, fatal, err := next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !yield(model.RawRow{Line: line}, fmt.Errorf("%w: %w: %w", common.ErrValidation, ErrMalformedRow, err)) || fatal {
					return
				}
				continue
			}
			if isBlank(fields) {
				continue
			}
			if first {
				first = false
				if isHeader(fields) {
					continue
				}
			}
			if !yield(FromFields(fields, line)) {
				return
			}
		}
	}
}

// CSVRows reads comma-separated rows from r.
func CSVRows(r io.Reader) iter.Seq2[model.RawRow, error] {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return records(func() ([]string, int, bool, error) {
		rec, err := reader.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, parseErr.StartLine, false, err
			}
			return nil, 0, true, err
		}
		line, _ := reader.FieldPos(0)
		return rec, line, false, nil
	})
}

// SliceRows yields rows that are already in memory, such as parsed
// statement transactions.
func SliceRows(rows []model.RawRow) iter.Seq2[model.RawRow, error] {
	return func(yield func(model.RawRow, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}
