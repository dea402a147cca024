package importer

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/coffer/internal/model"
)

// DefaultSheet is read when no sheet name is given.
const DefaultSheet = "Sheet1"

// XLSXSource streams rows from one sheet of a workbook.
type XLSXSource struct {
	file  *excelize.File
	sheet string
}

// OpenXLSX opens the workbook at path. An empty sheet selects DefaultSheet,
// or the first sheet when the workbook has no DefaultSheet. A named sheet
// that does not exist is an error.
func OpenXLSX(path, sheet string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}

	sheets := f.GetSheetList()
	switch {
	case len(sheets) == 0:
		_ = f.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	case sheet == "" && slices.Contains(sheets, DefaultSheet):
		sheet = DefaultSheet
	case sheet == "":
		sheet = sheets[0]
	case !slices.Contains(sheets, sheet):
		_ = f.Close()
		return nil, fmt.Errorf("workbook %s has no sheet %q", path, sheet)
	}

	slog.Debug("opened workbook", "path", path, "sheet", sheet, "sheets", len(sheets))
	return &XLSXSource{file: f, sheet: sheet}, nil
}

// Sheet returns the sheet being read.
func (s *XLSXSource) Sheet() string {
	return s.sheet
}

// Rows yields the sheet's rows as displayed text, numbered by sheet row.
func (s *XLSXSource) Rows() iter.Seq2[model.RawRow, error] {
	return func(yield func(model.RawRow, error) bool) {
		rows, err := s.file.Rows(s.sheet)
		if err != nil {
			yield(model.RawRow{}, fmt.Errorf("%w: %w", ErrMalformedRow, err))
			return
		}
		defer func() {
			if err := rows.Close(); err != nil {
				slog.Debug("failed to close sheet iterator", "error", err)
			}
		}()

		line := 0
		next := func() ([]string, int, bool, error) {
			if !rows.Next() {
				if err := rows.Error(); err != nil {
					return nil, line + 1, true, err
				}
				return nil, line, true, io.EOF
			}
			line++
			cols, err := rows.Columns()
			return cols, line, false, err
		}

		for row, err := range records(next) {
			if !yield(row, err) {
				return
			}
		}
	}
}

// Close releases the workbook.
func (s *XLSXSource) Close() error {
	return s.file.Close()
}
