package model

import "time"

// Cursor is a keyset position in the (date, id) descending ordering of
// transactions. The zero value is the first page.
type Cursor struct {
	Date  time.Time
	ID    int64
	valid bool
}

// FirstPage returns the cursor that excludes no rows.
func FirstPage() Cursor {
	return Cursor{}
}

// After returns a cursor positioned after the row keyed by (date, id).
func After(date time.Time, id int64) Cursor {
	return Cursor{Date: CalendarDate(date), ID: id, valid: true}
}

// IsFirst reports whether c is the first-page cursor.
func (c Cursor) IsFirst() bool {
	return !c.valid
}

// NextCursor returns the cursor following the last row of page. An empty page
// yields ok=false.
func NextCursor(page []Transaction) (Cursor, bool) {
	if len(page) == 0 {
		return Cursor{}, false
	}
	last := page[len(page)-1]
	return After(last.Date, last.ID), true
}
