package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format of a transaction date.
const DateLayout = "2006-01-02"

// Transaction represents a single financial transaction.
type Transaction struct {
	Date             time.Time
	Amount           decimal.Decimal
	Name             string
	Category         string
	Bank             string
	TransactionTypes []string
	ID               int64 // zero until persisted
}

// HasID reports whether the transaction has been persisted.
func (t *Transaction) HasID() bool {
	return t.ID > 0
}

// CalendarDate truncates t to a UTC calendar date.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeTypes trims tags, drops empty ones and collapses duplicates while
// keeping first-seen order.
func NormalizeTypes(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	for _, tag := range types {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// SplitTypes splits slash-delimited tag text such as "Rent / Utilities".
func SplitTypes(raw string) []string {
	return NormalizeTypes(strings.Split(raw, "/"))
}
