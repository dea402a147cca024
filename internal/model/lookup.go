package model

import "fmt"

// LookupKind identifies one of the reference value sets.
type LookupKind int

const (
	// LookupCategory is the set of transaction categories.
	LookupCategory LookupKind = iota + 1
	// LookupBank is the set of banks.
	LookupBank
	// LookupTransactionType is the set of transaction-type tags.
	LookupTransactionType
)

// LookupKinds lists every kind in display order.
var LookupKinds = []LookupKind{LookupCategory, LookupBank, LookupTransactionType}

// String returns the legacy field name of the kind.
func (k LookupKind) String() string {
	switch k {
	case LookupCategory:
		return "category"
	case LookupBank:
		return "bank"
	case LookupTransactionType:
		return "transaction_type"
	default:
		return fmt.Sprintf("LookupKind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k LookupKind) Valid() bool {
	return k >= LookupCategory && k <= LookupTransactionType
}

// ParseLookupKind maps a field name ("category", "bank", "transaction_type",
// plus a few plural/short aliases) to its kind.
func ParseLookupKind(field string) (LookupKind, error) {
	switch field {
	case "category", "categories":
		return LookupCategory, nil
	case "bank", "banks":
		return LookupBank, nil
	case "transaction_type", "transaction_types", "type", "types":
		return LookupTransactionType, nil
	default:
		return 0, fmt.Errorf("unknown lookup field %q", field)
	}
}
