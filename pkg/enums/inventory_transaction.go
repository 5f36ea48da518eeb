package enums

import "fmt"

// InventoryTransactionType maps to the inventory_transaction_type enum in Postgres.
type InventoryTransactionType string

const (
	InventoryTransactionIn      InventoryTransactionType = "IN"
	InventoryTransactionOut     InventoryTransactionType = "OUT"
	InventoryTransactionReserve InventoryTransactionType = "RESERVE"
	InventoryTransactionRelease InventoryTransactionType = "RELEASE"
	InventoryTransactionAdjust  InventoryTransactionType = "ADJUST"
)

var validInventoryTransactionTypes = []InventoryTransactionType{
	InventoryTransactionIn,
	InventoryTransactionOut,
	InventoryTransactionReserve,
	InventoryTransactionRelease,
	InventoryTransactionAdjust,
}

// String implements fmt.Stringer.
func (t InventoryTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t InventoryTransactionType) IsValid() bool {
	for _, candidate := range validInventoryTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseInventoryTransactionType converts raw input into InventoryTransactionType.
func ParseInventoryTransactionType(value string) (InventoryTransactionType, error) {
	for _, candidate := range validInventoryTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory transaction type %q", value)
}

// InventoryReferenceType describes what caused a stock movement.
type InventoryReferenceType string

const (
	InventoryReferenceOrder  InventoryReferenceType = "ORDER"
	InventoryReferenceCart   InventoryReferenceType = "CART"
	InventoryReferenceManual InventoryReferenceType = "MANUAL"
	InventoryReferenceImport InventoryReferenceType = "IMPORT"
)

var validInventoryReferenceTypes = []InventoryReferenceType{
	InventoryReferenceOrder,
	InventoryReferenceCart,
	InventoryReferenceManual,
	InventoryReferenceImport,
}

// String implements fmt.Stringer.
func (r InventoryReferenceType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known InventoryReferenceType.
func (r InventoryReferenceType) IsValid() bool {
	for _, candidate := range validInventoryReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// AdjustmentType selects how a manual correction is applied.
type AdjustmentType string

const (
	AdjustmentAdd      AdjustmentType = "ADD"
	AdjustmentSubtract AdjustmentType = "SUBTRACT"
	AdjustmentSet      AdjustmentType = "SET"
)

var validAdjustmentTypes = []AdjustmentType{
	AdjustmentAdd,
	AdjustmentSubtract,
	AdjustmentSet,
}

// IsValid reports whether the value is a known AdjustmentType.
func (a AdjustmentType) IsValid() bool {
	for _, candidate := range validAdjustmentTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdjustmentType converts raw input into AdjustmentType.
func ParseAdjustmentType(value string) (AdjustmentType, error) {
	for _, candidate := range validAdjustmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment type %q", value)
}
