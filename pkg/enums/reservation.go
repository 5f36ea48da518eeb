package enums

import "fmt"

// ReservationKind distinguishes shopper cart holds from checkout order holds.
type ReservationKind string

const (
	ReservationKindCart  ReservationKind = "cart"
	ReservationKindOrder ReservationKind = "order"
)

var validReservationKinds = []ReservationKind{
	ReservationKindCart,
	ReservationKindOrder,
}

// String implements fmt.Stringer.
func (k ReservationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ReservationKind.
func (k ReservationKind) IsValid() bool {
	for _, candidate := range validReservationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ReferenceType maps a hold kind onto the transaction log reference type.
func (k ReservationKind) ReferenceType() InventoryReferenceType {
	if k == ReservationKindOrder {
		return InventoryReferenceOrder
	}
	return InventoryReferenceCart
}

// ReservationStatus tracks a hold through its lifecycle. Every status other
// than active is terminal.
type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "active"
	ReservationStatusReleased ReservationStatus = "released"
	ReservationStatusExpired  ReservationStatus = "expired"
	ReservationStatusConsumed ReservationStatus = "consumed"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusReleased,
	ReservationStatusExpired,
	ReservationStatusConsumed,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReservationStatus.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusActive
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
