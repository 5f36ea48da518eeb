package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// LowStockEvent fires when available stock crosses down to the warning threshold.
type LowStockEvent struct {
	ProductID         uuid.UUID                      `json:"product_id"`
	AvailableQuantity int                            `json:"available_quantity"`
	ReservedQuantity  int                            `json:"reserved_quantity"`
	WarningThreshold  int                            `json:"warning_threshold"`
	Cause             enums.InventoryTransactionType `json:"cause"`
}

// OutOfStockEvent fires when available stock reaches zero from a positive value.
type OutOfStockEvent struct {
	ProductID        uuid.UUID                      `json:"product_id"`
	ReservedQuantity int                            `json:"reserved_quantity"`
	TotalQuantity    int                            `json:"total_quantity"`
	Cause            enums.InventoryTransactionType `json:"cause"`
}

// ReservationExpiredEvent is emitted for each hold the sweeper expires.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID             `json:"reservation_id"`
	BatchID       uuid.UUID             `json:"batch_id"`
	Kind          enums.ReservationKind `json:"kind"`
	HolderID      *string               `json:"holder_id,omitempty"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	ProductID     uuid.UUID             `json:"product_id"`
	Quantity      int                   `json:"quantity"`
	ExpiresAt     time.Time             `json:"expires_at"`
	ExpiredAt     time.Time             `json:"expired_at"`
}
