package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// Item is a product/quantity pair used by reserve and deduct calls.
type Item struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// ReserveCartInput reserves stock for a shopper's cart. A zero TTL uses the
// configured cart default.
type ReserveCartInput struct {
	HolderID string
	Items    []Item
	TTL      time.Duration
}

// ReserveOrderInput reserves stock for checkout. Re-reserving the same order
// replaces the previous batch.
type ReserveOrderInput struct {
	OrderID uuid.UUID
	Items   []Item
	TTL     time.Duration
}

type DeductInput struct {
	OrderID uuid.UUID
	Items   []Item
}

type AdjustInput struct {
	ProductID  uuid.UUID
	Type       enums.AdjustmentType
	Quantity   int
	Reason     string
	OperatorID uuid.UUID
}

type ReceiveInput struct {
	ProductID   uuid.UUID
	Quantity    int
	ReferenceID string
	Reason      string
	OperatorID  *uuid.UUID
}

// RecordView is the API shape of an inventory record.
type RecordView struct {
	ProductID         uuid.UUID `json:"product_id"`
	AvailableQuantity int       `json:"available_quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	TotalQuantity     int       `json:"total_quantity"`
	WarningThreshold  int       `json:"warning_threshold"`
	IsLowStock        bool      `json:"is_low_stock"`
	IsOutOfStock      bool      `json:"is_out_of_stock"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newRecordView(rec models.InventoryRecord) RecordView {
	return RecordView{
		ProductID:         rec.ProductID,
		AvailableQuantity: rec.AvailableQuantity,
		ReservedQuantity:  rec.ReservedQuantity,
		TotalQuantity:     rec.TotalQuantity,
		WarningThreshold:  rec.WarningThreshold,
		IsLowStock:        rec.IsLowStock(),
		IsOutOfStock:      rec.IsOutOfStock(),
		UpdatedAt:         rec.UpdatedAt,
	}
}

// BatchResult holds the records found for a batch lookup plus any product ids
// that do not exist.
type BatchResult struct {
	Records []RecordView `json:"records"`
	Missing []uuid.UUID  `json:"missing"`
}

type HoldView struct {
	ID        uuid.UUID               `json:"id"`
	ProductID uuid.UUID               `json:"product_id"`
	Quantity  int                     `json:"quantity"`
	Status    enums.ReservationStatus `json:"status"`
	ExpiresAt time.Time               `json:"expires_at"`
}

func newHoldView(h models.InventoryReservation) HoldView {
	return HoldView{
		ID:        h.ID,
		ProductID: h.ProductID,
		Quantity:  h.Quantity,
		Status:    h.Status,
		ExpiresAt: h.ExpiresAt,
	}
}

// ReservationResult is returned by reserve calls. ReservationID is the batch id
// shared by every hold the call created or updated.
type ReservationResult struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Holds         []HoldView `json:"holds"`
}

type ReleaseResult struct {
	Released int `json:"released"`
	Quantity int `json:"quantity"`
	// Found reports whether the key ever held stock; terminal holds count.
	Found bool `json:"-"`
}

type DeductResult struct {
	OrderID         uuid.UUID    `json:"order_id"`
	Deducted        int          `json:"deducted"`
	AlreadyDeducted []uuid.UUID  `json:"already_deducted,omitempty"`
	Records         []RecordView `json:"records"`
}

type SweepResult struct {
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// TransactionFilter narrows a product's audit history. Ascending switches to
// oldest-first ordering.
type TransactionFilter struct {
	From      *time.Time
	To        *time.Time
	Type      *enums.InventoryTransactionType
	Ascending bool
	Cursor    string
	Limit     int
}

type TransactionView struct {
	ID              uuid.UUID                      `json:"id"`
	Sequence        int64                          `json:"sequence"`
	TransactionType enums.InventoryTransactionType `json:"transaction_type"`
	Quantity        int                            `json:"quantity"`
	AvailableDelta  int                            `json:"available_delta"`
	ReservedDelta   int                            `json:"reserved_delta"`
	ReferenceType   enums.InventoryReferenceType   `json:"reference_type"`
	ReferenceID     *string                        `json:"reference_id,omitempty"`
	Reason          *string                        `json:"reason,omitempty"`
	BeforeQuantity  int                            `json:"before_quantity"`
	AfterQuantity   int                            `json:"after_quantity"`
	OperatorID      *uuid.UUID                     `json:"operator_id,omitempty"`
	CreatedAt       time.Time                      `json:"created_at"`
}

func newTransactionView(e models.InventoryTransaction) TransactionView {
	return TransactionView{
		ID:              e.ID,
		Sequence:        e.Sequence,
		TransactionType: e.TransactionType,
		Quantity:        e.Quantity,
		AvailableDelta:  e.AvailableDelta,
		ReservedDelta:   e.ReservedDelta,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		Reason:          e.Reason,
		BeforeQuantity:  e.BeforeQuantity,
		AfterQuantity:   e.AfterQuantity,
		OperatorID:      e.OperatorID,
		CreatedAt:       e.CreatedAt,
	}
}

type TransactionPage struct {
	Items      []TransactionView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type LowStockItem struct {
	RecordView
	Shortfall int `json:"shortfall"`
}

type LowStockPage struct {
	Items      []LowStockItem `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
}

type Quantities struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Total     int `json:"total"`
}

// ReconcileReport compares the ledger row with a replay of its log.
type ReconcileReport struct {
	ProductID      uuid.UUID  `json:"product_id"`
	Opening        int        `json:"opening_quantity"`
	Ledger         Quantities `json:"ledger"`
	Replayed       Quantities `json:"replayed"`
	ActiveHolds    int        `json:"active_hold_quantity"`
	Entries        int        `json:"entries"`
	SequenceIntact bool       `json:"sequence_intact"`
	Consistent     bool       `json:"consistent"`
}
