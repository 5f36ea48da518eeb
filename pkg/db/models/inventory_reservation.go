package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// InventoryReservation is a hold on one product. Cart holds are keyed by
// (HolderID, ProductID); order holds by (OrderID, ProductID). BatchID groups
// the holds written by a single reserve call and is returned to callers as
// the reservation id.
type InventoryReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BatchID    uuid.UUID               `gorm:"column:batch_id;type:uuid;not null;index"`
	Kind       enums.ReservationKind   `gorm:"column:kind;type:reservation_kind;not null"`
	HolderID   *string                 `gorm:"column:holder_id;index:ix_reservations_holder"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid;index:ix_reservations_order"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity   int                     `gorm:"column:quantity;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:active"`
	ExpiresAt  time.Time               `gorm:"column:expires_at;not null;index"`
	TerminalAt *time.Time              `gorm:"column:terminal_at"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryReservation) TableName() string { return "inventory_reservations" }

func (r *InventoryReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsLive reports whether the hold is active and not yet past its expiry.
func (r InventoryReservation) IsLive(now time.Time) bool {
	return r.Status == enums.ReservationStatusActive && r.ExpiresAt.After(now)
}
