package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultWarningThreshold is applied to records created lazily from a product.
const DefaultWarningThreshold = 10

// InventoryRecord is the current stock state of one product. Total always
// equals Available + Reserved once a transaction commits.
type InventoryRecord struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_records_product"`
	AvailableQuantity int       `gorm:"column:available_quantity;not null;default:0"`
	ReservedQuantity  int       `gorm:"column:reserved_quantity;not null;default:0"`
	TotalQuantity     int       `gorm:"column:total_quantity;not null;default:0"`
	WarningThreshold  int       `gorm:"column:warning_threshold;not null;default:10"`
	// OpeningQuantity is the stock figure the record was seeded with; replaying
	// the transaction log starts from it.
	OpeningQuantity int `gorm:"column:opening_quantity;not null;default:0"`
	// Version counts committed mutations and numbers transaction log entries.
	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r InventoryRecord) IsLowStock() bool {
	return r.AvailableQuantity <= r.WarningThreshold
}

func (r InventoryRecord) IsOutOfStock() bool {
	return r.AvailableQuantity <= 0
}
