package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the slice of the catalog listing the inventory core reads. The
// stock figure seeds an InventoryRecord the first time the product is touched.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU           string    `gorm:"column:sku;not null"`
	Title         string    `gorm:"column:title;not null"`
	StockQuantity int       `gorm:"column:stock_quantity;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
