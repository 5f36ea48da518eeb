package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// InventoryTransaction is one append-only stock movement. Sequence mirrors the
// record version after the mutation, so a product's entries form a gapless
// series. BeforeQuantity/AfterQuantity track available stock; the two delta
// columns carry enough to replay available and reserved exactly.
type InventoryTransaction struct {
	ID              uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID                      `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_transactions_sequence,priority:1"`
	Sequence        int64                          `gorm:"column:sequence;not null;uniqueIndex:ux_inventory_transactions_sequence,priority:2"`
	TransactionType enums.InventoryTransactionType `gorm:"column:transaction_type;type:inventory_transaction_type;not null"`
	Quantity        int                            `gorm:"column:quantity;not null"`
	AvailableDelta  int                            `gorm:"column:available_delta;not null"`
	ReservedDelta   int                            `gorm:"column:reserved_delta;not null"`
	ReferenceType   enums.InventoryReferenceType   `gorm:"column:reference_type;type:inventory_reference_type;not null"`
	ReferenceID     *string                        `gorm:"column:reference_id"`
	Reason          *string                        `gorm:"column:reason"`
	BeforeQuantity  int                            `gorm:"column:before_quantity;not null"`
	AfterQuantity   int                            `gorm:"column:after_quantity;not null"`
	OperatorID      *uuid.UUID                     `gorm:"column:operator_id;type:uuid"`
	CreatedAt       time.Time                      `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryTransaction) TableName() string { return "inventory_transactions" }

func (t *InventoryTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
