package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/internal/repo"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/pagination"
)

// TransactionLog is the append-only history of quantity movements.
type TransactionLog struct {
	repo.Base
}

func NewTransactionLog(db *gorm.DB) *TransactionLog {
	return &TransactionLog{Base: repo.NewBase(db)}
}

// entryInput describes one movement. The before/after figures and sequence are
// derived from the record states around ApplyDelta.
type entryInput struct {
	Type          enums.InventoryTransactionType
	Quantity      int
	ReferenceType enums.InventoryReferenceType
	ReferenceID   *string
	Reason        *string
	OperatorID    *uuid.UUID
}

// Append writes the entry explaining the transition before -> after. It must
// run in the same transaction as the ApplyDelta that produced after.
func (l *TransactionLog) Append(ctx context.Context, tx *gorm.DB, before, after *models.InventoryRecord, in entryInput) (*models.InventoryTransaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if after.Version != before.Version+1 {
		return nil, invariantViolation(after.ProductID, "log sequence gap: version %d -> %d", before.Version, after.Version)
	}
	entry := models.InventoryTransaction{
		ProductID:       after.ProductID,
		Sequence:        after.Version,
		TransactionType: in.Type,
		Quantity:        in.Quantity,
		AvailableDelta:  after.AvailableQuantity - before.AvailableQuantity,
		ReservedDelta:   after.ReservedQuantity - before.ReservedQuantity,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		Reason:          in.Reason,
		BeforeQuantity:  before.AvailableQuantity,
		AfterQuantity:   after.AvailableQuantity,
		OperatorID:      in.OperatorID,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Query returns one page of a product's entries, newest first unless
// filter.Ascending is set.
func (l *TransactionLog) Query(ctx context.Context, productID uuid.UUID, filter TransactionFilter) ([]models.InventoryTransaction, string, error) {
	cursor, hasCursor, err := pagination.ParseSequenceCursor(filter.Cursor)
	if err != nil {
		return nil, "", validationError("invalid cursor: %v", err)
	}
	limit := pagination.NormalizeLimit(filter.Limit)
	fetch := pagination.LimitWithBuffer(filter.Limit)

	query := l.DB(ctx).Where("product_id = ?", productID)
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", filter.To.UTC())
	}
	if filter.Type != nil {
		query = query.Where("transaction_type = ?", *filter.Type)
	}
	if filter.Ascending {
		if hasCursor {
			query = query.Where("sequence > ?", cursor)
		}
		query = query.Order("sequence ASC")
	} else {
		if hasCursor {
			query = query.Where("sequence < ?", cursor)
		}
		query = query.Order("sequence DESC")
	}

	var rows []models.InventoryTransaction
	if err := query.Limit(fetch).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = pagination.EncodeSequenceCursor(rows[len(rows)-1].Sequence)
	}
	return rows, next, nil
}

// OrderDeducted reports whether an OUT entry for orderID already exists on
// the product. Callers hold the product lock.
func (l *TransactionLog) OrderDeducted(ctx context.Context, tx *gorm.DB, productID, orderID uuid.UUID) (bool, error) {
	var count int64
	err := l.Conn(ctx, tx).
		Model(&models.InventoryTransaction{}).
		Where("product_id = ? AND transaction_type = ? AND reference_type = ? AND reference_id = ?",
			productID, enums.InventoryTransactionOut, enums.InventoryReferenceOrder, orderID.String()).
		Count(&count).Error
	return count > 0, err
}

// History returns every entry for the product oldest first.
func (l *TransactionLog) History(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]models.InventoryTransaction, error) {
	var rows []models.InventoryTransaction
	err := l.Conn(ctx, tx).
		Where("product_id = ?", productID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

// Replay folds entries onto the opening balance.
func Replay(opening int, entries []models.InventoryTransaction) Quantities {
	q := Quantities{Available: opening}
	for _, e := range entries {
		q.Available += e.AvailableDelta
		q.Reserved += e.ReservedDelta
	}
	q.Total = q.Available + q.Reserved
	return q
}

// sequenceIntact reports whether entries number 1..n without gaps.
func sequenceIntact(entries []models.InventoryTransaction, version int64) bool {
	if int64(len(entries)) != version {
		return false
	}
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			return false
		}
	}
	return true
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
