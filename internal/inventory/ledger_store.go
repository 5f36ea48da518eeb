package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-inventory/internal/repo"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/pagination"
)

// LedgerStore owns inventory_records. ApplyDelta is the only write path for
// quantities.
type LedgerStore struct {
	repo.Base
	now func() time.Time
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{Base: repo.NewBase(db), now: time.Now}
}

// GetOrCreate returns the product's record, seeding it from
// products.stock_quantity on first access. Concurrent first access converges
// on one row through ON CONFLICT DO NOTHING followed by a read.
func (s *LedgerStore) GetOrCreate(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.InventoryRecord, error) {
	conn := s.Conn(ctx, tx)

	var rec models.InventoryRecord
	err := conn.Where("product_id = ?", productID).Take(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var product models.Product
	if err := conn.Select("id", "stock_quantity").Where("id = ?", productID).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, productNotFound(productID)
		}
		return nil, err
	}

	seed := product.StockQuantity
	if seed < 0 {
		seed = 0
	}
	candidate := models.InventoryRecord{
		ProductID:         productID,
		AvailableQuantity: seed,
		TotalQuantity:     seed,
		WarningThreshold:  models.DefaultWarningThreshold,
		OpeningQuantity:   seed,
	}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoNothing: true,
	}).Create(&candidate).Error; err != nil {
		return nil, err
	}

	rec = models.InventoryRecord{}
	if err := conn.Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Lock ensures the record exists and takes an exclusive row lock on it for
// the rest of tx.
func (s *LedgerStore) Lock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.InventoryRecord, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if _, err := s.GetOrCreate(ctx, tx, productID); err != nil {
		return nil, err
	}
	var rec models.InventoryRecord
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetBatch loads existing records for the given products without creating
// missing ones.
func (s *LedgerStore) GetBatch(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) (map[uuid.UUID]models.InventoryRecord, error) {
	out := make(map[uuid.UUID]models.InventoryRecord, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.InventoryRecord
	if err := s.Conn(ctx, tx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

// ApplyDelta moves quantities on a locked record. total is recomputed from the
// two deltas and the version is bumped; the returned record reflects the
// committed-to-be state. A negative outcome is an InvariantViolation and
// nothing is written.
func (s *LedgerStore) ApplyDelta(ctx context.Context, tx *gorm.DB, rec *models.InventoryRecord, availableDelta, reservedDelta int) (*models.InventoryRecord, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	nextAvailable := rec.AvailableQuantity + availableDelta
	nextReserved := rec.ReservedQuantity + reservedDelta
	if nextAvailable < 0 {
		return nil, invariantViolation(rec.ProductID, "available would become %d", nextAvailable)
	}
	if nextReserved < 0 {
		return nil, invariantViolation(rec.ProductID, "reserved would become %d", nextReserved)
	}
	if rec.TotalQuantity != rec.AvailableQuantity+rec.ReservedQuantity {
		return nil, invariantViolation(rec.ProductID, "total %d does not match available %d + reserved %d",
			rec.TotalQuantity, rec.AvailableQuantity, rec.ReservedQuantity)
	}

	now := s.now().UTC()
	res := tx.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Where("available_quantity + ? >= 0 AND reserved_quantity + ? >= 0", availableDelta, reservedDelta).
		Updates(map[string]any{
			"available_quantity": gorm.Expr("available_quantity + ?", availableDelta),
			"reserved_quantity":  gorm.Expr("reserved_quantity + ?", reservedDelta),
			"total_quantity":     gorm.Expr("total_quantity + ?", availableDelta+reservedDelta),
			"version":            gorm.Expr("version + 1"),
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, lockConflict(errors.New("inventory record changed underneath the lock"))
	}

	updated := *rec
	updated.AvailableQuantity = nextAvailable
	updated.ReservedQuantity = nextReserved
	updated.TotalQuantity = nextAvailable + nextReserved
	updated.Version = rec.Version + 1
	updated.UpdatedAt = now
	return &updated, nil
}

// UpdateThreshold changes metadata only; the version is left alone so the log
// sequence stays aligned with quantity mutations.
func (s *LedgerStore) UpdateThreshold(ctx context.Context, tx *gorm.DB, rec *models.InventoryRecord, threshold int) (*models.InventoryRecord, error) {
	now := s.now().UTC()
	err := s.Conn(ctx, tx).Model(&models.InventoryRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"warning_threshold": threshold,
			"updated_at":        now,
		}).Error
	if err != nil {
		return nil, err
	}
	updated := *rec
	updated.WarningThreshold = threshold
	updated.UpdatedAt = now
	return &updated, nil
}

// ListLowStock pages through records at or below their threshold, largest
// shortfall first.
func (s *LedgerStore) ListLowStock(ctx context.Context, page pagination.Page) ([]models.InventoryRecord, int64, error) {
	base := s.DB(ctx).Model(&models.InventoryRecord{}).
		Where("available_quantity <= warning_threshold")

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InventoryRecord
	err := base.Session(&gorm.Session{}).
		Order("(available_quantity - warning_threshold) ASC").
		Order("product_id ASC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// sortedProductIDs returns unique ids in the fixed lock order.
func sortedProductIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
