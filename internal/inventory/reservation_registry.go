package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/internal/repo"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// ReservationRegistry tracks holds. Quantity bookkeeping on the ledger is the
// engine's job; the registry only stores hold rows and their transitions.
type ReservationRegistry struct {
	repo.Base
	now func() time.Time
}

func NewReservationRegistry(db *gorm.DB) *ReservationRegistry {
	return &ReservationRegistry{Base: repo.NewBase(db), now: time.Now}
}

// ActiveCartHolds lists a holder's active holds, optionally filtered to
// productIDs.
func (r *ReservationRegistry) ActiveCartHolds(ctx context.Context, tx *gorm.DB, holderID string, productIDs []uuid.UUID) ([]models.InventoryReservation, error) {
	query := r.Conn(ctx, tx).
		Where("kind = ? AND holder_id = ? AND status = ?", enums.ReservationKindCart, holderID, enums.ReservationStatusActive)
	if len(productIDs) > 0 {
		query = query.Where("product_id IN ?", productIDs)
	}
	var rows []models.InventoryReservation
	err := query.Order("product_id ASC").Find(&rows).Error
	return rows, err
}

func (r *ReservationRegistry) ActiveOrderHolds(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := r.Conn(ctx, tx).
		Where("kind = ? AND order_id = ? AND status = ?", enums.ReservationKindOrder, orderID, enums.ReservationStatusActive).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// ActiveHold re-reads the active hold for one key under the caller's product
// lock. It returns nil when there is none.
func (r *ReservationRegistry) ActiveHold(ctx context.Context, tx *gorm.DB, key holdKey, productID uuid.UUID) (*models.InventoryReservation, error) {
	query := r.Conn(ctx, tx).Where("kind = ? AND product_id = ? AND status = ?", key.kind, productID, enums.ReservationStatusActive)
	switch key.kind {
	case enums.ReservationKindCart:
		query = query.Where("holder_id = ?", key.holderID)
	case enums.ReservationKindOrder:
		query = query.Where("order_id = ?", key.orderID)
	default:
		return nil, errors.New("unknown reservation kind")
	}
	var hold models.InventoryReservation
	err := query.Take(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ActiveByID re-reads a hold under the caller's product lock and returns nil
// when it is no longer active.
func (r *ReservationRegistry) ActiveByID(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.InventoryReservation, error) {
	var hold models.InventoryReservation
	err := r.Conn(ctx, tx).
		Where("id = ? AND status = ?", holdID, enums.ReservationStatusActive).
		Take(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// OrderHasHolds reports whether the order ever held stock, in any state.
func (r *ReservationRegistry) OrderHasHolds(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.Conn(ctx, tx).Model(&models.InventoryReservation{}).
		Where("kind = ? AND order_id = ?", enums.ReservationKindOrder, orderID).
		Count(&count).Error
	return count > 0, err
}

// Upsert creates the hold for key/product or replaces the quantity and expiry
// of the existing active one.
func (r *ReservationRegistry) Upsert(ctx context.Context, tx *gorm.DB, existing *models.InventoryReservation, key holdKey, batchID, productID uuid.UUID, quantity int, expiresAt time.Time) (*models.InventoryReservation, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	conn := tx.WithContext(ctx)
	if existing != nil {
		res := conn.Model(&models.InventoryReservation{}).
			Where("id = ? AND status = ?", existing.ID, enums.ReservationStatusActive).
			Updates(map[string]any{
				"quantity":   quantity,
				"batch_id":   batchID,
				"expires_at": expiresAt.UTC(),
				"updated_at": r.now().UTC(),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, lockConflict(errors.New("reservation changed underneath the lock"))
		}
		updated := *existing
		updated.Quantity = quantity
		updated.BatchID = batchID
		updated.ExpiresAt = expiresAt.UTC()
		return &updated, nil
	}

	hold := models.InventoryReservation{
		BatchID:   batchID,
		Kind:      key.kind,
		ProductID: productID,
		Quantity:  quantity,
		Status:    enums.ReservationStatusActive,
		ExpiresAt: expiresAt.UTC(),
	}
	if key.kind == enums.ReservationKindCart {
		holder := key.holderID
		hold.HolderID = &holder
	} else {
		order := key.orderID
		hold.OrderID = &order
	}
	if err := conn.Create(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

// Transition moves an active hold to a terminal status. It returns false when
// the hold already left ACTIVE, which callers treat as an idempotent no-op.
func (r *ReservationRegistry) Transition(ctx context.Context, tx *gorm.DB, holdID uuid.UUID, status enums.ReservationStatus) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if !status.IsTerminal() {
		return false, errors.New("target status must be terminal")
	}
	now := r.now().UTC()
	res := tx.WithContext(ctx).Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", holdID, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":      status,
			"terminal_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindExpired returns active holds whose expiry is at or before now.
func (r *ReservationRegistry) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.InventoryReservation, error) {
	query := r.DB(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now.UTC()).
		Order("expires_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.InventoryReservation
	err := query.Find(&rows).Error
	return rows, err
}

// ListLiveCartHolds returns the holder's active holds that have not expired.
func (r *ReservationRegistry) ListLiveCartHolds(ctx context.Context, holderID string) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := r.DB(ctx).
		Where("kind = ? AND holder_id = ? AND status = ? AND expires_at > ?",
			enums.ReservationKindCart, holderID, enums.ReservationStatusActive, r.now().UTC()).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// ActiveQuantity sums the active holds on a product.
func (r *ReservationRegistry) ActiveQuantity(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var total int64
	err := r.Conn(ctx, tx).Model(&models.InventoryReservation{}).
		Where("product_id = ? AND status = ?", productID, enums.ReservationStatusActive).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

// holdKey identifies the owner of a hold.
type holdKey struct {
	kind     enums.ReservationKind
	holderID string
	orderID  uuid.UUID
}

func cartKey(holderID string) holdKey {
	return holdKey{kind: enums.ReservationKindCart, holderID: holderID}
}

func orderKey(orderID uuid.UUID) holdKey {
	return holdKey{kind: enums.ReservationKindOrder, orderID: orderID}
}

func (k holdKey) referenceID() *string {
	if k.kind == enums.ReservationKindOrder {
		return stringPtr(k.orderID.String())
	}
	return stringPtr(k.holderID)
}

func keyOf(h models.InventoryReservation) holdKey {
	if h.Kind == enums.ReservationKindOrder && h.OrderID != nil {
		return orderKey(*h.OrderID)
	}
	holder := ""
	if h.HolderID != nil {
		holder = *h.HolderID
	}
	return cartKey(holder)
}
