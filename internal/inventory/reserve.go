package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

// ReserveForCart holds stock for a shopper. Each item replaces any active hold
// the holder already has on that product; only the difference is checked
// against available. The batch is all-or-nothing.
func (s *Service) ReserveForCart(ctx context.Context, in ReserveCartInput) (result ReservationResult, err error) {
	ctx, done := s.observe(ctx, "reserve_cart", attribute.Int("items", len(in.Items)))
	defer func() { done(err) }()

	holder := strings.TrimSpace(in.HolderID)
	if holder == "" {
		return result, validationError("holder_id is required")
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.CartTTL()
	}
	if ttl < time.Minute || ttl > time.Duration(s.cfg.MaxCartTTLMinutes)*time.Minute {
		return result, validationError("expires_minutes must be between 1 and %d", s.cfg.MaxCartTTLMinutes)
	}
	items, err := s.normalizeItems(in.Items)
	if err != nil {
		return result, err
	}
	ctx = s.logg.WithHolderID(ctx, holder)

	key := cartKey(holder)
	err = s.inTx(ctx, func(u *unitOfWork) error {
		result, err = u.reserveAll(key, items, ttl)
		return err
	})
	return result, err
}

// ReserveForOrder holds stock for checkout. Calling it again for the same
// order replaces the batch: quantities are reconciled per product and products
// no longer listed are released.
func (s *Service) ReserveForOrder(ctx context.Context, in ReserveOrderInput) (result ReservationResult, err error) {
	ctx, done := s.observe(ctx, "reserve_order", attribute.Int("items", len(in.Items)))
	defer func() { done(err) }()

	if in.OrderID == uuid.Nil {
		return result, validationError("order_id is required")
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.OrderTTL()
	}
	if ttl < time.Minute {
		return result, validationError("order reservation ttl must be at least one minute")
	}
	items, err := s.normalizeItems(in.Items)
	if err != nil {
		return result, err
	}
	ctx = s.logg.WithOrderID(ctx, in.OrderID.String())

	key := orderKey(in.OrderID)
	err = s.inTx(ctx, func(u *unitOfWork) error {
		existing, err := s.registry.ActiveOrderHolds(u.ctx, u.tx, in.OrderID)
		if err != nil {
			return err
		}
		requested := make(map[uuid.UUID]struct{}, len(items))
		for _, item := range items {
			requested[item.ProductID] = struct{}{}
		}
		var dropped []models.InventoryReservation
		for _, hold := range existing {
			if _, ok := requested[hold.ProductID]; !ok {
				dropped = append(dropped, hold)
			}
		}

		// Dropped products interleave with requested ones in lock order.
		byProduct := make(map[uuid.UUID]models.InventoryReservation, len(dropped))
		ids := make([]uuid.UUID, 0, len(items)+len(dropped))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		for _, hold := range dropped {
			byProduct[hold.ProductID] = hold
			ids = append(ids, hold.ProductID)
		}
		qty := make(map[uuid.UUID]int, len(items))
		for _, item := range items {
			qty[item.ProductID] = item.Quantity
		}

		batchID := uuid.New()
		expiresAt := s.now().UTC().Add(ttl)
		result = ReservationResult{ReservationID: batchID, ExpiresAt: expiresAt}
		for _, id := range sortedProductIDs(ids) {
			if hold, ok := byProduct[id]; ok {
				rec, err := u.lock(id)
				if err != nil {
					return err
				}
				if _, _, err := u.finishHold(rec, hold.ID, enums.ReservationStatusReleased, "removed from order", nil); err != nil {
					return err
				}
				continue
			}
			hold, err := u.reserve(key, batchID, id, qty[id], expiresAt)
			if err != nil {
				return err
			}
			result.Holds = append(result.Holds, newHoldView(*hold))
		}
		return nil
	})
	return result, err
}

func (u *unitOfWork) reserveAll(key holdKey, items []Item, ttl time.Duration) (ReservationResult, error) {
	batchID := uuid.New()
	expiresAt := u.s.now().UTC().Add(ttl)
	result := ReservationResult{ReservationID: batchID, ExpiresAt: expiresAt, Holds: make([]HoldView, 0, len(items))}
	for _, item := range items {
		hold, err := u.reserve(key, batchID, item.ProductID, item.Quantity, expiresAt)
		if err != nil {
			return ReservationResult{}, err
		}
		result.Holds = append(result.Holds, newHoldView(*hold))
	}
	return result, nil
}

// reserve locks the product, checks capacity against the difference from the
// key's current hold and writes the new hold state. Failure returns before any
// later product is locked.
func (u *unitOfWork) reserve(key holdKey, batchID, productID uuid.UUID, quantity int, expiresAt time.Time) (*models.InventoryReservation, error) {
	rec, err := u.lock(productID)
	if err != nil {
		return nil, err
	}
	existing, err := u.s.registry.ActiveHold(u.ctx, u.tx, key, productID)
	if err != nil {
		return nil, err
	}
	prior := 0
	if existing != nil {
		prior = existing.Quantity
	}
	delta := quantity - prior
	if delta > rec.AvailableQuantity {
		return nil, insufficientStock(ShortfallDetail{
			ProductID: productID,
			Requested: quantity,
			Available: rec.AvailableQuantity + prior,
		})
	}

	switch {
	case delta > 0:
		_, err = u.move(rec, -delta, delta, entryInput{
			Type:          enums.InventoryTransactionReserve,
			Quantity:      delta,
			ReferenceType: key.kind.ReferenceType(),
			ReferenceID:   key.referenceID(),
		})
	case delta < 0:
		_, err = u.move(rec, -delta, delta, entryInput{
			Type:          enums.InventoryTransactionRelease,
			Quantity:      -delta,
			ReferenceType: key.kind.ReferenceType(),
			ReferenceID:   key.referenceID(),
			Reason:        stringPtr("reservation reduced"),
		})
	}
	if err != nil {
		return nil, err
	}
	return u.s.registry.Upsert(u.ctx, u.tx, existing, key, batchID, productID, quantity, expiresAt)
}

// ReleaseCartReservation releases the holder's active holds, or only those on
// productIDs when given. Holds that are missing or already terminal are
// skipped, so repeated calls are harmless.
func (s *Service) ReleaseCartReservation(ctx context.Context, holderID string, productIDs []uuid.UUID) (result ReleaseResult, err error) {
	ctx, done := s.observe(ctx, "release_cart")
	defer func() { done(err) }()

	holder := strings.TrimSpace(holderID)
	if holder == "" {
		return result, validationError("holder_id is required")
	}
	if len(productIDs) > s.cfg.MaxBatchSize {
		return result, validationError("at most %d product_ids may be released at once", s.cfg.MaxBatchSize)
	}
	ctx = s.logg.WithHolderID(ctx, holder)

	err = s.inTx(ctx, func(u *unitOfWork) error {
		holds, err := s.registry.ActiveCartHolds(u.ctx, u.tx, holder, productIDs)
		if err != nil {
			return err
		}
		result, err = u.releaseHolds(holds, "released by holder")
		result.Found = len(holds) > 0
		return err
	})
	return result, err
}

// ReleaseOrderReservation releases every active hold of the order. Found is
// false only when the order never held stock at all.
func (s *Service) ReleaseOrderReservation(ctx context.Context, orderID uuid.UUID) (result ReleaseResult, err error) {
	ctx, done := s.observe(ctx, "release_order")
	defer func() { done(err) }()

	if orderID == uuid.Nil {
		return result, validationError("order_id is required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	err = s.inTx(ctx, func(u *unitOfWork) error {
		found, err := s.registry.OrderHasHolds(u.ctx, u.tx, orderID)
		if err != nil {
			return err
		}
		holds, err := s.registry.ActiveOrderHolds(u.ctx, u.tx, orderID)
		if err != nil {
			return err
		}
		result, err = u.releaseHolds(holds, "released by order")
		result.Found = found
		return err
	})
	return result, err
}

func (u *unitOfWork) releaseHolds(holds []models.InventoryReservation, reason string) (ReleaseResult, error) {
	var result ReleaseResult
	byProduct := make(map[uuid.UUID]models.InventoryReservation, len(holds))
	ids := make([]uuid.UUID, 0, len(holds))
	for _, hold := range holds {
		byProduct[hold.ProductID] = hold
		ids = append(ids, hold.ProductID)
	}
	for _, id := range sortedProductIDs(ids) {
		rec, err := u.lock(id)
		if err != nil {
			return result, err
		}
		_, released, err := u.finishHold(rec, byProduct[id].ID, enums.ReservationStatusReleased, reason, nil)
		if err != nil {
			return result, err
		}
		if released != nil {
			result.Released++
			result.Quantity += released.Quantity
		}
	}
	return result, nil
}
