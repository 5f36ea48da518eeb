package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
)

const maxWarningThreshold = 1_000_000

// DeductInventory permanently removes stock for a paid order. Quantity covered
// by the order's live hold comes out of reserved; anything beyond it, or any
// item whose hold is gone or expired, must be covered by available or the
// whole batch fails with INSUFFICIENT_STOCK. Unused hold quantity is released.
// Items the order already paid for are left untouched and listed in
// AlreadyDeducted, so a retried call cannot take stock twice.
func (s *Service) DeductInventory(ctx context.Context, in DeductInput) (result DeductResult, err error) {
	ctx, done := s.observe(ctx, "deduct", attribute.Int("items", len(in.Items)))
	defer func() { done(err) }()

	if in.OrderID == uuid.Nil {
		return result, validationError("order_id is required")
	}
	items, err := s.normalizeItems(in.Items)
	if err != nil {
		return result, err
	}
	ctx = s.logg.WithOrderID(ctx, in.OrderID.String())

	err = s.inTx(ctx, func(u *unitOfWork) error {
		result = DeductResult{OrderID: in.OrderID, Records: make([]RecordView, 0, len(items))}
		for _, item := range items {
			rec, applied, err := u.deduct(in.OrderID, item)
			if err != nil {
				return err
			}
			if applied {
				result.Deducted += item.Quantity
			} else {
				result.AlreadyDeducted = append(result.AlreadyDeducted, item.ProductID)
			}
			result.Records = append(result.Records, newRecordView(*rec))
		}
		return nil
	})
	return result, err
}

// deduct reports applied=false when the order already has an OUT entry for
// the product.
func (u *unitOfWork) deduct(orderID uuid.UUID, item Item) (*models.InventoryRecord, bool, error) {
	rec, err := u.lock(item.ProductID)
	if err != nil {
		return nil, false, err
	}
	done, err := u.s.log.OrderDeducted(u.ctx, u.tx, item.ProductID, orderID)
	if err != nil {
		return nil, false, err
	}
	if done {
		return rec, false, nil
	}

	key := orderKey(orderID)
	hold, err := u.s.registry.ActiveHold(u.ctx, u.tx, key, item.ProductID)
	if err != nil {
		return nil, false, err
	}
	if hold != nil {
		now := u.s.now().UTC()
		if !hold.ExpiresAt.After(now) {
			if rec, _, err = u.finishHold(rec, hold.ID, enums.ReservationStatusExpired, "reservation expired", &now); err != nil {
				return nil, false, err
			}
			hold = nil
		}
	}

	covered := 0
	if hold != nil {
		covered = min(item.Quantity, hold.Quantity)
	}
	extra := item.Quantity - covered
	if extra > rec.AvailableQuantity {
		return nil, false, insufficientStock(ShortfallDetail{
			ProductID: item.ProductID,
			Requested: item.Quantity,
			Available: rec.AvailableQuantity + covered,
		})
	}

	rec, err = u.move(rec, -extra, -covered, entryInput{
		Type:          enums.InventoryTransactionOut,
		Quantity:      item.Quantity,
		ReferenceType: enums.InventoryReferenceOrder,
		ReferenceID:   key.referenceID(),
	})
	if err != nil {
		return nil, false, err
	}
	if hold == nil {
		return rec, true, nil
	}

	ok, err := u.s.registry.Transition(u.ctx, u.tx, hold.ID, enums.ReservationStatusConsumed)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, lockConflict(errLostHold)
	}
	if remainder := hold.Quantity - covered; remainder > 0 {
		rec, err = u.move(rec, remainder, -remainder, entryInput{
			Type:          enums.InventoryTransactionRelease,
			Quantity:      remainder,
			ReferenceType: enums.InventoryReferenceOrder,
			ReferenceID:   key.referenceID(),
			Reason:        stringPtr("unused order reservation"),
		})
		if err != nil {
			return nil, false, err
		}
	}
	return rec, true, nil
}

// AdjustInventory applies an audited manual correction to available (and so
// total). Live holds are never touched.
func (s *Service) AdjustInventory(ctx context.Context, in AdjustInput) (view RecordView, err error) {
	ctx, done := s.observe(ctx, "adjust", attribute.String("adjustment", string(in.Type)))
	defer func() { done(err) }()

	if in.ProductID == uuid.Nil {
		return view, validationError("product_id is required")
	}
	if !in.Type.IsValid() {
		return view, validationError("type must be one of ADD, SUBTRACT, SET")
	}
	if in.Quantity < 0 || (in.Type != enums.AdjustmentSet && in.Quantity == 0) {
		return view, validationError("quantity must be positive")
	}
	if in.OperatorID == uuid.Nil {
		return view, validationError("operator_id is required for manual adjustments")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return view, validationError("reason is required")
	}
	ctx = s.logg.WithProductID(ctx, in.ProductID.String())

	err = s.inTx(ctx, func(u *unitOfWork) error {
		rec, err := u.lock(in.ProductID)
		if err != nil {
			return err
		}
		var delta int
		switch in.Type {
		case enums.AdjustmentAdd:
			delta = in.Quantity
		case enums.AdjustmentSubtract:
			delta = -in.Quantity
		case enums.AdjustmentSet:
			delta = in.Quantity - rec.AvailableQuantity
		}
		operator := in.OperatorID
		rec, err = u.move(rec, delta, 0, entryInput{
			Type:          enums.InventoryTransactionAdjust,
			Quantity:      abs(delta),
			ReferenceType: enums.InventoryReferenceManual,
			ReferenceID:   stringPtr(string(in.Type)),
			Reason:        stringPtr(reason),
			OperatorID:    &operator,
		})
		if err != nil {
			return err
		}
		view = newRecordView(*rec)
		return nil
	})
	if err == nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"adjustment":  in.Type,
			"quantity":    in.Quantity,
			"operator_id": in.OperatorID.String(),
		}), "inventory adjusted")
	}
	return view, err
}

// ReceiveStock books inbound goods into available and total.
func (s *Service) ReceiveStock(ctx context.Context, in ReceiveInput) (view RecordView, err error) {
	ctx, done := s.observe(ctx, "receive")
	defer func() { done(err) }()

	if in.ProductID == uuid.Nil {
		return view, validationError("product_id is required")
	}
	if in.Quantity <= 0 {
		return view, validationError("quantity must be positive")
	}
	ctx = s.logg.WithProductID(ctx, in.ProductID.String())

	err = s.inTx(ctx, func(u *unitOfWork) error {
		rec, err := u.lock(in.ProductID)
		if err != nil {
			return err
		}
		rec, err = u.move(rec, in.Quantity, 0, entryInput{
			Type:          enums.InventoryTransactionIn,
			Quantity:      in.Quantity,
			ReferenceType: enums.InventoryReferenceImport,
			ReferenceID:   stringPtr(strings.TrimSpace(in.ReferenceID)),
			Reason:        stringPtr(strings.TrimSpace(in.Reason)),
			OperatorID:    in.OperatorID,
		})
		if err != nil {
			return err
		}
		view = newRecordView(*rec)
		return nil
	})
	return view, err
}

// UpdateWarningThreshold changes the low-stock level. It is not a stock
// movement and writes no log entry.
func (s *Service) UpdateWarningThreshold(ctx context.Context, productID uuid.UUID, threshold int) (view RecordView, err error) {
	ctx, done := s.observe(ctx, "update_threshold")
	defer func() { done(err) }()

	if productID == uuid.Nil {
		return view, validationError("product_id is required")
	}
	if threshold < 0 || threshold > maxWarningThreshold {
		return view, validationError("threshold must be between 0 and %d", maxWarningThreshold)
	}

	err = s.inTx(ctx, func(u *unitOfWork) error {
		rec, err := u.lock(productID)
		if err != nil {
			return err
		}
		rec, err = s.ledger.UpdateThreshold(u.ctx, u.tx, rec, threshold)
		if err != nil {
			return err
		}
		view = newRecordView(*rec)
		return nil
	})
	return view, err
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
