package inventory

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
	"github.com/angelmondragon/storefront-inventory/pkg/pagination"
)

// GetInventory returns the product's stock, seeding the record on first read.
func (s *Service) GetInventory(ctx context.Context, productID uuid.UUID) (view RecordView, err error) {
	ctx, done := s.observe(ctx, "get")
	defer func() { done(err) }()

	if productID == uuid.Nil {
		return view, validationError("product_id is required")
	}
	rec, err := s.ledger.GetOrCreate(ctx, nil, productID)
	if err != nil {
		return view, internalError(err, "load inventory")
	}
	return newRecordView(*rec), nil
}

// GetBatch looks up several products at once. Unknown product ids are listed
// in Missing instead of failing the call.
func (s *Service) GetBatch(ctx context.Context, productIDs []uuid.UUID) (result BatchResult, err error) {
	ctx, done := s.observe(ctx, "get_batch", attribute.Int("items", len(productIDs)))
	defer func() { done(err) }()

	if len(productIDs) == 0 {
		return result, validationError("product_ids are required")
	}
	if len(productIDs) > s.cfg.MaxBatchSize {
		return result, pkgerrors.New(pkgerrors.CodeUnprocessable, "too many products in one request").
			WithDetails(map[string]int{"max_items": s.cfg.MaxBatchSize, "items": len(productIDs)})
	}
	for _, id := range productIDs {
		if id == uuid.Nil {
			return result, validationError("product_ids must be valid uuids")
		}
	}
	ids := sortedProductIDs(productIDs)

	found, err := s.ledger.GetBatch(ctx, nil, ids)
	if err != nil {
		return result, internalError(err, "load inventory batch")
	}
	result = BatchResult{Records: make([]RecordView, 0, len(ids)), Missing: []uuid.UUID{}}
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			result.Records = append(result.Records, newRecordView(rec))
			continue
		}
		rec, err := s.ledger.GetOrCreate(ctx, nil, id)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			result.Missing = append(result.Missing, id)
			continue
		}
		if err != nil {
			return BatchResult{}, internalError(err, "load inventory batch")
		}
		result.Records = append(result.Records, newRecordView(*rec))
	}
	return result, nil
}

// GetLowStockProducts lists records at or below their threshold, most urgent
// first.
func (s *Service) GetLowStockProducts(ctx context.Context, page, size int) (result LowStockPage, err error) {
	ctx, done := s.observe(ctx, "low_stock")
	defer func() { done(err) }()

	p := pagination.NewPage(page, size)
	rows, total, err := s.ledger.ListLowStock(ctx, p)
	if err != nil {
		return result, internalError(err, "list low stock")
	}
	result = LowStockPage{
		Items:      make([]LowStockItem, 0, len(rows)),
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
	}
	for _, rec := range rows {
		result.Items = append(result.Items, LowStockItem{
			RecordView: newRecordView(rec),
			Shortfall:  rec.WarningThreshold - rec.AvailableQuantity,
		})
	}
	return result, nil
}

// ListTransactions pages through a product's audit log.
func (s *Service) ListTransactions(ctx context.Context, productID uuid.UUID, filter TransactionFilter) (result TransactionPage, err error) {
	ctx, done := s.observe(ctx, "list_transactions")
	defer func() { done(err) }()

	if productID == uuid.Nil {
		return result, validationError("product_id is required")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return result, validationError("from must not be after to")
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return result, validationError("unknown transaction type %q", *filter.Type)
	}
	if _, err := s.ledger.GetOrCreate(ctx, nil, productID); err != nil {
		return result, internalError(err, "load inventory")
	}

	rows, next, err := s.log.Query(ctx, productID, filter)
	if err != nil {
		return result, internalError(err, "query inventory transactions")
	}
	result = TransactionPage{Items: make([]TransactionView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		result.Items = append(result.Items, newTransactionView(row))
	}
	return result, nil
}

// Reconcile replays the product's log under the row lock and compares it with
// the ledger and the live holds.
func (s *Service) Reconcile(ctx context.Context, productID uuid.UUID) (report ReconcileReport, err error) {
	ctx, done := s.observe(ctx, "reconcile")
	defer func() { done(err) }()

	if productID == uuid.Nil {
		return report, validationError("product_id is required")
	}
	err = s.inTx(ctx, func(u *unitOfWork) error {
		rec, err := u.lock(productID)
		if err != nil {
			return err
		}
		report, err = s.reconcileLocked(u.ctx, u.tx, rec)
		return err
	})
	if err == nil && !report.Consistent {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"product_id":      productID.String(),
			"ledger_total":    report.Ledger.Total,
			"replayed_total":  report.Replayed.Total,
			"active_holds":    report.ActiveHolds,
			"sequence_intact": report.SequenceIntact,
		}), "inventory reconcile mismatch")
	}
	return report, err
}

func (s *Service) reconcileLocked(ctx context.Context, tx *gorm.DB, rec *models.InventoryRecord) (ReconcileReport, error) {
	entries, err := s.log.History(ctx, tx, rec.ProductID)
	if err != nil {
		return ReconcileReport{}, err
	}
	holds, err := s.registry.ActiveQuantity(ctx, tx, rec.ProductID)
	if err != nil {
		return ReconcileReport{}, err
	}
	replayed := Replay(rec.OpeningQuantity, entries)
	ledger := Quantities{
		Available: rec.AvailableQuantity,
		Reserved:  rec.ReservedQuantity,
		Total:     rec.TotalQuantity,
	}
	report := ReconcileReport{
		ProductID:      rec.ProductID,
		Opening:        rec.OpeningQuantity,
		Ledger:         ledger,
		Replayed:       replayed,
		ActiveHolds:    holds,
		Entries:        len(entries),
		SequenceIntact: sequenceIntact(entries, rec.Version),
	}
	report.Consistent = report.SequenceIntact &&
		replayed == ledger &&
		ledger.Total == ledger.Available+ledger.Reserved &&
		holds == ledger.Reserved
	return report, nil
}

// ListCartReservations returns the holder's live holds.
func (s *Service) ListCartReservations(ctx context.Context, holderID string) (holds []HoldView, err error) {
	ctx, done := s.observe(ctx, "list_cart_holds")
	defer func() { done(err) }()

	if holderID == "" {
		return nil, validationError("holder_id is required")
	}
	rows, err := s.registry.ListLiveCartHolds(ctx, holderID)
	if err != nil {
		return nil, internalError(err, "list reservations")
	}
	holds = make([]HoldView, 0, len(rows))
	for _, row := range rows {
		holds = append(holds, newHoldView(row))
	}
	return holds, nil
}
