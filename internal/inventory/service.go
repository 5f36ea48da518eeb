package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-inventory/pkg/db"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/metrics"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-inventory/pkg/tracing"
)

const (
	defaultSweepBatch = 500
	defaultRetryBase  = 25 * time.Millisecond
	maxRetryBackoff   = time.Second
)

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type ServiceParams struct {
	DB      *dbpkg.Client
	Outbox  eventEmitter
	Metrics *metrics.InventoryMetrics
	Logger  *logger.Logger
	Config  config.InventoryConfig
	// SweepBatchSize bounds how many expired holds one sweep pass loads.
	SweepBatchSize int
	Now            func() time.Time
}

// Service is the allocation engine. Every mutating call runs as one database
// transaction that locks the affected inventory rows in ascending product id
// order, mutates ledger and holds, and appends the matching log entries.
type Service struct {
	db       *dbpkg.Client
	ledger   *LedgerStore
	log      *TransactionLog
	registry *ReservationRegistry
	events   eventEmitter
	metrics  *metrics.InventoryMetrics
	logg     *logger.Logger
	cfg      config.InventoryConfig
	sweep    int
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	sweep := params.SweepBatchSize
	if sweep <= 0 {
		sweep = defaultSweepBatch
	}
	cfg := params.Config
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.CartTTLMinutes <= 0 {
		cfg.CartTTLMinutes = 30
	}
	if cfg.MaxCartTTLMinutes < cfg.CartTTLMinutes {
		cfg.MaxCartTTLMinutes = 120
	}
	if cfg.OrderTTLMinutes <= 0 {
		cfg.OrderTTLMinutes = 15
	}
	if cfg.LockRetryBase <= 0 {
		cfg.LockRetryBase = defaultRetryBase
	}

	conn := params.DB.DB()
	ledger := NewLedgerStore(conn)
	ledger.now = now
	registry := NewReservationRegistry(conn)
	registry.now = now

	return &Service{
		db:       params.DB,
		ledger:   ledger,
		log:      NewTransactionLog(conn),
		registry: registry,
		events:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      cfg,
		sweep:    sweep,
		now:      now,
	}, nil
}

// observe opens a span for op and returns the closer that records metrics and
// span status for the final error.
func (s *Service) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracing.Tracer().Start(ctx, "inventory."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		code := ""
		if err != nil {
			code = string(errorCode(err))
			if isCancellation(err) {
				code = "CANCELED"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
			if code == string(pkgerrors.CodeInvariantViolation) || code == string(pkgerrors.CodeInternal) {
				s.logg.Error(s.logg.WithField(ctx, "operation", op), "inventory operation failed", err)
			}
		}
		s.metrics.ObserveOperation(op, time.Since(start), code)
		span.End()
	}
}

// isCancellation reports a caller that gave up. Those errors pass through
// unwrapped so handlers can tell them from failures.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errorCode(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	if dbpkg.IsLockConflict(err) {
		return pkgerrors.CodeLockConflict
	}
	return pkgerrors.CodeInternal
}

// unitOfWork is one transaction attempt. moved tallies units per entry type and
// is only reported once the attempt commits.
type unitOfWork struct {
	s     *Service
	ctx   context.Context
	tx    *gorm.DB
	moved map[enums.InventoryTransactionType]int
}

// inTx runs fn in a transaction, retrying the whole attempt with exponential
// backoff while it fails on lock contention.
func (s *Service) inTx(ctx context.Context, fn func(u *unitOfWork) error) error {
	backoff := retry.WithMaxRetries(uint64(max(s.cfg.LockRetries, 0)),
		retry.WithCappedDuration(maxRetryBackoff, retry.NewExponential(s.cfg.LockRetryBase)))

	var committed *unitOfWork
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u := &unitOfWork{s: s, ctx: ctx, moved: map[enums.InventoryTransactionType]int{}}
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			u.tx = tx
			return fn(u)
		})
		if err != nil {
			if isLockConflict(err) {
				s.metrics.IncLockConflict()
				return retry.RetryableError(err)
			}
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		if isCancellation(err) {
			return err
		}
		if isLockConflict(err) && !pkgerrors.IsCode(err, pkgerrors.CodeLockConflict) {
			return lockConflict(err)
		}
		return internalError(err, "inventory transaction failed")
	}
	for typ, qty := range committed.moved {
		s.metrics.AddUnits(string(typ), qty)
	}
	return nil
}

func (u *unitOfWork) lock(productID uuid.UUID) (*models.InventoryRecord, error) {
	return u.s.ledger.Lock(u.ctx, u.tx, productID)
}

// move applies one ledger delta and its log entry, then queues threshold
// events for the transition.
func (u *unitOfWork) move(rec *models.InventoryRecord, availableDelta, reservedDelta int, in entryInput) (*models.InventoryRecord, error) {
	after, err := u.s.ledger.ApplyDelta(u.ctx, u.tx, rec, availableDelta, reservedDelta)
	if err != nil {
		return nil, err
	}
	if _, err := u.s.log.Append(u.ctx, u.tx, rec, after, in); err != nil {
		return nil, err
	}
	if err := u.emitThresholdEvents(rec, after, in.Type); err != nil {
		return nil, err
	}
	u.moved[in.Type] += in.Quantity
	return after, nil
}

// finishHold moves an active hold to status and returns its quantity to
// available. It re-reads the hold under the product lock; a hold that already
// left ACTIVE is skipped. When expiredAt is set the hold is only finished if it
// is still past its expiry at that instant.
func (u *unitOfWork) finishHold(rec *models.InventoryRecord, holdID uuid.UUID, status enums.ReservationStatus, reason string, expiredAt *time.Time) (*models.InventoryRecord, *models.InventoryReservation, error) {
	hold, err := u.s.registry.ActiveByID(u.ctx, u.tx, holdID)
	if err != nil || hold == nil {
		return rec, nil, err
	}
	if hold.ProductID != rec.ProductID {
		return nil, nil, invariantViolation(rec.ProductID, "hold %s belongs to product %s", hold.ID, hold.ProductID)
	}
	if expiredAt != nil && hold.ExpiresAt.After(*expiredAt) {
		return rec, nil, nil
	}
	ok, err := u.s.registry.Transition(u.ctx, u.tx, hold.ID, status)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return rec, nil, nil
	}
	key := keyOf(*hold)
	after, err := u.move(rec, hold.Quantity, -hold.Quantity, entryInput{
		Type:          enums.InventoryTransactionRelease,
		Quantity:      hold.Quantity,
		ReferenceType: hold.Kind.ReferenceType(),
		ReferenceID:   key.referenceID(),
		Reason:        stringPtr(reason),
	})
	if err != nil {
		return nil, nil, err
	}
	if status == enums.ReservationStatusExpired {
		if err := u.emitExpired(*hold); err != nil {
			return nil, nil, err
		}
	}
	return after, hold, nil
}

func (u *unitOfWork) emitThresholdEvents(before, after *models.InventoryRecord, cause enums.InventoryTransactionType) error {
	if u.s.events == nil {
		return nil
	}
	var events []outbox.DomainEvent
	if before.AvailableQuantity > before.WarningThreshold && after.AvailableQuantity <= after.WarningThreshold {
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventInventoryLowStock,
			AggregateType: enums.AggregateInventoryRecord,
			AggregateID:   after.ProductID,
			OccurredAt:    after.UpdatedAt,
			Data: payloads.LowStockEvent{
				ProductID:         after.ProductID,
				AvailableQuantity: after.AvailableQuantity,
				ReservedQuantity:  after.ReservedQuantity,
				WarningThreshold:  after.WarningThreshold,
				Cause:             cause,
			},
		})
	}
	if before.AvailableQuantity > 0 && after.AvailableQuantity == 0 {
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventInventoryOutOfStock,
			AggregateType: enums.AggregateInventoryRecord,
			AggregateID:   after.ProductID,
			OccurredAt:    after.UpdatedAt,
			Data: payloads.OutOfStockEvent{
				ProductID:        after.ProductID,
				ReservedQuantity: after.ReservedQuantity,
				TotalQuantity:    after.TotalQuantity,
				Cause:            cause,
			},
		})
	}
	return u.s.events.Emit(u.ctx, u.tx, events...)
}

func (u *unitOfWork) emitExpired(hold models.InventoryReservation) error {
	if u.s.events == nil {
		return nil
	}
	now := u.s.now().UTC()
	return u.s.events.Emit(u.ctx, u.tx, outbox.DomainEvent{
		EventType:     enums.EventReservationExpired,
		AggregateType: enums.AggregateReservation,
		AggregateID:   hold.ID,
		OccurredAt:    now,
		Data: payloads.ReservationExpiredEvent{
			ReservationID: hold.ID,
			BatchID:       hold.BatchID,
			Kind:          hold.Kind,
			HolderID:      hold.HolderID,
			OrderID:       hold.OrderID,
			ProductID:     hold.ProductID,
			Quantity:      hold.Quantity,
			ExpiresAt:     hold.ExpiresAt,
			ExpiredAt:     now,
		},
	})
}

// normalizeItems validates a reserve/deduct batch and returns it in lock order.
func (s *Service) normalizeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, validationError("items are required")
	}
	if len(items) > s.cfg.MaxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeUnprocessable, "too many items in one request").
			WithDetails(map[string]int{"max_items": s.cfg.MaxBatchSize, "items": len(items)})
	}
	byID := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, validationError("product_id is required")
		}
		if item.Quantity <= 0 {
			return nil, validationError("quantity for product %s must be positive", item.ProductID)
		}
		if _, dup := byID[item.ProductID]; dup {
			return nil, validationError("product %s is listed more than once", item.ProductID)
		}
		byID[item.ProductID] = item.Quantity
		ids = append(ids, item.ProductID)
	}
	out := make([]Item, 0, len(ids))
	for _, id := range sortedProductIDs(ids) {
		out = append(out, Item{ProductID: id, Quantity: byID[id]})
	}
	return out, nil
}
