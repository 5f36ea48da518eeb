package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	return db
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}))
	productID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventInventoryOutOfStock,
			AggregateType: enums.AggregateInventoryRecord,
			AggregateID:   productID,
			Data:          map[string]any{"product_id": productID},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.AggregateID != productID || row.PublishedAt != nil {
		t.Fatalf("unexpected row %+v", row)
	}
	var env PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Version != CurrentVersion || env.EventID == "" || env.OccurredAt.IsZero() {
		t.Fatalf("envelope not populated: %+v", env)
	}
}

func TestServiceEmitRejectsUnknownEvent(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	err := svc.Emit(context.Background(), db, DomainEvent{EventType: "nope", AggregateID: uuid.New()})
	if err == nil {
		t.Fatal("expected invalid event type error")
	}
	if err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventInventoryLowStock}); err == nil {
		t.Fatal("expected transaction required error")
	}
}

func TestServiceEmitBatchesEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	productID, holdID := uuid.New(), uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx,
			DomainEvent{EventType: enums.EventInventoryLowStock, AggregateType: enums.AggregateInventoryRecord, AggregateID: productID},
			DomainEvent{EventType: enums.EventReservationExpired, AggregateType: enums.AggregateReservation, AggregateID: holdID, Version: 2},
		)
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := db.Order("aggregate_type").Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
	seen := map[string]bool{}
	for _, row := range rows {
		var env PayloadEnvelope
		if err := json.Unmarshal(row.Payload, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if !env.OccurredAt.Equal(fixed) {
			t.Fatalf("expected service clock on envelope, got %s", env.OccurredAt)
		}
		if seen[env.EventID] {
			t.Fatalf("event ids must be unique")
		}
		seen[env.EventID] = true
		if row.AggregateID == holdID && env.Version != 2 {
			t.Fatalf("explicit version lost: %+v", env)
		}
	}
}

func TestServiceEmitIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), db,
		DomainEvent{EventType: enums.EventInventoryLowStock, AggregateType: enums.AggregateInventoryRecord, AggregateID: uuid.New()},
		DomainEvent{EventType: enums.EventInventoryOutOfStock, AggregateType: enums.AggregateInventoryRecord},
	)
	if err == nil {
		t.Fatal("expected missing aggregate id error")
	}
	var count int64
	db.Model(&models.OutboxEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("no row may be written when one event is invalid, got %d", count)
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	first := seedEvent(t, db, 0)
	second := seedEvent(t, db, 0)
	parked := seedEvent(t, db, 5)

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected parked row to be skipped, got %d rows", len(rows))
	}

	if err := repo.MarkPublishedTx(db, first.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.MarkFailedTx(db, second.ID, errors.New("boom")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkTerminalTx(db, parked.ID, errors.New("bad payload"), 5); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	var reloaded models.OutboxEvent
	if err := db.First(&reloaded, "id = ?", second.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AttemptCount != 1 || reloaded.LastError == nil || *reloaded.LastError != "boom" {
		t.Fatalf("failure not recorded: %+v", reloaded)
	}

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 5)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != second.ID {
		t.Fatalf("expected only the retried row, got %+v", rows)
	}
}

func TestRepositoryPrunePublished(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return old }

	var published []uuid.UUID
	for i := 0; i < 3; i++ {
		row := seedEvent(t, db, 0)
		if err := repo.MarkPublishedTx(db, row.ID); err != nil {
			t.Fatalf("mark published: %v", err)
		}
		published = append(published, row.ID)
	}
	pending := seedEvent(t, db, 0)

	deleted, err := repo.PrunePublished(context.Background(), nil, old.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected the batch limit to apply, got %d", deleted)
	}
	deleted, err = repo.PrunePublished(context.Background(), nil, old.Add(time.Hour), 2)
	if err != nil || deleted != 1 {
		t.Fatalf("expected the last published row, got %d (%v)", deleted, err)
	}

	var count int64
	db.Model(&models.OutboxEvent{}).Where("id IN ?", published).Count(&count)
	if count != 0 {
		t.Fatalf("expected published rows gone, %d left", count)
	}
	db.Model(&models.OutboxEvent{}).Where("id = ?", pending.ID).Count(&count)
	if count != 1 {
		t.Fatal("pending row must survive retention")
	}
	if _, err := repo.PrunePublished(context.Background(), nil, old, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestRepositoryPruneParked(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	parked := seedEvent(t, db, 10)
	retrying := seedEvent(t, db, 3)
	cutoff := time.Now().Add(time.Hour)

	if n, err := repo.PruneParked(context.Background(), nil, cutoff, 0, 10); err != nil || n != 0 {
		t.Fatalf("zero max attempts must be a no-op, got %d (%v)", n, err)
	}
	deleted, err := repo.PruneParked(context.Background(), nil, cutoff, 10, 10)
	if err != nil {
		t.Fatalf("prune parked: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one parked row deleted, got %d", deleted)
	}
	var count int64
	db.Model(&models.OutboxEvent{}).Where("id = ?", parked.ID).Count(&count)
	if count != 0 {
		t.Fatal("parked row should be gone")
	}
	db.Model(&models.OutboxEvent{}).Where("id = ?", retrying.ID).Count(&count)
	if count != 1 {
		t.Fatal("row still being retried must survive")
	}
}

func seedEvent(t *testing.T, db *gorm.DB, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventInventoryLowStock,
		AggregateType: enums.AggregateInventoryRecord,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		AttemptCount:  attempts,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return row
}

func TestDLQRepositoryTruncatesLongErrors(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)

	long := strings.Repeat("x", maxDLQErrorLen+200)
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventReservationExpired,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  10,
	}
	if err := dlq.InsertTx(db, entry); err != nil {
		t.Fatalf("insert dlq: %v", err)
	}
	if err := dlq.InsertTx(nil, entry); err == nil {
		t.Fatal("expected error without a transaction")
	}

	var stored models.OutboxDLQ
	if err := db.Where("event_id = ?", entry.EventID).Take(&stored).Error; err != nil {
		t.Fatalf("load dlq: %v", err)
	}
	if stored.ErrorMessage == nil || len(*stored.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected message truncated to %d", maxDLQErrorLen)
	}
}
