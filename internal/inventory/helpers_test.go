package inventory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-inventory/pkg/db"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/metrics"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	db      *gorm.DB
	svc     *Service
	clock   *testClock
	reg     *prometheus.Registry
	metrics *metrics.InventoryMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Product{},
		&models.InventoryRecord{},
		&models.InventoryReservation{},
		&models.InventoryTransaction{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	m := metrics.NewInventoryMetrics(reg)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewService(ServiceParams{
		DB:      dbpkg.FromConn(db),
		Outbox:  outbox.NewService(outbox.NewRepository(db), logg),
		Metrics: m,
		Logger:  logg,
		Config: config.InventoryConfig{
			CartTTLMinutes:    30,
			MaxCartTTLMinutes: 120,
			OrderTTLMinutes:   15,
			MaxBatchSize:      5,
			LockRetries:       3,
			LockRetryBase:     time.Millisecond,
		},
		SweepBatchSize: 2,
		Now:            clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{db: db, svc: svc, clock: clock, reg: reg, metrics: m}
}

func (f *fixture) seedProduct(t *testing.T, stock int) uuid.UUID {
	t.Helper()
	p := models.Product{SKU: "SKU-" + uuid.NewString()[:8], Title: "Widget", StockQuantity: stock, IsActive: true}
	if err := f.db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func (f *fixture) record(t *testing.T, productID uuid.UUID) models.InventoryRecord {
	t.Helper()
	var rec models.InventoryRecord
	if err := f.db.Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	return rec
}

func (f *fixture) entries(t *testing.T, productID uuid.UUID) []models.InventoryTransaction {
	t.Helper()
	var rows []models.InventoryTransaction
	if err := f.db.Where("product_id = ?", productID).Order("sequence ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	return rows
}

func (f *fixture) events(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	if err := f.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	return rows
}

// assertBalanced checks the ledger identity and that live holds match reserved.
func (f *fixture) assertBalanced(t *testing.T, productID uuid.UUID) {
	t.Helper()
	report, err := f.svc.Reconcile(context.Background(), productID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("inventory out of balance: %+v", report)
	}
}

func expectQuantities(t *testing.T, rec models.InventoryRecord, available, reserved, total int) {
	t.Helper()
	if rec.AvailableQuantity != available || rec.ReservedQuantity != reserved || rec.TotalQuantity != total {
		t.Fatalf("expected %d/%d/%d got %d/%d/%d", available, reserved, total,
			rec.AvailableQuantity, rec.ReservedQuantity, rec.TotalQuantity)
	}
}
