package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// InventoryMetrics tracks allocation engine operations and the units they move.
type InventoryMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	units      *prometheus.CounterVec
	expired    prometheus.Counter
	conflicts  prometheus.Counter
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_operations_total",
		Help: "Inventory engine operations by outcome and error code.",
	}, []string{"operation", "outcome", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_operation_duration_seconds",
		Help:    "Duration of inventory engine operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_units_total",
		Help: "Units moved by the inventory engine per transaction type.",
	}, []string{"type"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_expired_total",
		Help: "Reservations released by the expiry sweeper.",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_lock_conflicts_total",
		Help: "Lock conflicts retried by the inventory engine.",
	})
	reg.MustRegister(operations, latency, units, expired, conflicts)
	return &InventoryMetrics{
		operations: operations,
		latency:    latency,
		units:      units,
		expired:    expired,
		conflicts:  conflicts,
	}
}

// ObserveOperation records one completed operation. code is empty on success.
func (m *InventoryMetrics) ObserveOperation(op string, duration time.Duration, code string) {
	if m == nil || m.operations == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	m.operations.WithLabelValues(normalizeLabel(op), outcome, code).Inc()
	m.latency.WithLabelValues(normalizeLabel(op)).Observe(duration.Seconds())
}

// AddUnits counts units moved for a transaction type.
func (m *InventoryMetrics) AddUnits(txType string, qty int) {
	if m == nil || m.units == nil || qty <= 0 {
		return
	}
	m.units.WithLabelValues(normalizeLabel(txType)).Add(float64(qty))
}

func (m *InventoryMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *InventoryMetrics) IncLockConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}
