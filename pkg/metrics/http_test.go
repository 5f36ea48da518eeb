package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("GET", "/api/v1/inventory/{product_id}", 200, 20*time.Millisecond)
	m.Observe("GET", "/api/v1/inventory/{product_id}", 200, 10*time.Millisecond)
	m.Observe("POST", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "/api/v1/inventory/{product_id}"); err != nil || got != 2 {
		t.Fatalf("expected 2 requests, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "unmatched"); err != nil || got != 1 {
		t.Fatalf("expected unmatched route bucket, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/v1/inventory/{product_id}"); err != nil || got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f (%v)", got, err)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", 200, time.Second)
	NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Second)
}
