package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/metrics"
)

type fakeLock struct {
	held     map[string]bool
	blocked  map[string]bool
	released []string
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: map[string]bool{}, blocked: map[string]bool{}}
}

func (f *fakeLock) Acquire(_ context.Context, job string) (bool, error) {
	if f.held[job] || f.blocked[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	f.held[job] = false
	f.released = append(f.released, job)
	return nil
}

type testJob struct {
	name     string
	err      error
	interval time.Duration
	runs     int
}

func (t *testJob) Name() string            { return t.name }
func (t *testJob) Interval() time.Duration { return t.interval }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, now func() time.Time, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		Now:      now,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := newFakeLock()
	service := newTestService(t, lock, nil, success, failure)

	err := service.runCycle(context.Background())
	if err == nil || !errors.Is(err, failure.err) {
		t.Fatalf("expected the failing job's error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d/%d", success.runs, failure.runs)
	}
	if len(lock.released) != 2 {
		t.Fatalf("expected both locks released, got %v", lock.released)
	}
}

func TestServiceSkipsJobsLockedElsewhere(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	lock := newFakeLock()
	lock.blocked[job.name] = true
	service := newTestService(t, lock, nil, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("locked job should not run")
	}
}

func TestServiceHonoursJobInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	daily := &testJob{name: "outbox-retention", interval: 24 * time.Hour}
	everyTick := &testJob{name: "reservation-expiry"}
	service := newTestService(t, newFakeLock(), clock, daily, everyTick)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := service.runCycle(ctx); err != nil {
			t.Fatalf("run cycle: %v", err)
		}
		now = now.Add(time.Hour)
	}
	if daily.runs != 1 || everyTick.runs != 3 {
		t.Fatalf("expected 1 daily and 3 tick runs, got %d/%d", daily.runs, everyTick.runs)
	}

	now = now.Add(24 * time.Hour)
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if daily.runs != 2 {
		t.Fatalf("daily job should run again after its interval, got %d", daily.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	service := newTestService(t, newFakeLock(), nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run, got %d", job.runs)
	}
}
