package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/storefront-inventory/internal/inventory"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

type fakeSweeper struct {
	result inventory.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) CleanupExpiredReservations(context.Context) (inventory.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

func TestReservationExpiryJobRunsSweeper(t *testing.T) {
	sweeper := &fakeSweeper{result: inventory.SweepResult{Expired: 4}}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if job.Name() != "reservation-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if _, scheduled := job.(Scheduled); scheduled {
		t.Fatal("expiry should run on every tick")
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestReservationExpiryJobSurfacesPartialFailure(t *testing.T) {
	cause := errors.New("expire reservation: lock timeout")
	sweeper := &fakeSweeper{result: inventory.SweepResult{Expired: 2, Failed: 1}, err: cause}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestNewReservationExpiryJobRequiresSweeper(t *testing.T) {
	_, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err == nil {
		t.Fatal("expected sweeper required error")
	}
}
