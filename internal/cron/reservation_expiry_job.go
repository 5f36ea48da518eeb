package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-inventory/internal/inventory"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

type reservationSweeper interface {
	CleanupExpiredReservations(ctx context.Context) (inventory.SweepResult, error)
}

type ReservationExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper reservationSweeper
}

// NewReservationExpiryJob returns the job that releases expired holds on every
// worker tick.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation sweeper required")
	}
	return &reservationExpiryJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run reports an error when any hold failed to expire. The holds that did
// expire stay committed; the failed ones are retried next tick.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	res, err := j.sweeper.CleanupExpiredReservations(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired": res.Expired,
		"failed":  res.Failed,
	})
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	if res.Expired > 0 {
		j.logg.Info(logCtx, "expired reservations released")
	}
	return nil
}
