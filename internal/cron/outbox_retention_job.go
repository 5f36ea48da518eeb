package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

const (
	outboxRetentionDays      = 30
	outboxMinAttempts        = 10
	outboxRetentionBatchSize = 500
	outboxRetentionInterval  = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	PrunePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	PruneParked(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// RetentionDays defaults to 30, MaxAttempts to 10 and BatchSize to 500.
	RetentionDays int
	MaxAttempts   int
	BatchSize     int
}

// NewOutboxRetentionJob prunes inventory events the relay delivered, plus rows
// parked at MaxAttempts. Rows still being retried are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		retention:   time.Duration(orDefault(params.RetentionDays, outboxRetentionDays)) * 24 * time.Hour,
		maxAttempts: orDefault(params.MaxAttempts, outboxMinAttempts),
		batch:       orDefault(params.BatchSize, outboxRetentionBatchSize),
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	retention   time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Interval() time.Duration { return outboxRetentionInterval }

// Run deletes in short transactions so a large backlog never holds row locks
// the relay is waiting on.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	published, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.outbox.PrunePublished(ctx, tx, cutoff, j.batch)
	})
	if err != nil {
		return err
	}
	parked, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.outbox.PruneParked(ctx, tx, cutoff, j.maxAttempts, j.batch)
	})
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"published_rows":  published,
		"parked_rows":     parked,
		"max_attempts":    j.maxAttempts,
		"retention_hours": j.retention.Hours(),
	})
	if err != nil {
		return err
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}

// drain repeats one batch until it comes back short.
func (j *outboxRetentionJob) drain(ctx context.Context, batch func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = batch(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
