package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

func TestOutboxRetentionJobDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakeOutboxPruner{}
	job := newOutboxRetentionJob(t, pruner, OutboxRetentionJobParams{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-outboxRetentionDays*24*time.Hour), pruner.cutoff)
	require.Equal(t, outboxMinAttempts, pruner.maxAttempts)
	require.Equal(t, outboxRetentionBatchSize, pruner.limit)
	require.Equal(t, 1, pruner.publishedCalls)
	require.Equal(t, 1, pruner.parkedCalls)
	require.Equal(t, 24*time.Hour, job.Interval())
}

func TestOutboxRetentionJobUsesConfiguredRetention(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakeOutboxPruner{}
	job := newOutboxRetentionJob(t, pruner, OutboxRetentionJobParams{RetentionDays: 7, MaxAttempts: 4})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-7*24*time.Hour), pruner.cutoff)
	require.Equal(t, 4, pruner.maxAttempts)
}

func TestOutboxRetentionJobDrainsInBatches(t *testing.T) {
	// Two full batches then a short one.
	pruner := &fakeOutboxPruner{published: []int64{3, 3, 1}}
	runner := &countingTxRunner{}
	job := newOutboxRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 3, DB: runner})

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 3, pruner.publishedCalls)
	require.Equal(t, 1, pruner.parkedCalls)
	require.Equal(t, 4, runner.calls, "each batch runs in its own transaction")
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	pruner := &fakeOutboxPruner{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, pruner, OutboxRetentionJobParams{})

	require.Error(t, job.Run(context.Background()))
	require.Equal(t, 0, pruner.parkedCalls, "parked rows wait for the next run")
}

func TestOutboxRetentionJobStopsOnCancel(t *testing.T) {
	pruner := &fakeOutboxPruner{published: []int64{2, 2, 2, 2}}
	job := newOutboxRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	require.Equal(t, 0, pruner.publishedCalls)
}

func TestNewOutboxRetentionJobRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	for name, params := range map[string]OutboxRetentionJobParams{
		"logger": {},
		"db":     {Logger: logg, Outbox: &fakeOutboxPruner{}},
		"outbox": {Logger: logg, DB: passthroughTxRunner{}},
	} {
		if _, err := NewOutboxRetentionJob(params); err == nil {
			t.Fatalf("expected error without %s", name)
		}
	}
}

func newOutboxRetentionJob(t *testing.T, pruner *fakeOutboxPruner, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.Outbox = pruner
	if params.DB == nil {
		params.DB = passthroughTxRunner{}
	}
	jobIface, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "expected outboxRetentionJob, got %T", jobIface)
	return job
}

// fakeOutboxPruner returns the queued batch sizes in order, then zero.
type fakeOutboxPruner struct {
	published      []int64
	cutoff         time.Time
	maxAttempts    int
	limit          int
	publishedCalls int
	parkedCalls    int
	err            error
}

func (f *fakeOutboxPruner) PrunePublished(_ context.Context, _ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.publishedCalls++
	f.cutoff, f.limit = cutoff, limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.published) == 0 {
		return 0, nil
	}
	n := f.published[0]
	f.published = f.published[1:]
	return n, nil
}

func (f *fakeOutboxPruner) PruneParked(_ context.Context, _ *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	f.parkedCalls++
	f.maxAttempts = maxAttempts
	return 0, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type countingTxRunner struct{ calls int }

func (c *countingTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	c.calls++
	return fn(nil)
}
