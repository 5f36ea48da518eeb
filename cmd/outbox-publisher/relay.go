package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/config"
	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxIdleBackoff = 10 * time.Second
)

type txRunner interface {
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

// publisher is the slice of *pubsub.Publisher the relay needs. Publish on an
// ordering key that failed is refused until ResumePublish is called.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Config    config.OutboxConfig
	Topic     string
	Logger    *logger.Logger
	DB        txRunner
	Rows      outboxRows
	DLQ       deadLetters
	Publisher publisher
}

// Relay drains committed outbox rows to the inventory topic. The aggregate id
// is the ordering key, so subscribers see one product's events in commit
// order; a row that fails holds back the rest of its aggregate until the next
// pass.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	rows        outboxRows
	dlq         deadLetters
	pub         publisher
	topic       string
	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Publisher == nil:
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		rows:        p.Rows,
		dlq:         p.DLQ,
		pub:         p.Publisher,
		topic:       p.Topic,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		idle:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 10
	}
	if r.idle <= 0 {
		r.idle = 500 * time.Millisecond
	}
	return r, nil
}

// Run polls until ctx ends. A full pass goes straight into the next one; an
// empty pass waits one poll interval and a failed pass backs off
// exponentially.
func (r *Relay) Run(ctx context.Context) error {
	var backoff retry.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.drain(ctx)
		wait := r.idle
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay pass failed", err)
			if backoff == nil {
				backoff = retry.WithJitterPercent(20,
					retry.WithCappedDuration(maxIdleBackoff, retry.NewExponential(r.idle)))
			}
			wait, _ = backoff.Next()
		case n > 0:
			backoff = nil
			continue
		default:
			backoff = nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type outcome int

const (
	published outcome = iota
	deferred
	deadLettered
)

// drain runs one pass inside a single transaction so the row locks taken by
// the fetch are held until every row's state is written back.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var n int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		n = len(rows)
		held := map[uuid.UUID]bool{}
		for _, row := range rows {
			if held[row.AggregateID] {
				continue
			}
			out, err := r.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			if out == deferred {
				held[row.AggregateID] = true
			}
		}
		return nil
	})
	return n, err
}

// relay publishes one row and records the result. Only storage failures are
// returned as errors.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	decoded, err := registry.Decode(row)
	if err != nil {
		return deadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}

	if err := r.publish(ctx, row, decoded.Envelope.EventID); err != nil {
		if row.AttemptCount+1 >= r.maxAttempts {
			return deadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
				fmt.Errorf("max publish attempts reached: %w", err))
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox publish failed")
		if err := r.rows.MarkFailedTx(tx, row.ID, err); err != nil {
			return deferred, fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
		return deferred, nil
	}

	if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
		return published, fmt.Errorf("mark published %s: %w", row.ID, err)
	}
	r.logg.Info(ctx, "outbox event published")
	return published, nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, eventID string) error {
	key := row.AggregateID.String()
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := r.pub.Publish(ctx, &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   key,
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		r.pub.ResumePublish(key)
		return err
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
		"topic":        r.topic,
	}), "outbox event dead-lettered")

	msg := cause.Error()
	if err := r.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.rows.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// topicPublisher adapts *pubsub.Publisher, whose Publish returns a concrete
// result type.
type topicPublisher struct {
	*gcppubsub.Publisher
}

func (p topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
