package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

// CurrentVersion is stamped on envelopes when the event leaves Version unset.
const CurrentVersion = 1

// DomainEvent is what the engine hands over; Data is encoded into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores events inside tx in one insert. The relay only sees them once
// the caller's transaction commits, and a rollback discards them with the
// stock change they describe.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, events ...DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.OutboxEvent, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, event := range events {
		row, eventID, err := s.row(event)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		ids = append(ids, eventID)
	}
	if err := s.repo.InsertBatch(tx, rows); err != nil {
		return fmt.Errorf("queue outbox events: %w", err)
	}
	if s.logg != nil {
		for i, row := range rows {
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
				"event_id":       ids[i],
				"event_type":     row.EventType,
				"aggregate_type": row.AggregateType,
				"aggregate_id":   row.AggregateID.String(),
			}), "outbox event queued")
		}
	}
	return nil
}

func (s *Service) row(event DomainEvent) (models.OutboxEvent, string, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, "", fmt.Errorf("invalid event type %q", event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, "", fmt.Errorf("%s: aggregate id required", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("%s: encode data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, env.EventID, nil
}
