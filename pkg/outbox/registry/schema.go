// Package registry holds the payload schema of every inventory event type and
// validates outbox rows against it before they are published.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-inventory/pkg/db/models"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox"
	"github.com/angelmondragon/storefront-inventory/pkg/outbox/payloads"
)

// ErrMalformed marks a row that can never be published as stored. Retrying it
// cannot help.
var ErrMalformed = errors.New("malformed outbox event")

type schema struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
}

var schemas = map[enums.OutboxEventType]schema{
	enums.EventInventoryLowStock: {
		aggregate: enums.AggregateInventoryRecord,
		payload:   func() any { return &payloads.LowStockEvent{} },
	},
	enums.EventInventoryOutOfStock: {
		aggregate: enums.AggregateInventoryRecord,
		payload:   func() any { return &payloads.OutOfStockEvent{} },
	},
	enums.EventReservationExpired: {
		aggregate: enums.AggregateReservation,
		payload:   func() any { return &payloads.ReservationExpiredEvent{} },
	},
}

// Decoded is an outbox row that passed validation.
type Decoded struct {
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Decode checks the row's aggregate against its event type and decodes the
// envelope and typed payload. Every failure wraps ErrMalformed.
func Decode(event models.OutboxEvent) (*Decoded, error) {
	s, ok := schemas[event.EventType]
	if !ok {
		return nil, malformed("unsupported event type %s", event.EventType)
	}
	if event.AggregateType != s.aggregate {
		return nil, malformed("%s belongs to %s, not %s", event.EventType, s.aggregate, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, malformed("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, malformed("%s has no payload", event.EventType)
	}
	payload := s.payload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, malformed("decode %s payload: %v", event.EventType, err)
	}
	return &Decoded{Envelope: envelope, Payload: payload}, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
