package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pharmasuite/lifecycle-engine/config/kafka"
)

// Lifecycle event names published for downstream consumers.
const (
	EventInstanceCreated     = "instance.created"
	EventInstanceSuspended   = "instance.suspended"
	EventInstanceReactivated = "instance.reactivated"
	EventInstanceDeleted     = "instance.deleted"
	EventSubscriptionExpired = "subscription.expired"
	EventSubscriptionRenewed = "subscription.renewed"
)

type LifecycleEvent struct {
	Event      string    `json:"event"`
	InstanceID string    `json:"instance_id,omitempty"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher emits lifecycle events on a kafka topic. Publication is
// best effort: a produce failure is logged but never fails the operation
// that triggered it.
type EventPublisher struct {
	producer kafka.MessageProducer
	logger   *slog.Logger
}

func NewEventPublisher(producer kafka.MessageProducer, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		logger:   logger.With("component", "event_publisher"),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event LifecycleEvent) {
	if p == nil || p.producer == nil {
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode lifecycle event", "event", event.Event, "error", err.Error())
		return
	}

	msg := &kafka.ProducerMessage{
		Key:   []byte(event.EntityID),
		Value: value,
	}
	if !p.producer.Produce(ctx, msg) {
		p.logger.Error("failed to publish lifecycle event", "event", event.Event, "entity_id", event.EntityID)
	}
}
