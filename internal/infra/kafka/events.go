package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type taskEventPayload struct {
	TaskID            string         `json:"task_id"`
	CaseID            string         `json:"case_id,omitempty"`
	State             string         `json:"state"`
	Assignee          *string        `json:"assignee,omitempty"`
	Action            string         `json:"action,omitempty"`
	TerminationReason *string        `json:"termination_reason,omitempty"`
	PartialSuccess    bool           `json:"partial_success"`
	OccurredAt        time.Time      `json:"occurred_at"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

func newTaskEventPayload(event domain.TaskEvent, at time.Time) taskEventPayload {
	payload := taskEventPayload{
		TaskID:         event.TaskID,
		CaseID:         event.CaseID,
		State:          string(event.State),
		Assignee:       event.Assignee,
		Action:         string(event.Action),
		PartialSuccess: event.PartialSuccess,
		OccurredAt:     at.UTC(),
		Metadata:       event.Metadata,
	}
	if event.TerminationReason != nil {
		reason := string(*event.TerminationReason)
		payload.TerminationReason = &reason
	}
	return payload
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishTaskEvent publishes a committed task transition keyed by task id.
func (p *EventPublisher) PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error {
	if event.TaskID == "" {
		return fmt.Errorf("task event requires a task id")
	}
	if event.Type == "" {
		return fmt.Errorf("task event requires a type")
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return p.publish(ctx, event.EventID, string(event.Type), event.TaskID, event.Actor, at, newTaskEventPayload(event, at))
}

var _ port.EventPublisher = (*EventPublisher)(nil)
