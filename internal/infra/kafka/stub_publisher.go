package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishTaskEvent logs the task event.
func (p *StubPublisher) PublishTaskEvent(_ context.Context, event domain.TaskEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub task event published",
		zap.String("event_type", string(event.Type)),
		zap.String("task_id", event.TaskID),
		zap.String("user_id", event.Actor),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", newTaskEventPayload(event, at)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
