package port

import (
	"context"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// EventPublisher publishes task lifecycle events to the message bus.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error
}
