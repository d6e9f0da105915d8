package port

import (
	"context"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// WorkflowEngine is the external process engine holding the running task. The already* flags tell
// the engine the local state held the target value before the transition so it can skip the
// redundant state variable update.
type WorkflowEngine interface {
	AssignTask(ctx context.Context, taskID, userID string, alreadyAssigned bool) error
	UnclaimTask(ctx context.Context, taskID string, alreadyUnassigned bool) error
	CompleteTask(ctx context.Context, taskID string, alreadyCompleted bool) error
	AssignAndCompleteTask(ctx context.Context, taskID, userID string, alreadyAssigned bool) error
	CancelTask(ctx context.Context, taskID string) error
	DeleteCftTaskState(ctx context.Context, taskID string) error
	UpdateCftTaskState(ctx context.Context, taskID string, state domain.CFTTaskState) error
	IsCftTaskStateExistInCamunda(ctx context.Context, taskID string) (bool, error)
}

// TaskConfigurator evaluates the configuration decision tables for a task.
type TaskConfigurator interface {
	Configure(ctx context.Context, task domain.TaskResource) (*domain.TaskConfiguration, error)
}
