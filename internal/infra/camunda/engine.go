package camunda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

const (
	cftTaskStateVariable = "cftTaskState"
	cancellationError    = "wa-esc-cancellation"
)

type variableValue struct {
	Value any    `json:"value"`
	Type  string `json:"type,omitempty"`
}

type modifications struct {
	Modifications map[string]variableValue `json:"modifications"`
}

type userIDBody struct {
	UserID string `json:"userId"`
}

// WorkflowEngine implements port.WorkflowEngine over the Camunda REST API.
type WorkflowEngine struct {
	client *Client
}

// NewWorkflowEngine wraps client.
func NewWorkflowEngine(client *Client) *WorkflowEngine {
	return &WorkflowEngine{client: client}
}

func engineState(state domain.CFTTaskState) string {
	return strings.ToLower(string(state))
}

func (e *WorkflowEngine) setState(ctx context.Context, taskID string, state domain.CFTTaskState) error {
	body := modifications{Modifications: map[string]variableValue{
		cftTaskStateVariable: {Value: engineState(state), Type: "String"},
	}}
	if err := e.client.do(ctx, http.MethodPost, taskPath(taskID, "/localVariables"), body, nil); err != nil {
		return fmt.Errorf("set %s=%s on task %s: %w", cftTaskStateVariable, engineState(state), taskID, err)
	}
	return nil
}

// AssignTask sets the engine assignee. The state variable is updated first unless it already
// reads assigned.
func (e *WorkflowEngine) AssignTask(ctx context.Context, taskID, userID string, alreadyAssigned bool) error {
	if !alreadyAssigned {
		if err := e.setState(ctx, taskID, domain.TaskStateAssigned); err != nil {
			return err
		}
	}
	if err := e.client.do(ctx, http.MethodPost, taskPath(taskID, "/assignee"), userIDBody{UserID: userID}, nil); err != nil {
		return fmt.Errorf("assign task %s: %w", taskID, err)
	}
	return nil
}

// UnclaimTask clears the engine assignee.
func (e *WorkflowEngine) UnclaimTask(ctx context.Context, taskID string, alreadyUnassigned bool) error {
	if !alreadyUnassigned {
		if err := e.setState(ctx, taskID, domain.TaskStateUnassigned); err != nil {
			return err
		}
	}
	if err := e.client.do(ctx, http.MethodPost, taskPath(taskID, "/unclaim"), nil, nil); err != nil {
		return fmt.Errorf("unclaim task %s: %w", taskID, err)
	}
	return nil
}

// CompleteTask completes the engine task. A task the engine no longer knows is treated as
// already completed.
func (e *WorkflowEngine) CompleteTask(ctx context.Context, taskID string, alreadyCompleted bool) error {
	if !alreadyCompleted {
		if err := e.setState(ctx, taskID, domain.TaskStateCompleted); err != nil {
			return err
		}
	}
	return e.complete(ctx, taskID)
}

func (e *WorkflowEngine) complete(ctx context.Context, taskID string) error {
	err := e.client.do(ctx, http.MethodPost, taskPath(taskID, "/complete"), map[string]any{}, nil)
	if errors.Is(err, ErrNotFound) {
		e.client.logger.Info("task already gone from engine, treating as completed", zap.String("task_id", taskID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	return nil
}

// AssignAndCompleteTask assigns userID and completes the task in one engine interaction.
func (e *WorkflowEngine) AssignAndCompleteTask(ctx context.Context, taskID, userID string, alreadyAssigned bool) error {
	if err := e.AssignTask(ctx, taskID, userID, alreadyAssigned); err != nil {
		return err
	}
	if err := e.setState(ctx, taskID, domain.TaskStateCompleted); err != nil {
		return err
	}
	return e.complete(ctx, taskID)
}

// CancelTask raises the cancellation BPMN error so the process can route around the task.
func (e *WorkflowEngine) CancelTask(ctx context.Context, taskID string) error {
	body := map[string]string{"errorCode": cancellationError}
	err := e.client.do(ctx, http.MethodPost, taskPath(taskID, "/bpmnError"), body, nil)
	if errors.Is(err, ErrNotFound) {
		e.client.logger.Info("task already gone from engine, treating as cancelled", zap.String("task_id", taskID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	return nil
}

// DeleteCftTaskState removes the state variable. Missing variables are ignored.
func (e *WorkflowEngine) DeleteCftTaskState(ctx context.Context, taskID string) error {
	err := e.client.do(ctx, http.MethodDelete, taskPath(taskID, "/localVariables/"+cftTaskStateVariable), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s on task %s: %w", cftTaskStateVariable, taskID, err)
	}
	return nil
}

// UpdateCftTaskState writes state into the engine's state variable.
func (e *WorkflowEngine) UpdateCftTaskState(ctx context.Context, taskID string, state domain.CFTTaskState) error {
	return e.setState(ctx, taskID, state)
}

// IsCftTaskStateExistInCamunda reports whether the state variable is present.
func (e *WorkflowEngine) IsCftTaskStateExistInCamunda(ctx context.Context, taskID string) (bool, error) {
	var variable variableValue
	err := e.client.do(ctx, http.MethodGet, taskPath(taskID, "/localVariables/"+cftTaskStateVariable), nil, &variable)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s on task %s: %w", cftTaskStateVariable, taskID, err)
	}
	return variable.Value != nil, nil
}

var _ port.WorkflowEngine = (*WorkflowEngine)(nil)
