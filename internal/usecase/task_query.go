package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/repository"
)

// TaskQueryService answers role-filtered task lookups.
type TaskQueryService struct {
	tasks     port.TaskRepository
	evaluator *RoleAssignmentEvaluator
}

// NewTaskQueryService constructs the query service.
func NewTaskQueryService(tasks port.TaskRepository, evaluator *RoleAssignmentEvaluator) *TaskQueryService {
	return &TaskQueryService{tasks: tasks, evaluator: evaluator}
}

// FindAuthorised returns the task only when the assignments satisfy req against its task roles.
// A nil task with a nil error means absent or not permitted.
func (s *TaskQueryService) FindAuthorised(ctx context.Context, taskID string, assignments []domain.RoleAssignment, req domain.Requirement) (*domain.TaskResource, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	if !s.evaluator.HasAccess(*task, assignments, req) {
		return nil, nil
	}
	return task, nil
}

// GetTask runs the unfiltered existence check and then the filtered lookup, so an absent result
// is reported as ErrTaskNotFound or ErrRoleAssignmentVerification.
func (s *TaskQueryService) GetTask(ctx context.Context, taskID string, assignments []domain.RoleAssignment, req domain.Requirement, side domain.VerificationSide) (*domain.TaskResource, error) {
	if _, err := s.tasks.FindCaseID(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewTaskNotFoundError(taskID)
		}
		return nil, fmt.Errorf("find case id: %w", err)
	}

	task, err := s.FindAuthorised(ctx, taskID, assignments, req)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.NewRoleAssignmentVerificationError(taskID, side)
	}
	return task, nil
}
