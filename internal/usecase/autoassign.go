package usecase

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

// AutoAssignmentSelector picks the single best candidate for a task.
type AutoAssignmentSelector struct{}

// NewAutoAssignmentSelector constructs a selector.
func NewAutoAssignmentSelector() *AutoAssignmentSelector {
	return &AutoAssignmentSelector{}
}

// SelectAssignee returns the actor whose matching auto-assignable task role has the lowest
// priority number. Roles with autoAssignable=false never take part, whatever their priority.
// Equal priorities go to the first candidate in input order.
func (s *AutoAssignmentSelector) SelectAssignee(candidates []domain.RoleAssignment, taskRoles []domain.TaskRoleResource) (string, bool) {
	autoAssignable := make(map[string]domain.TaskRoleResource, len(taskRoles))
	for _, role := range taskRoles {
		if !role.AutoAssignable {
			continue
		}
		if _, exists := autoAssignable[role.RoleName]; !exists {
			autoAssignable[role.RoleName] = role
		}
	}
	if len(autoAssignable) == 0 {
		return "", false
	}

	bestActor := ""
	bestPriority := math.MaxInt
	found := false
	for _, candidate := range candidates {
		if candidate.ActorID == "" {
			continue
		}
		role, ok := autoAssignable[candidate.RoleName]
		if !ok {
			continue
		}
		if !role.Unrestricted() && !domain.AuthorisationsIntersect(candidate.Authorisations, role.Authorisations) {
			continue
		}

		priority := math.MaxInt
		if role.AssignmentPriority != nil {
			priority = *role.AssignmentPriority
		}
		if !found || priority < bestPriority {
			bestActor = candidate.ActorID
			bestPriority = priority
			found = true
		}
	}
	return bestActor, found
}

// AutoAssignmentService runs selection against live role assignments and applies the result.
type AutoAssignmentService struct {
	roles     port.RoleAssignmentSource
	evaluator *RoleAssignmentEvaluator
	selector  *AutoAssignmentSelector
	machine   *TaskStateMachine
	logger    *zap.Logger
}

// NewAutoAssignmentService wires the auto-assignment collaborators.
func NewAutoAssignmentService(roles port.RoleAssignmentSource, evaluator *RoleAssignmentEvaluator, machine *TaskStateMachine, logger *zap.Logger) *AutoAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoAssignmentService{
		roles:     roles,
		evaluator: evaluator,
		selector:  NewAutoAssignmentSelector(),
		machine:   machine,
		logger:    logger,
	}
}

// AutoAssign selects from the case's role assignments and leaves the task ASSIGNED or UNASSIGNED.
func (s *AutoAssignmentService) AutoAssign(ctx context.Context, task *domain.TaskResource) (TransitionResult, error) {
	candidates, err := s.roles.QueryRolesForAutoAssignmentByCaseID(ctx, *task)
	if err != nil {
		return TransitionResult{Previous: task.State}, fmt.Errorf("query auto assignment roles: %w", err)
	}

	if actorID, ok := s.selector.SelectAssignee(candidates, task.Roles); ok {
		s.logger.Debug("task auto assigned", zap.String("task_id", task.TaskID), zap.String("assignee", actorID))
		return s.machine.AutoAssign(task, actorID)
	}
	return s.machine.AutoUnassign(task)
}

// ReAutoAssign keeps the current assignee while they still hold OWN and EXECUTE on the task and
// reselects otherwise.
func (s *AutoAssignmentService) ReAutoAssign(ctx context.Context, task *domain.TaskResource) (TransitionResult, error) {
	if task.State == domain.TaskStateAssigned && task.Assignee != nil {
		assigneeRoles, err := s.roles.GetRolesByUserID(ctx, *task.Assignee)
		if err != nil {
			return TransitionResult{Previous: task.State}, fmt.Errorf("fetch assignee roles: %w", err)
		}
		if s.evaluator.HasAccess(*task, assigneeRoles, OwnAndExecuteRequirement) {
			return TransitionResult{Previous: task.State, NoOp: true}, nil
		}
		s.logger.Info("assignee lost access, re-running auto assignment",
			zap.String("task_id", task.TaskID),
			zap.String("assignee", *task.Assignee),
		)
	}
	return s.AutoAssign(ctx, task)
}
