package port

import (
	"context"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// RoleAssignmentSource fetches role assignments from the role-assignment service. Both calls
// return an empty slice, never nil, when nothing matches.
type RoleAssignmentSource interface {
	QueryRolesForAutoAssignmentByCaseID(ctx context.Context, task domain.TaskResource) ([]domain.RoleAssignment, error)
	GetRolesByUserID(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
}
