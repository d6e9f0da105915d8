package usecase

import (
	"strings"
	"time"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// RoleHierarchy maps a role name to the role names it directly dominates. Dominance is transitive.
type RoleHierarchy map[string][]string

// DefaultRoleHierarchy is used when no hierarchy is configured.
func DefaultRoleHierarchy() RoleHierarchy {
	return RoleHierarchy{
		"senior-tribunal-caseworker": {"tribunal-caseworker"},
	}
}

// Dominates reports whether senior sits above junior in the hierarchy.
func (h RoleHierarchy) Dominates(senior, junior string) bool {
	if senior == "" || junior == "" || senior == junior {
		return false
	}
	visited := map[string]bool{senior: true}
	queue := append([]string(nil), h[senior]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == junior {
			return true
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		queue = append(queue, h[next]...)
	}
	return false
}

// RoleAssignmentEvaluator decides whether role assignments grant a permission requirement on a
// task. It never mutates its inputs.
type RoleAssignmentEvaluator struct {
	hierarchy RoleHierarchy
	now       func() time.Time
}

// NewRoleAssignmentEvaluator constructs an evaluator. A nil hierarchy falls back to the default.
func NewRoleAssignmentEvaluator(hierarchy RoleHierarchy) *RoleAssignmentEvaluator {
	if hierarchy == nil {
		hierarchy = DefaultRoleHierarchy()
	}
	return &RoleAssignmentEvaluator{
		hierarchy: hierarchy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the evaluation instant source.
func (e *RoleAssignmentEvaluator) WithClock(now func() time.Time) *RoleAssignmentEvaluator {
	if now != nil {
		e.now = now
	}
	return e
}

// HasAccess reports whether the assignments jointly satisfy req on the task.
func (e *RoleAssignmentEvaluator) HasAccess(task domain.TaskResource, assignments []domain.RoleAssignment, req domain.Requirement) bool {
	return req.Evaluate(e.GrantedPermissions(task, assignments))
}

// HasAccessWithAssigneeCheckAndHierarchy additionally requires, when someone other than the
// acting user holds the task, that one of the actor's roles dominates one of the assignee's.
func (e *RoleAssignmentEvaluator) HasAccessWithAssigneeCheckAndHierarchy(
	task domain.TaskResource,
	actingUserID string,
	actorAssignments []domain.RoleAssignment,
	assigneeAssignments []domain.RoleAssignment,
	req domain.Requirement,
) bool {
	if !e.HasAccess(task, actorAssignments, req) {
		return false
	}
	if task.Assignee == nil || task.IsAssignedTo(actingUserID) {
		return true
	}

	now := e.now()
	for _, actor := range actorAssignments {
		if !e.eligible(task, actor, now) {
			continue
		}
		for _, assignee := range assigneeAssignments {
			if !assignee.ActiveAt(now) {
				continue
			}
			if e.hierarchy.Dominates(actor.RoleName, assignee.RoleName) {
				return true
			}
		}
	}
	return false
}

// GrantedPermissions returns the union of permissions the assignments earn on the task.
func (e *RoleAssignmentEvaluator) GrantedPermissions(task domain.TaskResource, assignments []domain.RoleAssignment) domain.PermissionSet {
	now := e.now()
	granted := domain.NewPermissionSet()
	excludable := domain.NewPermissionSet()
	excluded := false

	for _, assignment := range assignments {
		if !e.eligible(task, assignment, now) {
			continue
		}
		if assignment.GrantType == domain.GrantTypeExcluded {
			excluded = true
			continue
		}

		role, ok := task.RoleByName(assignment.RoleName)
		if !ok {
			continue
		}
		if !role.Unrestricted() && !domain.AuthorisationsIntersect(assignment.Authorisations, role.Authorisations) {
			continue
		}

		switch assignment.GrantType {
		case domain.GrantTypeStandard, domain.GrantTypeChallenged:
			excludable.Union(role.Permissions)
		default:
			granted.Union(role.Permissions)
		}
	}

	if !excluded {
		granted.Union(excludable)
	}
	return granted
}

// eligible applies the validity window, classification and attribute filters.
func (e *RoleAssignmentEvaluator) eligible(task domain.TaskResource, assignment domain.RoleAssignment, now time.Time) bool {
	if !assignment.ActiveAt(now) {
		return false
	}
	if !assignment.Classification.Covers(task.SecurityClassification) {
		return false
	}

	if assignment.RoleType == domain.RoleTypeCase {
		if _, ok := assignment.Attribute(domain.AttributeCaseID); !ok {
			return false
		}
	}

	checks := map[string]string{
		domain.AttributeJurisdiction: task.Jurisdiction,
		domain.AttributeCaseType:     task.CaseTypeID,
		domain.AttributeCaseID:       task.CaseID,
		domain.AttributeRegion:       task.Region,
		domain.AttributeBaseLocation: task.Location,
	}
	for key, expected := range checks {
		value, ok := assignment.Attribute(key)
		if !ok {
			continue
		}
		if !strings.EqualFold(value, strings.TrimSpace(expected)) {
			return false
		}
	}
	return true
}
