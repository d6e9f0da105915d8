package usecase

import "github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"

// Permission requirements per operation.
var (
	ReadRequirement = domain.MustRequirement(domain.Literal(domain.PermissionRead))

	OwnAndExecuteRequirement = domain.MustRequirement(domain.AllOf(domain.PermissionOwn, domain.PermissionExecute))

	ClaimRequirement = domain.MustRequirement(domain.Any(
		domain.AllOf(domain.PermissionOwn, domain.PermissionExecute),
		domain.AllOf(domain.PermissionClaim, domain.PermissionOwn),
		domain.AllOf(domain.PermissionClaim, domain.PermissionExecute),
		domain.AllOf(domain.PermissionAssign, domain.PermissionExecute),
		domain.AllOf(domain.PermissionAssign, domain.PermissionOwn),
	))

	UnclaimRequirement = domain.MustRequirement(domain.AnyOf(domain.PermissionUnclaim, domain.PermissionUnassign))

	CompleteRequirement = domain.MustRequirement(domain.Any(
		domain.AllOf(domain.PermissionOwn, domain.PermissionExecute),
		domain.Literal(domain.PermissionComplete),
		domain.Literal(domain.PermissionCompleteOwn),
	))

	// CompleteOthersRequirement applies when the actor is not the assignee; COMPLETE_OWN only
	// covers the actor's own tasks.
	CompleteOthersRequirement = domain.MustRequirement(domain.Any(
		domain.AllOf(domain.PermissionOwn, domain.PermissionExecute),
		domain.Literal(domain.PermissionComplete),
	))

	ManageRequirement = domain.MustRequirement(domain.Literal(domain.PermissionManage))

	CancelRequirement = domain.MustRequirement(domain.AnyOf(domain.PermissionCancel, domain.PermissionCancelOwn))

	CancelOthersRequirement = domain.MustRequirement(domain.Literal(domain.PermissionCancel))

	assignUnassignedRequirement = domain.MustRequirement(domain.Literal(domain.PermissionAssign))
	assignSelfRequirement       = domain.MustRequirement(domain.AnyOf(domain.PermissionClaim, domain.PermissionAssign))
	reassignRequirement         = domain.MustRequirement(domain.Literal(domain.PermissionUnassignAssign))
	takeOverRequirement         = domain.MustRequirement(domain.AnyOf(domain.PermissionUnassignClaim, domain.PermissionUnassignAssign))
	handOverRequirement         = domain.MustRequirement(domain.AnyOf(domain.PermissionUnclaimAssign, domain.PermissionUnassignAssign))
	unassignOthersRequirement   = domain.MustRequirement(domain.Literal(domain.PermissionUnassign))
	unassignOwnRequirement      = domain.MustRequirement(domain.AnyOf(domain.PermissionUnclaim, domain.PermissionUnassign))
)

// AssignmentPlan describes how an assign request moves a task between assignees.
type AssignmentPlan struct {
	Requirement domain.Requirement
	Action      domain.TaskAction
	Event       domain.TaskEventType
	NoOp        bool
}

// PlanAssignment picks the granular permission the assigner needs to move the task from its
// current assignee to target. An empty target means unassign.
func PlanAssignment(task domain.TaskResource, assignerID, target string) AssignmentPlan {
	current := task.AssigneeID()

	switch {
	case target == "" && current == "":
		return AssignmentPlan{NoOp: true}
	case target == "" && current == assignerID:
		return AssignmentPlan{Requirement: unassignOwnRequirement, Action: domain.TaskActionUnclaim, Event: domain.TaskEventUnassigned}
	case target == "":
		return AssignmentPlan{Requirement: unassignOthersRequirement, Action: domain.TaskActionUnassign, Event: domain.TaskEventUnassigned}
	case current == target:
		return AssignmentPlan{NoOp: true}
	case current == "" && target == assignerID:
		return AssignmentPlan{Requirement: assignSelfRequirement, Action: domain.TaskActionAssign, Event: domain.TaskEventAssigned}
	case current == "":
		return AssignmentPlan{Requirement: assignUnassignedRequirement, Action: domain.TaskActionAssign, Event: domain.TaskEventAssigned}
	case current == assignerID:
		return AssignmentPlan{Requirement: handOverRequirement, Action: domain.TaskActionUnclaimAssign, Event: domain.TaskEventAssigned}
	case target == assignerID:
		return AssignmentPlan{Requirement: takeOverRequirement, Action: domain.TaskActionUnassignClaim, Event: domain.TaskEventAssigned}
	default:
		return AssignmentPlan{Requirement: reassignRequirement, Action: domain.TaskActionUnassignAssign, Event: domain.TaskEventAssigned}
	}
}
