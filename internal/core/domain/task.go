package domain

import (
	"fmt"
	"strings"
	"time"
)

// CFTTaskState is the lifecycle state of the local task projection.
type CFTTaskState string

const (
	TaskStateUnconfigured CFTTaskState = "UNCONFIGURED"
	TaskStateUnassigned   CFTTaskState = "UNASSIGNED"
	TaskStateAssigned     CFTTaskState = "ASSIGNED"
	TaskStateCompleted    CFTTaskState = "COMPLETED"
	TaskStateCancelled    CFTTaskState = "CANCELLED"
	TaskStateTerminated   CFTTaskState = "TERMINATED"
)

// IsTerminal reports whether the state is COMPLETED, CANCELLED or TERMINATED.
func (s CFTTaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCancelled, TaskStateTerminated:
		return true
	}
	return false
}

// IsActive reports whether the task is still workable.
func (s CFTTaskState) IsActive() bool {
	return s == TaskStateAssigned || s == TaskStateUnassigned
}

// TerminationReason explains why a task was terminated.
type TerminationReason string

const (
	TerminationReasonCompleted TerminationReason = "COMPLETED"
	TerminationReasonCancelled TerminationReason = "CANCELLED"
	TerminationReasonDeleted   TerminationReason = "DELETED"
)

// ParseTerminationReason accepts any case.
func ParseTerminationReason(value string) (TerminationReason, error) {
	switch reason := TerminationReason(strings.ToUpper(strings.TrimSpace(value))); reason {
	case TerminationReasonCompleted, TerminationReasonCancelled, TerminationReasonDeleted:
		return reason, nil
	}
	return "", fmt.Errorf("unknown termination reason %q", value)
}

// TaskAction is the audit tag recorded against the last mutation.
type TaskAction string

const (
	TaskActionConfigure      TaskAction = "Configure"
	TaskActionAutoAssign     TaskAction = "AutoAssign"
	TaskActionAutoUnassign   TaskAction = "AutoUnassign"
	TaskActionClaim          TaskAction = "Claim"
	TaskActionUnclaim        TaskAction = "Unclaim"
	TaskActionAssign         TaskAction = "Assign"
	TaskActionUnassign       TaskAction = "Unassign"
	TaskActionUnassignAssign TaskAction = "UnassignAssign"
	TaskActionUnassignClaim  TaskAction = "UnassignClaim"
	TaskActionUnclaimAssign  TaskAction = "UnclaimAssign"
	TaskActionComplete       TaskAction = "Complete"
	TaskActionCancel         TaskAction = "Cancel"
	TaskActionTerminate      TaskAction = "Terminate"
	TaskActionReconfigure    TaskAction = "Reconfigure"
	TaskActionNotes          TaskAction = "AddNotes"
)

// TaskRoleResource is the per-role permission grant configured on a task.
type TaskRoleResource struct {
	RoleName           string
	Permissions        PermissionSet
	Authorisations     []string
	AssignmentPriority *int
	AutoAssignable     bool
	RoleCategory       RoleCategory
}

// Unrestricted reports whether the role places no authorisation requirement.
func (r TaskRoleResource) Unrestricted() bool {
	for _, token := range r.Authorisations {
		if strings.TrimSpace(token) != "" {
			return false
		}
	}
	return true
}

// Note is an audit or warning entry attached to a task.
type Note struct {
	Code     string    `json:"code"`
	NoteType string    `json:"note_type"`
	UserID   string    `json:"user_id,omitempty"`
	Content  string    `json:"content,omitempty"`
	Created  time.Time `json:"created"`
}

// TaskResource is the locally persisted task aggregate.
type TaskResource struct {
	TaskID                 string
	TaskName               string
	TaskType               string
	Title                  string
	CaseID                 string
	CaseTypeID             string
	CaseName               string
	Jurisdiction           string
	Region                 string
	Location               string
	WorkType               string
	RoleCategory           RoleCategory
	SecurityClassification Classification
	State                  CFTTaskState
	Assignee               *string
	AutoAssigned           bool
	TerminationReason      *TerminationReason
	LastUpdatedAction      TaskAction
	LastUpdatedUser        string
	LastUpdatedTimestamp   time.Time
	DueDateTime            *time.Time
	Created                time.Time
	Indexed                bool
	Attributes             map[string]string
	Roles                  []TaskRoleResource
	Notes                  []Note
}

// AssigneeID returns the assignee or an empty string.
func (t TaskResource) AssigneeID() string {
	if t.Assignee == nil {
		return ""
	}
	return *t.Assignee
}

// IsAssignedTo reports whether userID is the current assignee.
func (t TaskResource) IsAssignedTo(userID string) bool {
	return t.Assignee != nil && userID != "" && *t.Assignee == userID
}

// RoleByName finds the task role configured for roleName.
func (t TaskResource) RoleByName(roleName string) (TaskRoleResource, bool) {
	for _, role := range t.Roles {
		if role.RoleName == roleName {
			return role, true
		}
	}
	return TaskRoleResource{}, false
}

// CheckAssigneeInvariant verifies that an assignee is present exactly when the task is ASSIGNED.
func (t TaskResource) CheckAssigneeInvariant() error {
	hasAssignee := t.Assignee != nil && *t.Assignee != ""
	if hasAssignee != (t.State == TaskStateAssigned) {
		return fmt.Errorf("task %s: assignee present=%t but state=%s", t.TaskID, hasAssignee, t.State)
	}
	return nil
}

// Clone returns a deep copy safe to mutate.
func (t TaskResource) Clone() TaskResource {
	out := t
	if t.Assignee != nil {
		v := *t.Assignee
		out.Assignee = &v
	}
	if t.TerminationReason != nil {
		v := *t.TerminationReason
		out.TerminationReason = &v
	}
	if t.DueDateTime != nil {
		v := *t.DueDateTime
		out.DueDateTime = &v
	}
	if t.Attributes != nil {
		out.Attributes = make(map[string]string, len(t.Attributes))
		for k, v := range t.Attributes {
			out.Attributes[k] = v
		}
	}
	if t.Roles != nil {
		out.Roles = make([]TaskRoleResource, len(t.Roles))
		for i, role := range t.Roles {
			role.Permissions = role.Permissions.Clone()
			role.Authorisations = append([]string(nil), role.Authorisations...)
			if role.AssignmentPriority != nil {
				p := *role.AssignmentPriority
				role.AssignmentPriority = &p
			}
			out.Roles[i] = role
		}
	}
	out.Notes = append([]Note(nil), t.Notes...)
	return out
}

// TaskConfiguration is the output of the configuration decision tables for one task.
type TaskConfiguration struct {
	Roles        []TaskRoleResource
	WorkType     string
	RoleCategory RoleCategory
	Title        string
	DueDateTime  *time.Time
}
