package domain

import "time"

// TaskEventType names a task lifecycle message.
type TaskEventType string

const (
	TaskEventInitiated    TaskEventType = "wa.task.initiated"
	TaskEventClaimed      TaskEventType = "wa.task.claimed"
	TaskEventUnclaimed    TaskEventType = "wa.task.unclaimed"
	TaskEventAssigned     TaskEventType = "wa.task.assigned"
	TaskEventUnassigned   TaskEventType = "wa.task.unassigned"
	TaskEventCompleted    TaskEventType = "wa.task.completed"
	TaskEventCancelled    TaskEventType = "wa.task.cancelled"
	TaskEventTerminated   TaskEventType = "wa.task.terminated"
	TaskEventReconfigured TaskEventType = "wa.task.reconfigured"
)

// TaskEvent is published after a task transition has been committed locally.
type TaskEvent struct {
	EventID           string
	Type              TaskEventType
	TaskID            string
	CaseID            string
	State             CFTTaskState
	Assignee          *string
	Actor             string
	Action            TaskAction
	TerminationReason *TerminationReason
	PartialSuccess    bool
	OccurredAt        time.Time
	Metadata          map[string]any
}

// CaseRolesChangedEvent is consumed when role assignments for a case change.
type CaseRolesChangedEvent struct {
	EventID    string    `json:"event_id"`
	CaseID     string    `json:"case_id"`
	ActorIDs   []string  `json:"actor_ids,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangeType string    `json:"change_type,omitempty"`
}
