package usecase

import (
	"fmt"
	"time"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

var taskTransitions = map[domain.CFTTaskState][]domain.CFTTaskState{
	domain.TaskStateUnconfigured: {domain.TaskStateUnassigned, domain.TaskStateAssigned, domain.TaskStateCancelled, domain.TaskStateTerminated},
	domain.TaskStateUnassigned:   {domain.TaskStateAssigned, domain.TaskStateCancelled, domain.TaskStateTerminated},
	domain.TaskStateAssigned:     {domain.TaskStateAssigned, domain.TaskStateUnassigned, domain.TaskStateCompleted, domain.TaskStateCancelled, domain.TaskStateTerminated},
	domain.TaskStateCompleted:    {domain.TaskStateTerminated},
	domain.TaskStateCancelled:    {domain.TaskStateTerminated},
	domain.TaskStateTerminated:   {},
}

// GuardResult is the outcome of a transition guard.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// CanTransition reports whether the state machine has an edge from one state to another.
func CanTransition(from, to domain.CFTTaskState) GuardResult {
	for _, candidate := range taskTransitions[from] {
		if candidate == to {
			return GuardResult{Allowed: true}
		}
	}
	return GuardResult{Reason: fmt.Sprintf("transition %s -> %s is not allowed", from, to)}
}

// TransitionResult reports what a transition did to the aggregate.
type TransitionResult struct {
	Previous domain.CFTTaskState
	// NoOp is set when the task already held the requested end state; nothing was changed.
	NoOp bool
}

// TaskStateMachine applies guarded transitions to an in-memory task aggregate.
type TaskStateMachine struct {
	now func() time.Time
}

// NewTaskStateMachine constructs a state machine using the wall clock.
func NewTaskStateMachine() *TaskStateMachine {
	return &TaskStateMachine{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source.
func (m *TaskStateMachine) WithClock(now func() time.Time) *TaskStateMachine {
	if now != nil {
		m.now = now
	}
	return m
}

// Configure applies configuration output while the task is UNCONFIGURED or being reconfigured.
func (m *TaskStateMachine) Configure(task *domain.TaskResource, cfg domain.TaskConfiguration, action domain.TaskAction) {
	task.Roles = cfg.Roles
	if cfg.WorkType != "" {
		task.WorkType = cfg.WorkType
	}
	if cfg.RoleCategory != "" {
		task.RoleCategory = cfg.RoleCategory
	}
	if cfg.Title != "" {
		task.Title = cfg.Title
	}
	if cfg.DueDateTime != nil {
		due := cfg.DueDateTime.UTC()
		task.DueDateTime = &due
	}
	m.touch(task, action, "")
}

// AutoAssign gives the task to the selected candidate.
func (m *TaskStateMachine) AutoAssign(task *domain.TaskResource, assigneeID string) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateAssigned && task.IsAssignedTo(assigneeID) {
		result.NoOp = true
		return result, nil
	}
	if err := m.guard(task, domain.TaskStateAssigned, "auto assign"); err != nil {
		return result, err
	}
	m.setAssignee(task, assigneeID)
	task.AutoAssigned = true
	m.touch(task, domain.TaskActionAutoAssign, "")
	return result, m.checkInvariant(task, autoOperation(result.Previous))
}

// AutoUnassign leaves the task without an assignee after configuration found no candidate.
func (m *TaskStateMachine) AutoUnassign(task *domain.TaskResource) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateUnassigned {
		result.NoOp = true
		return result, nil
	}
	if err := m.guard(task, domain.TaskStateUnassigned, "auto unassign"); err != nil {
		return result, err
	}
	task.Assignee = nil
	task.AutoAssigned = false
	task.State = domain.TaskStateUnassigned
	m.touch(task, domain.TaskActionAutoUnassign, "")
	return result, m.checkInvariant(task, autoOperation(result.Previous))
}

// Claim assigns the task to the acting user.
func (m *TaskStateMachine) Claim(task *domain.TaskResource, userID string) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	switch task.State {
	case domain.TaskStateAssigned:
		if task.IsAssignedTo(userID) {
			result.NoOp = true
			return result, nil
		}
		return result, domain.NewTaskAlreadyClaimedError(task.TaskID)
	case domain.TaskStateUnassigned:
	default:
		return result, stateIncorrect(task, domain.OperationClaim, "claim")
	}

	m.setAssignee(task, userID)
	task.AutoAssigned = false
	m.touch(task, domain.TaskActionClaim, userID)
	return result, m.checkInvariant(task, domain.OperationClaim)
}

// Unclaim releases the task.
func (m *TaskStateMachine) Unclaim(task *domain.TaskResource, userID string) (TransitionResult, error) {
	return m.release(task, userID, domain.TaskActionUnclaim, domain.OperationUnclaim, "unclaim")
}

// Assign moves the task to assigneeID on behalf of actorID.
func (m *TaskStateMachine) Assign(task *domain.TaskResource, actorID, assigneeID string, action domain.TaskAction) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateAssigned && task.IsAssignedTo(assigneeID) {
		result.NoOp = true
		return result, nil
	}
	if !task.State.IsActive() {
		return result, stateIncorrect(task, domain.OperationAssign, "assign")
	}

	m.setAssignee(task, assigneeID)
	task.AutoAssigned = false
	m.touch(task, action, actorID)
	return result, m.checkInvariant(task, domain.OperationAssign)
}

// Unassign removes the assignee on behalf of actorID.
func (m *TaskStateMachine) Unassign(task *domain.TaskResource, actorID string, action domain.TaskAction) (TransitionResult, error) {
	return m.release(task, actorID, action, domain.OperationAssign, "unassign")
}

// Complete finishes an assigned task.
func (m *TaskStateMachine) Complete(task *domain.TaskResource, userID string) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateCompleted {
		result.NoOp = true
		return result, nil
	}
	if task.Assignee == nil || *task.Assignee == "" {
		return result, domain.NewTaskNotAssignedError(task.TaskID)
	}
	if err := m.guard(task, domain.TaskStateCompleted, "complete"); err != nil {
		return result, err
	}

	task.State = domain.TaskStateCompleted
	task.Assignee = nil
	m.touch(task, domain.TaskActionComplete, userID)
	return result, m.checkInvariant(task, domain.OperationComplete)
}

// Cancel abandons the task.
func (m *TaskStateMachine) Cancel(task *domain.TaskResource, userID string) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateCancelled {
		result.NoOp = true
		return result, nil
	}
	if err := m.guard(task, domain.TaskStateCancelled, "cancel"); err != nil {
		return result, err
	}

	task.State = domain.TaskStateCancelled
	task.Assignee = nil
	m.touch(task, domain.TaskActionCancel, userID)
	return result, m.checkInvariant(task, domain.OperationCancel)
}

// Terminate closes the task for good, from any state.
func (m *TaskStateMachine) Terminate(task *domain.TaskResource, reason domain.TerminationReason) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	if task.State == domain.TaskStateTerminated {
		result.NoOp = true
		return result, nil
	}
	if err := m.guard(task, domain.TaskStateTerminated, "terminate"); err != nil {
		return result, err
	}

	task.State = domain.TaskStateTerminated
	task.Assignee = nil
	r := reason
	task.TerminationReason = &r
	m.touch(task, domain.TaskActionTerminate, "")
	return result, m.checkInvariant(task, domain.OperationTerminate)
}

func (m *TaskStateMachine) release(task *domain.TaskResource, actorID string, action domain.TaskAction, op domain.Operation, verb string) (TransitionResult, error) {
	result := TransitionResult{Previous: task.State}
	switch task.State {
	case domain.TaskStateUnassigned:
		result.NoOp = true
		return result, nil
	case domain.TaskStateAssigned:
	default:
		return result, stateIncorrect(task, op, verb)
	}

	task.Assignee = nil
	task.AutoAssigned = false
	task.State = domain.TaskStateUnassigned
	m.touch(task, action, actorID)
	return result, m.checkInvariant(task, op)
}

func (m *TaskStateMachine) guard(task *domain.TaskResource, to domain.CFTTaskState, verb string) error {
	if res := CanTransition(task.State, to); !res.Allowed {
		return stateIncorrect(task, operationForVerb(verb), verb)
	}
	return nil
}

func (m *TaskStateMachine) setAssignee(task *domain.TaskResource, assigneeID string) {
	assignee := assigneeID
	task.Assignee = &assignee
	task.State = domain.TaskStateAssigned
}

func (m *TaskStateMachine) touch(task *domain.TaskResource, action domain.TaskAction, userID string) {
	task.LastUpdatedAction = action
	task.LastUpdatedUser = userID
	task.LastUpdatedTimestamp = m.now()
}

func (m *TaskStateMachine) checkInvariant(task *domain.TaskResource, op domain.Operation) error {
	if err := task.CheckAssigneeInvariant(); err != nil {
		return domain.NewGenericServerError(task.TaskID, op, err)
	}
	return nil
}

// autoOperation attributes auto assignment to initiation for new tasks and to reconfiguration
// otherwise.
func autoOperation(previous domain.CFTTaskState) domain.Operation {
	if previous == domain.TaskStateUnconfigured {
		return domain.OperationInitiate
	}
	return domain.OperationReconfigure
}

func stateIncorrect(task *domain.TaskResource, op domain.Operation, verb string) error {
	return domain.NewTaskStateIncorrectError(task.TaskID, op,
		fmt.Sprintf("Could not %s task with id: %s as task state is %s", verb, task.TaskID, task.State))
}

func operationForVerb(verb string) domain.Operation {
	switch verb {
	case "complete":
		return domain.OperationComplete
	case "cancel":
		return domain.OperationCancel
	case "terminate":
		return domain.OperationTerminate
	}
	return domain.OperationAssign
}
