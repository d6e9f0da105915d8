package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

func newMachine() *TaskStateMachine {
	return NewTaskStateMachine().WithClock(func() time.Time { return fixedNow })
}

func taskInState(state domain.CFTTaskState, assignee string) domain.TaskResource {
	task := domain.TaskResource{TaskID: "task-1", State: state}
	if assignee != "" {
		task.Assignee = strPtr(assignee)
	}
	return task
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.CFTTaskState
		want     bool
	}{
		{domain.TaskStateUnconfigured, domain.TaskStateAssigned, true},
		{domain.TaskStateUnassigned, domain.TaskStateAssigned, true},
		{domain.TaskStateAssigned, domain.TaskStateCompleted, true},
		{domain.TaskStateUnassigned, domain.TaskStateCompleted, false},
		{domain.TaskStateCompleted, domain.TaskStateAssigned, false},
		{domain.TaskStateCancelled, domain.TaskStateTerminated, true},
		{domain.TaskStateTerminated, domain.TaskStateUnassigned, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got.Allowed != tc.want {
			t.Fatalf("%s -> %s: allowed=%t, want %t (%s)", tc.from, tc.to, got.Allowed, tc.want, got.Reason)
		}
	}
}

func TestClaim(t *testing.T) {
	machine := newMachine()

	task := taskInState(domain.TaskStateUnassigned, "")
	res, err := machine.Claim(&task, "user-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.NoOp || res.Previous != domain.TaskStateUnassigned {
		t.Fatalf("unexpected result: %+v", res)
	}
	if task.State != domain.TaskStateAssigned || task.AssigneeID() != "user-1" {
		t.Fatalf("unexpected task: state=%s assignee=%s", task.State, task.AssigneeID())
	}
	if task.LastUpdatedAction != domain.TaskActionClaim || task.LastUpdatedUser != "user-1" || !task.LastUpdatedTimestamp.Equal(fixedNow) {
		t.Fatalf("audit fields not stamped: %+v", task)
	}

	again, err := machine.Claim(&task, "user-1")
	if err != nil || !again.NoOp {
		t.Fatalf("claiming own task should be a no-op, got %+v, %v", again, err)
	}

	_, err = machine.Claim(&task, "user-2")
	if !errors.Is(err, domain.ErrTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Task 'task-1' is already claimed by someone else." {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestCompleteRequiresAssignee(t *testing.T) {
	task := taskInState(domain.TaskStateUnassigned, "")

	_, err := newMachine().Complete(&task, "user-1")
	if !errors.Is(err, domain.ErrTaskStateIncorrect) {
		t.Fatalf("expected state incorrect, got %v", err)
	}
	if err.Error() != "Could not complete task with id: task-1 as task was not previously assigned" {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	machine := newMachine()

	completed := taskInState(domain.TaskStateCompleted, "")
	if res, err := machine.Complete(&completed, "user-1"); err != nil || !res.NoOp {
		t.Fatalf("completing a COMPLETED task should be a no-op, got %+v, %v", res, err)
	}

	cancelled := taskInState(domain.TaskStateCancelled, "")
	if res, err := machine.Cancel(&cancelled, "user-1"); err != nil || !res.NoOp {
		t.Fatalf("cancelling a CANCELLED task should be a no-op, got %+v, %v", res, err)
	}

	terminated := taskInState(domain.TaskStateTerminated, "")
	if res, err := machine.Terminate(&terminated, domain.TerminationReasonDeleted); err != nil || !res.NoOp {
		t.Fatalf("terminating a TERMINATED task should be a no-op, got %+v, %v", res, err)
	}
}

func TestCancelRejectsCompletedTask(t *testing.T) {
	task := taskInState(domain.TaskStateCompleted, "")
	if _, err := newMachine().Cancel(&task, "user-1"); !errors.Is(err, domain.ErrTaskStateIncorrect) {
		t.Fatalf("expected state incorrect, got %v", err)
	}
}

func TestTerminateRecordsReason(t *testing.T) {
	task := taskInState(domain.TaskStateAssigned, "user-1")
	if _, err := newMachine().Terminate(&task, domain.TerminationReasonCompleted); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if task.TerminationReason == nil || *task.TerminationReason != domain.TerminationReasonCompleted {
		t.Fatalf("unexpected reason: %v", task.TerminationReason)
	}
}

func TestUnassignedStateIsNoOpForRelease(t *testing.T) {
	task := taskInState(domain.TaskStateUnassigned, "")
	res, err := newMachine().Unclaim(&task, "user-1")
	if err != nil || !res.NoOp {
		t.Fatalf("expected no-op, got %+v, %v", res, err)
	}

	completed := taskInState(domain.TaskStateCompleted, "")
	if _, err := newMachine().Unclaim(&completed, "user-1"); !errors.Is(err, domain.ErrTaskStateIncorrect) {
		t.Fatalf("expected state incorrect, got %v", err)
	}
}

// Every successful transition leaves an assignee exactly when the task is ASSIGNED.
func TestAssigneeInvariantAfterTransitions(t *testing.T) {
	machine := newMachine()
	states := []domain.CFTTaskState{
		domain.TaskStateUnconfigured,
		domain.TaskStateUnassigned,
		domain.TaskStateAssigned,
		domain.TaskStateCompleted,
		domain.TaskStateCancelled,
		domain.TaskStateTerminated,
	}
	transitions := map[string]func(*domain.TaskResource) (TransitionResult, error){
		"claim": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Claim(task, "user-1")
		},
		"unclaim": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Unclaim(task, "user-1")
		},
		"assign": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Assign(task, "user-1", "user-2", domain.TaskActionAssign)
		},
		"unassign": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Unassign(task, "user-1", domain.TaskActionUnassign)
		},
		"complete": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Complete(task, "user-1")
		},
		"cancel": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Cancel(task, "user-1")
		},
		"terminate": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.Terminate(task, domain.TerminationReasonDeleted)
		},
		"auto assign": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.AutoAssign(task, "user-3")
		},
		"auto unassign": func(task *domain.TaskResource) (TransitionResult, error) {
			return machine.AutoUnassign(task)
		},
	}

	for _, state := range states {
		for name, transition := range transitions {
			assignee := ""
			if state == domain.TaskStateAssigned {
				assignee = "user-1"
			}
			task := taskInState(state, assignee)
			if _, err := transition(&task); err != nil {
				continue
			}
			if err := task.CheckAssigneeInvariant(); err != nil {
				t.Fatalf("%s from %s broke the invariant: %v", name, state, err)
			}
		}
	}
}

func TestInvariantBreachReportsOperation(t *testing.T) {
	machine := newMachine()

	task := domain.TaskResource{TaskID: "task-1", State: domain.TaskStateUnassigned}
	_, err := machine.Claim(&task, "")
	var taskErr *domain.TaskError
	if !errors.As(err, &taskErr) || !errors.Is(err, domain.ErrGenericServer) {
		t.Fatalf("expected generic server error, got %v", err)
	}
	if taskErr.Operation != domain.OperationClaim {
		t.Fatalf("expected claim operation, got %q", taskErr.Operation)
	}
	if taskErr.Error() != domain.MessageWorkflowEngineFailure {
		t.Fatalf("claim breach must not use the initiation message, got %q", taskErr.Error())
	}

	fresh := domain.TaskResource{TaskID: "task-2", State: domain.TaskStateUnconfigured}
	_, err = machine.AutoAssign(&fresh, "")
	if !errors.As(err, &taskErr) || taskErr.Operation != domain.OperationInitiate {
		t.Fatalf("expected initiate operation, got %v", err)
	}
}
