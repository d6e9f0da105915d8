package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/repository"
)

type taskFixture struct {
	store        *taskStoreMock
	tx           *transactorMock
	roles        *roleSourceMock
	engine       *workflowEngineMock
	configurator *configuratorMock
	flags        *flagsMock
	events       *publisherMock
	metrics      *recorderMock
	svc          *TaskManagementService
}

// newManagedTask returns an UNASSIGNED task whose roles cover every permission family used below.
func newManagedTask() domain.TaskResource {
	task := newAccessTask()
	task.Roles = append(task.Roles, domain.TaskRoleResource{
		RoleName: "task-supervisor",
		Permissions: domain.NewPermissionSet(
			domain.PermissionRead,
			domain.PermissionManage,
			domain.PermissionCancel,
			domain.PermissionAssign,
			domain.PermissionUnassign,
		),
	})
	return task
}

func newTaskFixture(t *testing.T, tasks ...domain.TaskResource) *taskFixture {
	t.Helper()

	store := newTaskStoreMock(tasks...)
	f := &taskFixture{
		store: store,
		tx:    &transactorMock{store: store},
		roles: &roleSourceMock{byUser: map[string][]domain.RoleAssignment{
			"user-1":          {organisationalRole("user-1", "tribunal-caseworker")},
			"user-2":          {organisationalRole("user-2", "tribunal-caseworker")},
			"supervisor":      {organisationalRole("supervisor", "task-supervisor")},
			"case-manager":    {organisationalRole("case-manager", "case-manager")},
			"senior-user":     {organisationalRole("senior-user", "senior-tribunal-caseworker")},
			"OTHER_USER_ID":   {organisationalRole("OTHER_USER_ID", "tribunal-caseworker")},
			"no-access-user":  {},
			"expired-user":    {},
			"assignable-user": {organisationalRole("assignable-user", "tribunal-caseworker")},
		}},
		engine:       &workflowEngineMock{errs: map[string]error{}},
		configurator: &configuratorMock{},
		flags:        &flagsMock{value: true},
		events:       &publisherMock{},
		metrics:      &recorderMock{},
	}

	svc, err := NewTaskManagementService(TaskManagementDeps{
		Transactor:   f.tx,
		Tasks:        store,
		Roles:        f.roles,
		Engine:       f.engine,
		Configurator: f.configurator,
		Flags:        f.flags,
		Events:       f.events,
		Metrics:      f.metrics,
		Logger:       zaptest.NewLogger(t),
		Clock:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *taskFixture) outcome(op domain.Operation) string {
	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	return f.metrics.outcomes[string(op)]
}

func TestNewTaskManagementServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewTaskManagementService(TaskManagementDeps{}); err == nil {
		t.Fatal("expected an error for missing collaborators")
	}
}

func TestClaimTask(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	if err := f.svc.ClaimTask(context.Background(), "task-1", "user-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	stored := f.store.stored("task-1")
	if stored.State != domain.TaskStateAssigned || stored.AssigneeID() != "user-1" {
		t.Fatalf("unexpected stored task: state=%s assignee=%s", stored.State, stored.AssigneeID())
	}
	if len(f.engine.calls) != 1 {
		t.Fatalf("expected one engine call, got %v", f.engine.methods())
	}
	call := f.engine.calls[0]
	if call.method != "assign" || call.userID != "user-1" || call.already {
		t.Fatalf("unexpected engine call: %+v", call)
	}
	if f.store.saves != 1 {
		t.Fatalf("expected one save, got %d", f.store.saves)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != domain.TaskEventClaimed {
		t.Fatalf("unexpected events: %+v", f.events.events)
	}
	if got := f.outcome(domain.OperationClaim); got != OutcomeSuccess {
		t.Fatalf("unexpected outcome: %s", got)
	}
}

func TestClaimTaskAlreadyClaimedBySomeoneElse(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("OTHER_USER_ID")
	f := newTaskFixture(t, task)

	err := f.svc.ClaimTask(context.Background(), "task-1", "user-1")
	if !errors.Is(err, domain.ErrTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Task 'task-1' is already claimed by someone else." {
		t.Fatalf("unexpected message: %s", err)
	}
	if f.store.saves != 0 || len(f.engine.calls) != 0 {
		t.Fatalf("conflict must not save or call the engine: saves=%d calls=%v", f.store.saves, f.engine.methods())
	}
	if f.tx.rollbacks != 1 {
		t.Fatalf("expected rollback, got %d", f.tx.rollbacks)
	}
}

func TestClaimTaskVerificationAndNotFound(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	err := f.svc.ClaimTask(context.Background(), "task-1", "case-manager")
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("expected verification failure, got %v", err)
	}

	err = f.svc.ClaimTask(context.Background(), "missing", "user-1")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = f.svc.ClaimTask(context.Background(), " ", "user-1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, user := range []string{"user-1", "user-2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			results[i] = f.svc.ClaimTask(context.Background(), "task-1", user)
		}(i, user)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrTaskConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", succeeded)
	}
	if f.store.saves != 1 {
		t.Fatalf("expected a single save, got %d", f.store.saves)
	}
}

func TestCompleteTaskWithoutAssignee(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	err := f.svc.CompleteTask(context.Background(), "task-1", "user-1")
	if !errors.Is(err, domain.ErrTaskStateIncorrect) {
		t.Fatalf("expected state incorrect, got %v", err)
	}
	if err.Error() != "Could not complete task with id: task-1 as task was not previously assigned" {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestCompleteTaskRequiresCompletionPermission(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("case-manager")
	f := newTaskFixture(t, task)

	err := f.svc.CompleteTask(context.Background(), "task-1", "case-manager")
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("expected verification failure, got %v", err)
	}
	if len(f.engine.calls) != 0 {
		t.Fatalf("unexpected engine calls: %v", f.engine.methods())
	}
}

func TestCompleteTaskAlreadyCompletedIsNoOp(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateCompleted
	f := newTaskFixture(t, task)

	if err := f.svc.CompleteTask(context.Background(), "task-1", "user-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if f.store.saves != 0 || len(f.engine.calls) != 0 || len(f.events.events) != 0 {
		t.Fatalf("no-op must not save, call or publish: saves=%d calls=%v", f.store.saves, f.engine.methods())
	}
	if got := f.outcome(domain.OperationComplete); got != OutcomeNoOp {
		t.Fatalf("unexpected outcome: %s", got)
	}
}

func TestCompleteTaskOfAnotherUser(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("user-2")

	f := newTaskFixture(t, task)
	if err := f.svc.CompleteTask(context.Background(), "task-1", "senior-user"); err != nil {
		t.Fatalf("senior completing junior's task: %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateCompleted || got.Assignee != nil {
		t.Fatalf("unexpected stored task: %+v", got)
	}

	f = newTaskFixture(t, task)
	err := f.svc.CompleteTask(context.Background(), "task-1", "user-1")
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("peer must not complete another caseworker's task, got %v", err)
	}
}

func TestAssignAndCompleteTask(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	err := f.svc.CompleteTaskWithOptions(context.Background(), "task-1", "user-1", CompletionOptions{AssignAndComplete: true})
	if err != nil {
		t.Fatalf("assign and complete: %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateCompleted {
		t.Fatalf("unexpected state: %s", got.State)
	}
	if len(f.engine.calls) != 1 || f.engine.calls[0].method != "assign_and_complete" || f.engine.calls[0].already {
		t.Fatalf("unexpected engine calls: %+v", f.engine.calls)
	}
}

func TestCancelTaskPartialSuccess(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())
	f.engine.errs["cancel"] = errors.New("engine unavailable")

	cancelled, err := f.svc.CancelTask(context.Background(), "task-1", "supervisor")
	if !errors.Is(err, domain.ErrPartialSuccess) {
		t.Fatalf("expected partial success, got %v", err)
	}
	if cancelled == nil || cancelled.State != domain.TaskStateCancelled {
		t.Fatalf("expected the committed CANCELLED task, got %+v", cancelled)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateCancelled {
		t.Fatalf("local state must stay committed, got %s", got.State)
	}
	if f.store.saves != 1 {
		t.Fatalf("expected exactly one save, got %d", f.store.saves)
	}
	if f.tx.rollbacks != 0 {
		t.Fatalf("partial success must not roll back, got %d", f.tx.rollbacks)
	}
	if len(f.events.events) != 1 || !f.events.events[0].PartialSuccess {
		t.Fatalf("expected a partial success event, got %+v", f.events.events)
	}
	if got := f.outcome(domain.OperationCancel); got != OutcomePartialSuccess {
		t.Fatalf("unexpected outcome: %s", got)
	}
}

func TestCancelTaskNeedsCancelForOthers(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	if _, err := f.svc.CancelTask(context.Background(), "task-1", "user-1"); !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestRemoteFirstRollsBackOnEngineFailure(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())
	f.flags.value = false
	f.engine.errs["assign"] = errors.New("engine unavailable")

	err := f.svc.ClaimTask(context.Background(), "task-1", "user-1")
	if !errors.Is(err, domain.ErrGenericServer) {
		t.Fatalf("expected generic server error, got %v", err)
	}
	if err.Error() != domain.MessageWorkflowEngineFailure {
		t.Fatalf("unexpected message: %s", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateUnassigned {
		t.Fatalf("expected unchanged local state, got %s", got.State)
	}
	if f.store.saves != 0 {
		t.Fatalf("remote-first must not save after an engine failure, got %d", f.store.saves)
	}
}

func TestFlagLookupFailureDefaultsToLocalFirst(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())
	f.flags.err = errors.New("redis down")
	f.engine.errs["assign"] = errors.New("engine unavailable")

	err := f.svc.ClaimTask(context.Background(), "task-1", "user-1")
	if !errors.Is(err, domain.ErrPartialSuccess) {
		t.Fatalf("expected partial success, got %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateAssigned {
		t.Fatalf("expected committed ASSIGNED, got %s", got.State)
	}
}

func TestUnclaimTask(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("user-1")
	f := newTaskFixture(t, task)

	if err := f.svc.UnclaimTask(context.Background(), "task-1", "user-2"); !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("expected verification failure for a non-assignee, got %v", err)
	}

	if err := f.svc.UnclaimTask(context.Background(), "task-1", "user-1"); err != nil {
		t.Fatalf("unclaim: %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateUnassigned || got.Assignee != nil {
		t.Fatalf("unexpected stored task: %+v", got)
	}
	if len(f.engine.calls) != 1 || f.engine.calls[0].method != "unclaim" {
		t.Fatalf("unexpected engine calls: %v", f.engine.methods())
	}
}

func TestUnclaimTaskOnBehalfOfAnotherUserNeedsSeniority(t *testing.T) {
	task := newManagedTask()
	for i := range task.Roles {
		switch task.Roles[i].RoleName {
		case "tribunal-caseworker":
			task.Roles[i].Permissions = domain.NewPermissionSet(
				domain.PermissionRead, domain.PermissionOwn, domain.PermissionExecute,
				domain.PermissionUnclaim, domain.PermissionComplete,
			)
		case "senior-tribunal-caseworker":
			task.Roles[i].Permissions = domain.NewPermissionSet(domain.PermissionRead, domain.PermissionUnclaim)
		}
	}

	seniorsTask := task.Clone()
	seniorsTask.State = domain.TaskStateAssigned
	seniorsTask.Assignee = strPtr("senior-user")
	f := newTaskFixture(t, seniorsTask)

	err := f.svc.UnclaimTask(context.Background(), "task-1", "user-2")
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("junior must not release a senior's task, got %v", err)
	}
	if got := f.store.stored("task-1"); got.AssigneeID() != "senior-user" {
		t.Fatalf("task must stay with senior-user, got %q", got.AssigneeID())
	}
	if len(f.engine.calls) != 0 {
		t.Fatalf("unexpected engine calls: %v", f.engine.methods())
	}

	juniorsTask := task.Clone()
	juniorsTask.State = domain.TaskStateAssigned
	juniorsTask.Assignee = strPtr("user-2")
	f = newTaskFixture(t, juniorsTask)

	if err := f.svc.UnclaimTask(context.Background(), "task-1", "senior-user"); err != nil {
		t.Fatalf("senior releasing a junior's task: %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateUnassigned || got.Assignee != nil {
		t.Fatalf("unexpected stored task: %+v", got)
	}
}

func TestAssignTask(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	if err := f.svc.AssignTask(context.Background(), "task-1", "supervisor", strPtr("assignable-user")); err != nil {
		t.Fatalf("assign: %v", err)
	}
	stored := f.store.stored("task-1")
	if stored.AssigneeID() != "assignable-user" || stored.LastUpdatedAction != domain.TaskActionAssign {
		t.Fatalf("unexpected stored task: assignee=%s action=%s", stored.AssigneeID(), stored.LastUpdatedAction)
	}
	if call := f.engine.calls[0]; call.method != "assign" || call.userID != "assignable-user" || call.already {
		t.Fatalf("unexpected engine call: %+v", call)
	}

	if err := f.svc.AssignTask(context.Background(), "task-1", "supervisor", nil); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateUnassigned {
		t.Fatalf("expected UNASSIGNED, got %s", got.State)
	}
	if f.events.events[1].Type != domain.TaskEventUnassigned {
		t.Fatalf("unexpected event: %s", f.events.events[1].Type)
	}
}

func TestAssignTaskVerifiesBothParties(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	err := f.svc.AssignTask(context.Background(), "task-1", "supervisor", strPtr("no-access-user"))
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) || err.Error() != domain.MessageRoleAssignmentVerifyAssignee {
		t.Fatalf("expected assignee verification failure, got %v", err)
	}

	err = f.svc.AssignTask(context.Background(), "task-1", "case-manager", strPtr("user-2"))
	if !errors.Is(err, domain.ErrRoleAssignmentVerification) || err.Error() != domain.MessageRoleAssignmentVerifyAssigner {
		t.Fatalf("expected assigner verification failure, got %v", err)
	}
}

func TestInitiateTask(t *testing.T) {
	f := newTaskFixture(t)
	f.configurator.cfg = domain.TaskConfiguration{
		Roles: []domain.TaskRoleResource{{
			RoleName:           "tribunal-caseworker",
			Permissions:        domain.NewPermissionSet(domain.PermissionRead, domain.PermissionOwn, domain.PermissionExecute),
			AutoAssignable:     true,
			AssignmentPriority: intPtr(1),
		}},
		WorkType: "decision_making_work",
		Title:    "Review the appeal",
	}
	f.roles.caseRoles = []domain.RoleAssignment{caseRole("user-2", "tribunal-caseworker")}

	task, err := f.svc.InitiateTask(context.Background(), "task-1", InitiateTaskInput{
		TaskName:     "Review the appeal",
		TaskType:     "reviewAppeal",
		CaseID:       "1623278362431003",
		CaseTypeID:   "Asylum",
		Jurisdiction: "IA",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if task.State != domain.TaskStateAssigned || task.AssigneeID() != "user-2" || !task.AutoAssigned {
		t.Fatalf("unexpected task: state=%s assignee=%s", task.State, task.AssigneeID())
	}
	if task.WorkType != "decision_making_work" || task.SecurityClassification != domain.ClassificationPublic {
		t.Fatalf("configuration not applied: %+v", task)
	}
	if len(f.engine.calls) != 1 || f.engine.calls[0].method != "update_state" || f.engine.calls[0].state != domain.TaskStateAssigned {
		t.Fatalf("unexpected engine calls: %+v", f.engine.calls)
	}
	if f.events.events[0].Type != domain.TaskEventInitiated {
		t.Fatalf("unexpected event: %s", f.events.events[0].Type)
	}
}

func TestInitiateTaskFailures(t *testing.T) {
	input := InitiateTaskInput{
		TaskName:     "Review the appeal",
		TaskType:     "reviewAppeal",
		CaseID:       "1623278362431003",
		CaseTypeID:   "Asylum",
		Jurisdiction: "IA",
	}

	t.Run("duplicate id", func(t *testing.T) {
		f := newTaskFixture(t, newManagedTask())
		_, err := f.svc.InitiateTask(context.Background(), "task-1", input)
		if !errors.Is(err, domain.ErrDatabaseConflict) {
			t.Fatalf("expected database conflict, got %v", err)
		}
	})

	t.Run("engine failure rolls back", func(t *testing.T) {
		f := newTaskFixture(t)
		f.engine.errs["update_state"] = errors.New("engine unavailable")

		_, err := f.svc.InitiateTask(context.Background(), "task-1", input)
		if !errors.Is(err, domain.ErrGenericServer) || err.Error() != domain.MessageGenericServerError {
			t.Fatalf("expected generic server error, got %v", err)
		}
		if _, err := f.store.FindByID(context.Background(), "task-1"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("task must be rolled back, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		f := newTaskFixture(t)
		invalid := input
		invalid.TaskName = ""
		invalid.SecurityClassification = "SECRET"

		_, err := f.svc.InitiateTask(context.Background(), "task-1", invalid)
		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) || len(validationErr.Violations) != 2 {
			t.Fatalf("expected two violations, got %v", err)
		}
		if f.tx.commits+f.tx.rollbacks != 0 {
			t.Fatal("validation must fail before any transaction")
		}
	})
}

func TestTerminateTask(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateCompleted
	f := newTaskFixture(t, task)

	if err := f.svc.TerminateTask(context.Background(), "task-1", domain.TerminationReasonCompleted); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	stored := f.store.stored("task-1")
	if stored.State != domain.TaskStateTerminated || stored.TerminationReason == nil || *stored.TerminationReason != domain.TerminationReasonCompleted {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
	if len(f.engine.calls) != 1 || f.engine.calls[0].method != "delete_state" {
		t.Fatalf("unexpected engine calls: %v", f.engine.methods())
	}

	if err := f.svc.TerminateTask(context.Background(), "unknown", domain.TerminationReasonDeleted); err != nil {
		t.Fatalf("terminating an unknown task: %v", err)
	}
	if last := f.engine.calls[len(f.engine.calls)-1]; last.method != "delete_state" || last.taskID != "unknown" {
		t.Fatalf("expected engine state removal, got %+v", last)
	}
}

func TestTerminateTaskRollsBackOnEngineFailure(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateCancelled
	f := newTaskFixture(t, task)
	f.engine.errs["delete_state"] = errors.New("engine unavailable")

	if err := f.svc.TerminateTask(context.Background(), "task-1", domain.TerminationReasonCancelled); !errors.Is(err, domain.ErrGenericServer) {
		t.Fatalf("expected generic server error, got %v", err)
	}
	if got := f.store.stored("task-1"); got.State != domain.TaskStateCancelled {
		t.Fatalf("expected rollback to CANCELLED, got %s", got.State)
	}
}

func TestUpdateTaskIndex(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	if err := f.svc.UpdateTaskIndex(context.Background(), "task-1"); err != nil {
		t.Fatalf("index: %v", err)
	}
	if !f.store.stored("task-1").Indexed {
		t.Fatal("expected the task to be indexed")
	}

	f.store.waitErr = repository.ErrLockTimeout
	if err := f.svc.UpdateTaskIndex(context.Background(), "task-1"); err != nil {
		t.Fatalf("lock timeout must be swallowed, got %v", err)
	}
	if got := f.outcome(domain.OperationUpdateIndex); got != OutcomeNoOp {
		t.Fatalf("unexpected outcome: %s", got)
	}
}

func TestGetTask(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	task, err := f.svc.GetTask(context.Background(), "task-1", "user-1")
	if err != nil || task.TaskID != "task-1" {
		t.Fatalf("get task: %v", err)
	}
	if _, err := f.svc.GetTask(context.Background(), "task-1", "no-access-user"); !errors.Is(err, domain.ErrRoleAssignmentVerification) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestUpdateNotes(t *testing.T) {
	f := newTaskFixture(t, newManagedTask())

	task, err := f.svc.UpdateNotes(context.Background(), "task-1", NotesInput{Notes: []NoteInput{
		{Code: "TECH", NoteType: "WARNING", Content: "check the bundle"},
	}})
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(task.Notes) != 1 || !task.Notes[0].Created.Equal(fixedNow) || task.LastUpdatedAction != domain.TaskActionNotes {
		t.Fatalf("unexpected notes: %+v", task.Notes)
	}
	if len(f.engine.calls) != 0 {
		t.Fatal("notes never reach the workflow engine")
	}

	if _, err := f.svc.UpdateNotes(context.Background(), "task-1", NotesInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReconfigureTasksForCase(t *testing.T) {
	task := newManagedTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("expired-user")
	f := newTaskFixture(t, task)
	f.configurator.cfg = domain.TaskConfiguration{
		Roles: []domain.TaskRoleResource{{
			RoleName:       "tribunal-caseworker",
			Permissions:    domain.NewPermissionSet(domain.PermissionRead, domain.PermissionOwn, domain.PermissionExecute),
			AutoAssignable: true,
		}},
	}
	f.roles.caseRoles = []domain.RoleAssignment{caseRole("user-2", "tribunal-caseworker")}

	count, err := f.svc.ReconfigureTasksForCase(context.Background(), "1623278362431003")
	if err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one task reconfigured, got %d", count)
	}
	if got := f.store.stored("task-1"); got.AssigneeID() != "user-2" {
		t.Fatalf("expected reassignment to user-2, got %s", got.AssigneeID())
	}
	if call := f.engine.calls[0]; call.method != "assign" || call.userID != "user-2" || !call.already {
		t.Fatalf("unexpected engine call: %+v", call)
	}
	if f.events.events[0].Type != domain.TaskEventReconfigured {
		t.Fatalf("unexpected event: %s", f.events.events[0].Type)
	}
}
