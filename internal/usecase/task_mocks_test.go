package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/repository"
)

// Mock collaborators for task coordination tests

type taskStoreMock struct {
	mu        sync.Mutex
	tasks     map[string]domain.TaskResource
	saves     int
	saveErr   error
	lockErr   error
	waitErr   error
	insertErr error
	active    []domain.TaskResource
}

func newTaskStoreMock(tasks ...domain.TaskResource) *taskStoreMock {
	m := &taskStoreMock{tasks: make(map[string]domain.TaskResource)}
	for _, task := range tasks {
		m.tasks[task.TaskID] = task.Clone()
	}
	return m
}

func (m *taskStoreMock) get(taskID string) (*domain.TaskResource, error) {
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := task.Clone()
	return &clone, nil
}

func (m *taskStoreMock) stored(taskID string) domain.TaskResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID].Clone()
}

func (m *taskStoreMock) FindByID(_ context.Context, taskID string) (*domain.TaskResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(taskID)
}

func (m *taskStoreMock) FindByIDAndObtainPessimisticWriteLock(_ context.Context, taskID string) (*domain.TaskResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	return m.get(taskID)
}

func (m *taskStoreMock) FindByIDAndWaitAndObtainPessimisticWriteLock(_ context.Context, taskID string) (*domain.TaskResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return m.get(taskID)
}

func (m *taskStoreMock) FindCaseID(_ context.Context, taskID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return task.CaseID, nil
}

func (m *taskStoreMock) InsertAndLock(_ context.Context, task domain.TaskResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.tasks[task.TaskID]; exists {
		return repository.ErrConflict
	}
	m.tasks[task.TaskID] = task.Clone()
	return nil
}

func (m *taskStoreMock) Save(_ context.Context, task domain.TaskResource) (*domain.TaskResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.tasks[task.TaskID] = task.Clone()
	clone := task.Clone()
	return &clone, nil
}

func (m *taskStoreMock) FindActiveByCaseID(_ context.Context, caseID string) ([]domain.TaskResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active, nil
	}
	var out []domain.TaskResource
	for _, task := range m.tasks {
		if task.CaseID == caseID && task.State.IsActive() {
			out = append(out, task.Clone())
		}
	}
	return out, nil
}

// transactorMock serialises transactions like a row lock and restores the store snapshot when fn
// fails, mirroring a rollback.
type transactorMock struct {
	mu        sync.Mutex
	store     *taskStoreMock
	commits   int
	rollbacks int
}

func (t *transactorMock) InTransaction(ctx context.Context, fn func(ctx context.Context, tasks port.TaskRepository) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store.mu.Lock()
	snapshot := make(map[string]domain.TaskResource, len(t.store.tasks))
	for id, task := range t.store.tasks {
		snapshot[id] = task.Clone()
	}
	t.store.mu.Unlock()

	if err := fn(ctx, t.store); err != nil {
		t.store.mu.Lock()
		t.store.tasks = snapshot
		t.store.mu.Unlock()
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type roleSourceMock struct {
	byUser    map[string][]domain.RoleAssignment
	caseRoles []domain.RoleAssignment
	err       error
	caseCalls int
}

func (m *roleSourceMock) GetRolesByUserID(_ context.Context, userID string) ([]domain.RoleAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	roles := m.byUser[userID]
	if roles == nil {
		return []domain.RoleAssignment{}, nil
	}
	return roles, nil
}

func (m *roleSourceMock) QueryRolesForAutoAssignmentByCaseID(_ context.Context, _ domain.TaskResource) ([]domain.RoleAssignment, error) {
	m.caseCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.caseRoles == nil {
		return []domain.RoleAssignment{}, nil
	}
	return m.caseRoles, nil
}

type engineCall struct {
	method  string
	taskID  string
	userID  string
	already bool
	state   domain.CFTTaskState
}

type workflowEngineMock struct {
	calls []engineCall
	errs  map[string]error
}

func (m *workflowEngineMock) record(call engineCall) error {
	m.calls = append(m.calls, call)
	return m.errs[call.method]
}

func (m *workflowEngineMock) methods() []string {
	out := make([]string, len(m.calls))
	for i, call := range m.calls {
		out[i] = call.method
	}
	return out
}

func (m *workflowEngineMock) AssignTask(_ context.Context, taskID, userID string, alreadyAssigned bool) error {
	return m.record(engineCall{method: "assign", taskID: taskID, userID: userID, already: alreadyAssigned})
}

func (m *workflowEngineMock) UnclaimTask(_ context.Context, taskID string, alreadyUnassigned bool) error {
	return m.record(engineCall{method: "unclaim", taskID: taskID, already: alreadyUnassigned})
}

func (m *workflowEngineMock) CompleteTask(_ context.Context, taskID string, alreadyCompleted bool) error {
	return m.record(engineCall{method: "complete", taskID: taskID, already: alreadyCompleted})
}

func (m *workflowEngineMock) AssignAndCompleteTask(_ context.Context, taskID, userID string, alreadyAssigned bool) error {
	return m.record(engineCall{method: "assign_and_complete", taskID: taskID, userID: userID, already: alreadyAssigned})
}

func (m *workflowEngineMock) CancelTask(_ context.Context, taskID string) error {
	return m.record(engineCall{method: "cancel", taskID: taskID})
}

func (m *workflowEngineMock) DeleteCftTaskState(_ context.Context, taskID string) error {
	return m.record(engineCall{method: "delete_state", taskID: taskID})
}

func (m *workflowEngineMock) UpdateCftTaskState(_ context.Context, taskID string, state domain.CFTTaskState) error {
	return m.record(engineCall{method: "update_state", taskID: taskID, state: state})
}

func (m *workflowEngineMock) IsCftTaskStateExistInCamunda(_ context.Context, taskID string) (bool, error) {
	return true, m.record(engineCall{method: "state_exists", taskID: taskID})
}

type configuratorMock struct {
	cfg domain.TaskConfiguration
	err error
}

func (m *configuratorMock) Configure(_ context.Context, _ domain.TaskResource) (*domain.TaskConfiguration, error) {
	if m.err != nil {
		return nil, m.err
	}
	cfg := m.cfg
	return &cfg, nil
}

type flagsMock struct {
	value bool
	err   error
}

func (m *flagsMock) GetBooleanValue(context.Context, string, string) (bool, error) {
	return m.value, m.err
}

type publisherMock struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
}

func (m *publisherMock) PublishTaskEvent(_ context.Context, event domain.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

type recorderMock struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (m *recorderMock) RecordOperation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]string)
	}
	m.outcomes[operation] = outcome
}

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
