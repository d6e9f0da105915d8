package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/repository"
)

// LocalStateFirstFlag decides whether the local save precedes the workflow engine call.
const LocalStateFirstFlag = "wa-local-state-first"

// Operation outcomes reported to the OperationRecorder.
const (
	OutcomeSuccess        = "success"
	OutcomeNoOp           = "noop"
	OutcomePartialSuccess = "partial_success"
	OutcomeFailure        = "failure"
)

const tracerName = "github.com/hmcts/wa-task-management-api-sub002/internal/usecase"

// InitiateTaskInput carries the attributes of a task created by the workflow engine.
type InitiateTaskInput struct {
	TaskName               string `validate:"required"`
	TaskType               string `validate:"required"`
	CaseID                 string `validate:"required"`
	CaseTypeID             string `validate:"required"`
	CaseName               string
	Jurisdiction           string `validate:"required"`
	Region                 string
	Location               string
	SecurityClassification domain.Classification `validate:"omitempty,oneof=PUBLIC PRIVATE RESTRICTED"`
	DueDateTime            *time.Time
	Created                *time.Time
	Attributes             map[string]string
}

// NoteInput is a single note to append to a task.
type NoteInput struct {
	Code     string `validate:"required"`
	NoteType string `validate:"required"`
	UserID   string
	Content  string `validate:"max=4000"`
}

// NotesInput appends one or more notes.
type NotesInput struct {
	Notes []NoteInput `validate:"required,min=1,dive"`
}

// CompletionOptions tweaks CompleteTaskWithOptions.
type CompletionOptions struct {
	AssignAndComplete bool
}

// TaskManagementDeps lists the collaborators of TaskManagementService.
type TaskManagementDeps struct {
	Transactor   port.Transactor
	Tasks        port.TaskRepository
	Roles        port.RoleAssignmentSource
	Engine       port.WorkflowEngine
	Configurator port.TaskConfigurator
	Flags        port.FeatureFlagProvider
	Events       port.EventPublisher
	Metrics      port.OperationRecorder
	Hierarchy    RoleHierarchy
	Logger       *zap.Logger
	Clock        func() time.Time
	FlagKey      string
}

// TaskManagementService coordinates every task transition across the local store and the
// workflow engine.
type TaskManagementService struct {
	tx           port.Transactor
	tasks        port.TaskRepository
	roles        port.RoleAssignmentSource
	engine       port.WorkflowEngine
	configurator port.TaskConfigurator
	flags        port.FeatureFlagProvider
	events       port.EventPublisher
	metrics      port.OperationRecorder

	evaluator  *RoleAssignmentEvaluator
	query      *TaskQueryService
	autoAssign *AutoAssignmentService
	machine    *TaskStateMachine
	validate   *validator.Validate
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	flagKey    string
}

// NewTaskManagementService validates and wires the coordinator.
func NewTaskManagementService(deps TaskManagementDeps) (*TaskManagementService, error) {
	switch {
	case deps.Transactor == nil:
		return nil, errors.New("task management: transactor is required")
	case deps.Tasks == nil:
		return nil, errors.New("task management: task repository is required")
	case deps.Roles == nil:
		return nil, errors.New("task management: role assignment source is required")
	case deps.Engine == nil:
		return nil, errors.New("task management: workflow engine is required")
	case deps.Configurator == nil:
		return nil, errors.New("task management: task configurator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	flagKey := deps.FlagKey
	if flagKey == "" {
		flagKey = LocalStateFirstFlag
	}

	evaluator := NewRoleAssignmentEvaluator(deps.Hierarchy).WithClock(now)
	machine := NewTaskStateMachine().WithClock(now)

	return &TaskManagementService{
		tx:           deps.Transactor,
		tasks:        deps.Tasks,
		roles:        deps.Roles,
		engine:       deps.Engine,
		configurator: deps.Configurator,
		flags:        deps.Flags,
		events:       deps.Events,
		metrics:      deps.Metrics,
		evaluator:    evaluator,
		query:        NewTaskQueryService(deps.Tasks, evaluator),
		autoAssign:   NewAutoAssignmentService(deps.Roles, evaluator, machine, logger),
		machine:      machine,
		validate:     newValidator(),
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		now:          now,
		flagKey:      flagKey,
	}, nil
}

// remoteCall is the workflow engine half of a transition.
type remoteCall func(ctx context.Context) error

// plannedChange is what a transition asks the coordinator to persist and send.
type plannedChange struct {
	event  domain.TaskEventType
	remote remoteCall
}

// mutation describes one coordinated transition. apply mutates the locked task; a nil change
// means the task already held the end state.
type mutation struct {
	op          domain.Operation
	taskID      string
	userID      string
	requirement domain.Requirement
	side        domain.VerificationSide
	apply       func(ctx context.Context, task *domain.TaskResource, actorRoles []domain.RoleAssignment) (*plannedChange, error)
}

// ClaimTask assigns an UNASSIGNED task to the acting user.
func (s *TaskManagementService) ClaimTask(ctx context.Context, taskID, userID string) error {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": userID}); err != nil {
		return err
	}
	_, err := s.mutate(ctx, mutation{
		op:          domain.OperationClaim,
		taskID:      taskID,
		userID:      userID,
		requirement: ClaimRequirement,
		apply: func(_ context.Context, task *domain.TaskResource, _ []domain.RoleAssignment) (*plannedChange, error) {
			res, err := s.machine.Claim(task, userID)
			if err != nil || res.NoOp {
				return nil, err
			}
			alreadyAssigned := res.Previous == domain.TaskStateAssigned
			return &plannedChange{
				event: domain.TaskEventClaimed,
				remote: func(ctx context.Context) error {
					return s.engine.AssignTask(ctx, taskID, userID, alreadyAssigned)
				},
			}, nil
		},
	})
	return err
}

// UnclaimTask releases a task. A non-assignee must hold UNCLAIM or UNASSIGN and either MANAGE or
// a role above the assignee's.
func (s *TaskManagementService) UnclaimTask(ctx context.Context, taskID, userID string) error {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": userID}); err != nil {
		return err
	}
	_, err := s.mutate(ctx, mutation{
		op:     domain.OperationUnclaim,
		taskID: taskID,
		userID: userID,
		apply: func(ctx context.Context, task *domain.TaskResource, actorRoles []domain.RoleAssignment) (*plannedChange, error) {
			if !task.IsAssignedTo(userID) {
				if err := s.verifyActingForAssignee(ctx, task, userID, actorRoles, UnclaimRequirement); err != nil {
					return nil, err
				}
			}
			res, err := s.machine.Unclaim(task, userID)
			if err != nil || res.NoOp {
				return nil, err
			}
			return &plannedChange{
				event: domain.TaskEventUnclaimed,
				remote: func(ctx context.Context) error {
					return s.engine.UnclaimTask(ctx, taskID, res.Previous == domain.TaskStateUnassigned)
				},
			}, nil
		},
	})
	return err
}

var assignFamilyRequirement = domain.MustRequirement(domain.AnyOf(
	domain.PermissionAssign,
	domain.PermissionUnassign,
	domain.PermissionClaim,
	domain.PermissionUnclaim,
	domain.PermissionUnclaimAssign,
	domain.PermissionUnassignClaim,
	domain.PermissionUnassignAssign,
))

// AssignTask moves the task to assigneeID on behalf of assignerID. A nil or blank assignee
// unassigns the task.
func (s *TaskManagementService) AssignTask(ctx context.Context, taskID, assignerID string, assigneeID *string) error {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": assignerID}); err != nil {
		return err
	}
	target := ""
	if assigneeID != nil {
		target = strings.TrimSpace(*assigneeID)
	}

	var assigneeRoles []domain.RoleAssignment
	if target != "" {
		roles, err := s.roles.GetRolesByUserID(ctx, target)
		if err != nil {
			return fmt.Errorf("fetch assignee role assignments: %w", err)
		}
		assigneeRoles = roles
	}

	_, err := s.mutate(ctx, mutation{
		op:          domain.OperationAssign,
		taskID:      taskID,
		userID:      assignerID,
		requirement: assignFamilyRequirement,
		side:        domain.VerificationAssigner,
		apply: func(_ context.Context, task *domain.TaskResource, assignerRoles []domain.RoleAssignment) (*plannedChange, error) {
			plan := PlanAssignment(*task, assignerID, target)
			if plan.NoOp {
				return nil, nil
			}
			if !s.evaluator.HasAccess(*task, assignerRoles, plan.Requirement) {
				return nil, domain.NewRoleAssignmentVerificationError(taskID, domain.VerificationAssigner)
			}

			if target == "" {
				res, err := s.machine.Unassign(task, assignerID, plan.Action)
				if err != nil || res.NoOp {
					return nil, err
				}
				return &plannedChange{
					event: plan.Event,
					remote: func(ctx context.Context) error {
						return s.engine.UnclaimTask(ctx, taskID, false)
					},
				}, nil
			}

			if !s.evaluator.HasAccess(*task, assigneeRoles, OwnAndExecuteRequirement) {
				return nil, domain.NewRoleAssignmentVerificationError(taskID, domain.VerificationAssignee)
			}
			res, err := s.machine.Assign(task, assignerID, target, plan.Action)
			if err != nil || res.NoOp {
				return nil, err
			}
			alreadyAssigned := res.Previous == domain.TaskStateAssigned
			return &plannedChange{
				event: plan.Event,
				remote: func(ctx context.Context) error {
					return s.engine.AssignTask(ctx, taskID, target, alreadyAssigned)
				},
			}, nil
		},
	})
	return err
}

// CompleteTask completes an assigned task.
func (s *TaskManagementService) CompleteTask(ctx context.Context, taskID, userID string) error {
	return s.CompleteTaskWithOptions(ctx, taskID, userID, CompletionOptions{})
}

// CompleteTaskWithOptions completes the task, assigning it to the actor first when requested.
func (s *TaskManagementService) CompleteTaskWithOptions(ctx context.Context, taskID, userID string, opts CompletionOptions) error {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": userID}); err != nil {
		return err
	}
	if opts.AssignAndComplete {
		return s.assignAndComplete(ctx, taskID, userID)
	}

	_, err := s.mutate(ctx, mutation{
		op:          domain.OperationComplete,
		taskID:      taskID,
		userID:      userID,
		requirement: CompleteRequirement,
		apply: func(ctx context.Context, task *domain.TaskResource, actorRoles []domain.RoleAssignment) (*plannedChange, error) {
			if task.State != domain.TaskStateCompleted && task.Assignee != nil && !task.IsAssignedTo(userID) {
				if err := s.verifyActingForAssignee(ctx, task, userID, actorRoles, CompleteOthersRequirement); err != nil {
					return nil, err
				}
			}
			res, err := s.machine.Complete(task, userID)
			if err != nil || res.NoOp {
				return nil, err
			}
			return &plannedChange{
				event: domain.TaskEventCompleted,
				remote: func(ctx context.Context) error {
					return s.engine.CompleteTask(ctx, taskID, res.Previous == domain.TaskStateCompleted)
				},
			}, nil
		},
	})
	return err
}

// verifyActingForAssignee lets a non-assignee act on the task when they satisfy req and either
// hold MANAGE or a role above the assignee's in the hierarchy.
func (s *TaskManagementService) verifyActingForAssignee(ctx context.Context, task *domain.TaskResource, userID string, actorRoles []domain.RoleAssignment, req domain.Requirement) error {
	if !s.evaluator.HasAccess(*task, actorRoles, req) {
		return domain.NewRoleAssignmentVerificationError(task.TaskID, domain.VerificationRequester)
	}
	if task.Assignee == nil || s.evaluator.HasAccess(*task, actorRoles, ManageRequirement) {
		return nil
	}
	assigneeRoles, err := s.roles.GetRolesByUserID(ctx, *task.Assignee)
	if err != nil {
		return fmt.Errorf("fetch assignee role assignments: %w", err)
	}
	if !s.evaluator.HasAccessWithAssigneeCheckAndHierarchy(*task, userID, actorRoles, assigneeRoles, req) {
		return domain.NewRoleAssignmentVerificationError(task.TaskID, domain.VerificationRequester)
	}
	return nil
}

func (s *TaskManagementService) assignAndComplete(ctx context.Context, taskID, userID string) error {
	_, err := s.mutate(ctx, mutation{
		op:          domain.OperationAssignAndComplete,
		taskID:      taskID,
		userID:      userID,
		requirement: OwnAndExecuteRequirement,
		apply: func(_ context.Context, task *domain.TaskResource, _ []domain.RoleAssignment) (*plannedChange, error) {
			if task.State == domain.TaskStateCompleted {
				return nil, nil
			}
			assign, err := s.machine.Assign(task, userID, userID, domain.TaskActionAssign)
			if err != nil {
				return nil, err
			}
			if _, err := s.machine.Complete(task, userID); err != nil {
				return nil, err
			}
			alreadyAssigned := assign.NoOp
			return &plannedChange{
				event: domain.TaskEventCompleted,
				remote: func(ctx context.Context) error {
					return s.engine.AssignAndCompleteTask(ctx, taskID, userID, alreadyAssigned)
				},
			}, nil
		},
	})
	return err
}

// CancelTask cancels the task. When the workflow engine call fails the committed CANCELLED task
// is returned together with the partial success error.
func (s *TaskManagementService) CancelTask(ctx context.Context, taskID, userID string) (*domain.TaskResource, error) {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": userID}); err != nil {
		return nil, err
	}
	return s.mutate(ctx, mutation{
		op:          domain.OperationCancel,
		taskID:      taskID,
		userID:      userID,
		requirement: CancelRequirement,
		apply: func(_ context.Context, task *domain.TaskResource, actorRoles []domain.RoleAssignment) (*plannedChange, error) {
			if task.State != domain.TaskStateCancelled && !task.IsAssignedTo(userID) &&
				!s.evaluator.HasAccess(*task, actorRoles, CancelOthersRequirement) {
				return nil, domain.NewRoleAssignmentVerificationError(taskID, domain.VerificationRequester)
			}
			res, err := s.machine.Cancel(task, userID)
			if err != nil || res.NoOp {
				return nil, err
			}
			return &plannedChange{
				event: domain.TaskEventCancelled,
				remote: func(ctx context.Context) error {
					return s.engine.CancelTask(ctx, taskID)
				},
			}, nil
		},
	})
}

// mutate runs the shared lock, transition, save and remote call sequence.
func (s *TaskManagementService) mutate(ctx context.Context, m mutation) (*domain.TaskResource, error) {
	ctx, span := s.tracer.Start(ctx, "TaskManagementService."+string(m.op), trace.WithAttributes(
		attribute.String("task.id", m.taskID),
		attribute.String("task.operation", string(m.op)),
	))
	defer span.End()

	logger := s.logger.With(
		zap.String("task_id", m.taskID),
		zap.String("operation", string(m.op)),
		zap.String("user_id", m.userID),
	)

	actorRoles, err := s.roles.GetRolesByUserID(ctx, m.userID)
	if err != nil {
		return nil, s.fail(span, m.op, fmt.Errorf("fetch role assignments: %w", err))
	}
	if _, err := s.query.GetTask(ctx, m.taskID, actorRoles, m.requirement, m.side); err != nil {
		return nil, s.fail(span, m.op, err)
	}

	localFirst := s.localStateFirst(ctx, m.userID)

	var (
		saved     *domain.TaskResource
		change    *plannedChange
		remoteErr error
	)
	err = s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		task, err := tasks.FindByIDAndObtainPessimisticWriteLock(ctx, m.taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewTaskNotFoundError(m.taskID)
			}
			return fmt.Errorf("lock task: %w", err)
		}

		change, err = m.apply(ctx, task, actorRoles)
		if err != nil {
			return err
		}
		if change == nil {
			saved = task
			return nil
		}

		if !localFirst {
			if err := change.remote(ctx); err != nil {
				return domain.NewGenericServerError(m.taskID, m.op, err)
			}
		}

		saved, err = tasks.Save(ctx, *task)
		if err != nil {
			return fmt.Errorf("save task: %w", err)
		}

		if localFirst {
			remoteErr = change.remote(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, m.op, err)
	}

	if change == nil {
		logger.Debug("task already in requested state")
		s.record(m.op, OutcomeNoOp)
		return saved, nil
	}

	s.publish(ctx, *saved, change.event, m.userID, remoteErr != nil)

	if remoteErr != nil {
		logger.Warn("workflow engine call failed after local commit", zap.Error(remoteErr))
		span.RecordError(remoteErr)
		span.SetStatus(codes.Error, "partial success")
		s.record(m.op, OutcomePartialSuccess)
		return saved, domain.NewPartialSuccessError(m.taskID, m.op, remoteErr)
	}

	logger.Info("task updated", zap.String("state", string(saved.State)))
	s.record(m.op, OutcomeSuccess)
	return saved, nil
}

// TerminateTask closes the task with the given reason and deletes the engine-side state. A task
// unknown locally only has its engine state removed.
func (s *TaskManagementService) TerminateTask(ctx context.Context, taskID string, reason domain.TerminationReason) error {
	if err := requireIDs(map[string]string{"task_id": taskID}); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "TaskManagementService.terminate", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	var terminated *domain.TaskResource
	err := s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		task, err := tasks.FindByIDAndObtainPessimisticWriteLock(ctx, taskID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Info("terminating task unknown locally", zap.String("task_id", taskID))
		case err != nil:
			return fmt.Errorf("lock task: %w", err)
		default:
			res, err := s.machine.Terminate(task, reason)
			if err != nil {
				return err
			}
			if !res.NoOp {
				if terminated, err = tasks.Save(ctx, *task); err != nil {
					return fmt.Errorf("save task: %w", err)
				}
			}
		}

		if err := s.engine.DeleteCftTaskState(ctx, taskID); err != nil {
			return domain.NewGenericServerError(taskID, domain.OperationTerminate, err)
		}
		return nil
	})
	if err != nil {
		return s.fail(span, domain.OperationTerminate, err)
	}

	if terminated == nil {
		s.record(domain.OperationTerminate, OutcomeNoOp)
		return nil
	}
	s.publish(ctx, *terminated, domain.TaskEventTerminated, "", false)
	s.record(domain.OperationTerminate, OutcomeSuccess)
	return nil
}

// InitiateTask inserts a new task, configures it, runs auto assignment and records the resulting
// state in the workflow engine.
func (s *TaskManagementService) InitiateTask(ctx context.Context, taskID string, input InitiateTaskInput) (*domain.TaskResource, error) {
	if err := requireIDs(map[string]string{"task_id": taskID}); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "TaskManagementService.initiate", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	task := s.newTask(taskID, input)

	var saved *domain.TaskResource
	err := s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		if err := tasks.InsertAndLock(ctx, task); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.NewDatabaseConflictError(taskID, err)
			}
			return domain.NewGenericServerError(taskID, domain.OperationInitiate, err)
		}

		cfg, err := s.configurator.Configure(ctx, task)
		if err != nil {
			return domain.NewGenericServerError(taskID, domain.OperationInitiate, fmt.Errorf("configure task: %w", err))
		}
		s.machine.Configure(&task, *cfg, domain.TaskActionConfigure)

		if _, err := s.autoAssign.AutoAssign(ctx, &task); err != nil {
			return domain.NewGenericServerError(taskID, domain.OperationInitiate, err)
		}

		saved, err = tasks.Save(ctx, task)
		if err != nil {
			return domain.NewGenericServerError(taskID, domain.OperationInitiate, err)
		}

		if err := s.engine.UpdateCftTaskState(ctx, taskID, saved.State); err != nil {
			return domain.NewGenericServerError(taskID, domain.OperationInitiate, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, domain.OperationInitiate, err)
	}

	s.logger.Info("task initiated",
		zap.String("task_id", taskID),
		zap.String("state", string(saved.State)),
		zap.String("assignee", saved.AssigneeID()),
	)
	s.publish(ctx, *saved, domain.TaskEventInitiated, "", false)
	s.record(domain.OperationInitiate, OutcomeSuccess)
	return saved, nil
}

func (s *TaskManagementService) newTask(taskID string, input InitiateTaskInput) domain.TaskResource {
	created := s.now()
	if input.Created != nil {
		created = input.Created.UTC()
	}
	classification := input.SecurityClassification
	if classification == "" {
		classification = domain.ClassificationPublic
	}

	task := domain.TaskResource{
		TaskID:                 taskID,
		TaskName:               strings.TrimSpace(input.TaskName),
		TaskType:               strings.TrimSpace(input.TaskType),
		Title:                  strings.TrimSpace(input.TaskName),
		CaseID:                 strings.TrimSpace(input.CaseID),
		CaseTypeID:             strings.TrimSpace(input.CaseTypeID),
		CaseName:               input.CaseName,
		Jurisdiction:           strings.TrimSpace(input.Jurisdiction),
		Region:                 input.Region,
		Location:               input.Location,
		SecurityClassification: classification,
		State:                  domain.TaskStateUnconfigured,
		Created:                created,
		LastUpdatedTimestamp:   created,
		Attributes:             map[string]string{},
	}
	if input.DueDateTime != nil {
		due := input.DueDateTime.UTC()
		task.DueDateTime = &due
	}
	for k, v := range input.Attributes {
		task.Attributes[k] = v
	}
	return task
}

// UpdateTaskIndex marks the task as indexed. It waits a bounded time for the row lock; a lock
// timeout is logged and swallowed.
func (s *TaskManagementService) UpdateTaskIndex(ctx context.Context, taskID string) error {
	if err := requireIDs(map[string]string{"task_id": taskID}); err != nil {
		return err
	}

	err := s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		task, err := tasks.FindByIDAndWaitAndObtainPessimisticWriteLock(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewTaskNotFoundError(taskID)
			}
			return err
		}
		if task.Indexed {
			return nil
		}
		task.Indexed = true
		if _, err := tasks.Save(ctx, *task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		s.logger.Warn("task index update skipped, lock not obtained", zap.String("task_id", taskID))
		s.record(domain.OperationUpdateIndex, OutcomeNoOp)
		return nil
	}
	if err != nil {
		s.record(domain.OperationUpdateIndex, OutcomeFailure)
		return err
	}
	s.record(domain.OperationUpdateIndex, OutcomeSuccess)
	return nil
}

// GetTask returns the task when the user's role assignments grant READ on it.
func (s *TaskManagementService) GetTask(ctx context.Context, taskID, userID string) (*domain.TaskResource, error) {
	if err := requireIDs(map[string]string{"task_id": taskID, "user_id": userID}); err != nil {
		return nil, err
	}
	roles, err := s.roles.GetRolesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch role assignments: %w", err)
	}
	return s.query.GetTask(ctx, taskID, roles, ReadRequirement, domain.VerificationRequester)
}

// UpdateNotes appends notes to a task. Notes are local only and never reach the workflow engine.
func (s *TaskManagementService) UpdateNotes(ctx context.Context, taskID string, input NotesInput) (*domain.TaskResource, error) {
	if err := requireIDs(map[string]string{"task_id": taskID}); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	var saved *domain.TaskResource
	err := s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		task, err := tasks.FindByIDAndObtainPessimisticWriteLock(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewTaskNotFoundError(taskID)
			}
			return fmt.Errorf("lock task: %w", err)
		}

		now := s.now()
		for _, note := range input.Notes {
			task.Notes = append(task.Notes, domain.Note{
				Code:     strings.TrimSpace(note.Code),
				NoteType: strings.TrimSpace(note.NoteType),
				UserID:   note.UserID,
				Content:  note.Content,
				Created:  now,
			})
		}
		task.LastUpdatedAction = domain.TaskActionNotes
		task.LastUpdatedTimestamp = now

		saved, err = tasks.Save(ctx, *task)
		if err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.record(domain.OperationNotes, OutcomeFailure)
		return nil, err
	}
	s.record(domain.OperationNotes, OutcomeSuccess)
	return saved, nil
}

// ReconfigureTasksForCase re-runs configuration and auto assignment for every active task on the
// case. It returns the number of tasks reconfigured and the joined per-task failures.
func (s *TaskManagementService) ReconfigureTasksForCase(ctx context.Context, caseID string) (int, error) {
	if err := requireIDs(map[string]string{"case_id": caseID}); err != nil {
		return 0, err
	}
	ctx, span := s.tracer.Start(ctx, "TaskManagementService.reconfigure", trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()

	active, err := s.tasks.FindActiveByCaseID(ctx, caseID)
	if err != nil {
		return 0, fmt.Errorf("find active tasks: %w", err)
	}

	var (
		count int
		errs  []error
	)
	for _, task := range active {
		if err := s.reconfigureTask(ctx, task.TaskID); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.TaskID, err))
			if !errors.Is(err, domain.ErrPartialSuccess) {
				continue
			}
		}
		count++
	}
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		span.RecordError(joined)
		return count, joined
	}
	return count, nil
}

func (s *TaskManagementService) reconfigureTask(ctx context.Context, taskID string) error {
	var (
		saved     *domain.TaskResource
		previous  domain.TaskResource
		remoteErr error
	)
	err := s.tx.InTransaction(ctx, func(ctx context.Context, tasks port.TaskRepository) error {
		task, err := tasks.FindByIDAndObtainPessimisticWriteLock(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewTaskNotFoundError(taskID)
			}
			return fmt.Errorf("lock task: %w", err)
		}
		if !task.State.IsActive() {
			return nil
		}
		previous = task.Clone()

		cfg, err := s.configurator.Configure(ctx, *task)
		if err != nil {
			return fmt.Errorf("configure task: %w", err)
		}
		s.machine.Configure(task, *cfg, domain.TaskActionReconfigure)
		if _, err := s.autoAssign.ReAutoAssign(ctx, task); err != nil {
			return err
		}

		saved, err = tasks.Save(ctx, *task)
		if err != nil {
			return fmt.Errorf("save task: %w", err)
		}

		switch {
		case saved.AssigneeID() == previous.AssigneeID():
		case saved.Assignee != nil:
			remoteErr = s.engine.AssignTask(ctx, taskID, *saved.Assignee, previous.State == domain.TaskStateAssigned)
		default:
			remoteErr = s.engine.UnclaimTask(ctx, taskID, false)
		}
		return nil
	})
	if err != nil {
		s.record(domain.OperationReconfigure, OutcomeFailure)
		return err
	}
	if saved == nil {
		return nil
	}

	s.publish(ctx, *saved, domain.TaskEventReconfigured, "", remoteErr != nil)
	if remoteErr != nil {
		s.logger.Warn("workflow engine call failed after reconfiguration",
			zap.String("task_id", taskID),
			zap.Error(remoteErr),
		)
		s.record(domain.OperationReconfigure, OutcomePartialSuccess)
		return domain.NewPartialSuccessError(taskID, domain.OperationReconfigure, remoteErr)
	}
	s.record(domain.OperationReconfigure, OutcomeSuccess)
	return nil
}

func (s *TaskManagementService) localStateFirst(ctx context.Context, userID string) bool {
	if s.flags == nil {
		return true
	}
	enabled, err := s.flags.GetBooleanValue(ctx, s.flagKey, userID)
	if err != nil {
		s.logger.Warn("feature flag lookup failed, using local state first",
			zap.String("flag", s.flagKey),
			zap.Error(err),
		)
		return true
	}
	return enabled
}

func (s *TaskManagementService) publish(ctx context.Context, task domain.TaskResource, eventType domain.TaskEventType, actor string, partial bool) {
	if s.events == nil {
		return
	}
	event := domain.TaskEvent{
		EventID:           uuid.NewString(),
		Type:              eventType,
		TaskID:            task.TaskID,
		CaseID:            task.CaseID,
		State:             task.State,
		Assignee:          task.Assignee,
		Actor:             actor,
		Action:            task.LastUpdatedAction,
		TerminationReason: task.TerminationReason,
		PartialSuccess:    partial,
		OccurredAt:        s.now(),
	}
	if err := s.events.PublishTaskEvent(ctx, event); err != nil {
		s.logger.Warn("publish task event failed",
			zap.String("task_id", task.TaskID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}

func (s *TaskManagementService) fail(span trace.Span, op domain.Operation, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.record(op, OutcomeFailure)
	return err
}

func (s *TaskManagementService) record(op domain.Operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOperation(string(op), outcome)
	}
}
