package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is; the concrete value carries the user-facing message.
var (
	ErrTaskNotFound               = errors.New("task: not found")
	ErrRoleAssignmentVerification = errors.New("task: role assignment verification failed")
	ErrTaskStateIncorrect         = errors.New("task: state incorrect")
	ErrTaskConflict               = errors.New("task: conflict")
	ErrPartialSuccess             = errors.New("task: partially applied")
	ErrDatabaseConflict           = errors.New("task: database conflict")
	ErrGenericServer              = errors.New("task: generic server error")
	ErrValidation                 = errors.New("task: validation failed")
)

// Stable messages surfaced to callers.
const (
	MessageTaskNotFound                 = "Task Not Found Error: The task could not be found."
	MessageRoleAssignmentVerification   = "Role Assignment Verification: The request failed the Role Assignment checks performed."
	MessageRoleAssignmentVerifyAssigner = "Role Assignment Verification: The user assigning the Task has failed the Role Assignment checks performed."
	MessageRoleAssignmentVerifyAssignee = "Role Assignment Verification: The user being assigned the Task has failed the Role Assignment checks performed."
	MessageDatabaseConflict             = "Database Conflict Error: The action could not be completed because there was a conflict in the database."
	MessageGenericServerError           = "Generic Server Error: The action could not be completed because there was a problem when initiating the task."
	MessageValidation                   = "Validation Error: The request contains invalid fields."
	MessageWorkflowEngineFailure        = "Generic Server Error: The action could not be completed because there was a problem when calling the workflow engine."
)

// Operation names the coordinator operation an error belongs to.
type Operation string

const (
	OperationClaim             Operation = "claim"
	OperationUnclaim           Operation = "unclaim"
	OperationAssign            Operation = "assign"
	OperationComplete          Operation = "complete"
	OperationAssignAndComplete Operation = "assign_and_complete"
	OperationCancel            Operation = "cancel"
	OperationTerminate         Operation = "terminate"
	OperationInitiate          Operation = "initiate"
	OperationUpdateIndex       Operation = "update_index"
	OperationRead              Operation = "read"
	OperationNotes             Operation = "notes"
	OperationReconfigure       Operation = "reconfigure"
)

var partialSuccessWording = map[Operation][2]string{
	OperationClaim:             {"Claim", "claimed"},
	OperationUnclaim:           {"Unclaim", "unclaimed"},
	OperationAssign:            {"Assign", "assigned"},
	OperationComplete:          {"Complete", "completed"},
	OperationAssignAndComplete: {"Assign and Complete", "assigned and completed"},
	OperationCancel:            {"Cancel", "cancelled"},
}

// VerificationSide distinguishes the two parties of an assignment.
type VerificationSide int

const (
	VerificationRequester VerificationSide = iota
	VerificationAssigner
	VerificationAssignee
)

// TaskError is the concrete error for every kind in the taxonomy.
type TaskError struct {
	Kind      error
	Message   string
	TaskID    string
	Operation Operation
	Cause     error
}

func (e *TaskError) Error() string {
	return e.Message
}

// Is matches the error kind.
func (e *TaskError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewTaskNotFoundError reports a task id with no aggregate.
func NewTaskNotFoundError(taskID string) *TaskError {
	return &TaskError{Kind: ErrTaskNotFound, Message: MessageTaskNotFound, TaskID: taskID}
}

// NewRoleAssignmentVerificationError reports failed role checks for the given party.
func NewRoleAssignmentVerificationError(taskID string, side VerificationSide) *TaskError {
	msg := MessageRoleAssignmentVerification
	switch side {
	case VerificationAssigner:
		msg = MessageRoleAssignmentVerifyAssigner
	case VerificationAssignee:
		msg = MessageRoleAssignmentVerifyAssignee
	}
	return &TaskError{Kind: ErrRoleAssignmentVerification, Message: msg, TaskID: taskID}
}

// NewTaskStateIncorrectError reports a violated state precondition.
func NewTaskStateIncorrectError(taskID string, op Operation, message string) *TaskError {
	return &TaskError{Kind: ErrTaskStateIncorrect, Message: message, TaskID: taskID, Operation: op}
}

// NewTaskNotAssignedError is raised when completing a task that has no assignee.
func NewTaskNotAssignedError(taskID string) *TaskError {
	return NewTaskStateIncorrectError(taskID, OperationComplete,
		fmt.Sprintf("Could not complete task with id: %s as task was not previously assigned", taskID))
}

// NewTaskAlreadyClaimedError is raised when another actor holds the task.
func NewTaskAlreadyClaimedError(taskID string) *TaskError {
	return &TaskError{
		Kind:      ErrTaskConflict,
		Message:   fmt.Sprintf("Task '%s' is already claimed by someone else.", taskID),
		TaskID:    taskID,
		Operation: OperationClaim,
	}
}

// NewPartialSuccessError reports a committed local change whose workflow engine call failed.
func NewPartialSuccessError(taskID string, op Operation, cause error) *TaskError {
	wording, ok := partialSuccessWording[op]
	if !ok {
		wording = [2]string{strings.ToUpper(string(op[:1])) + string(op[1:]), "updated"}
	}
	return &TaskError{
		Kind: ErrPartialSuccess,
		Message: fmt.Sprintf("Task %s Partial Success: The Task state was updated successfully, but the Task could not be %s in the workflow engine.",
			wording[0], wording[1]),
		TaskID:    taskID,
		Operation: op,
		Cause:     cause,
	}
}

// NewDatabaseConflictError maps a unique-constraint violation during initiation.
func NewDatabaseConflictError(taskID string, cause error) *TaskError {
	return &TaskError{Kind: ErrDatabaseConflict, Message: MessageDatabaseConflict, TaskID: taskID, Operation: OperationInitiate, Cause: cause}
}

// NewGenericServerError maps an unexpected persistence or remote failure.
func NewGenericServerError(taskID string, op Operation, cause error) *TaskError {
	msg := MessageGenericServerError
	if op != OperationInitiate && op != "" {
		msg = MessageWorkflowEngineFailure
	}
	return &TaskError{Kind: ErrGenericServer, Message: msg, TaskID: taskID, Operation: op, Cause: cause}
}

// FieldViolation describes one invalid input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input before any state change.
type ValidationError struct {
	Violations []FieldViolation
}

// NewValidationError builds a ValidationError from violations.
func NewValidationError(violations ...FieldViolation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return MessageValidation
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return MessageValidation + " " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
