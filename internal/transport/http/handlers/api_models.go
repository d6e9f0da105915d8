package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// ValidationErrorResponse lists the rejected fields of a request.
type ValidationErrorResponse struct {
	ErrorResponse
	Violations []domain.FieldViolation `json:"violations"`
}

// TaskRolePayload is the API view of a task role grant.
type TaskRolePayload struct {
	RoleName           string   `json:"role_name"`
	Permissions        []string `json:"permissions"`
	Authorisations     []string `json:"authorisations,omitempty"`
	AssignmentPriority *int     `json:"assignment_priority,omitempty"`
	AutoAssignable     bool     `json:"auto_assignable"`
	RoleCategory       string   `json:"role_category,omitempty"`
}

// NotePayload is the API view of a task note.
type NotePayload struct {
	Code     string    `json:"code"`
	NoteType string    `json:"note_type"`
	UserID   string    `json:"user_id,omitempty"`
	Content  string    `json:"content,omitempty"`
	Created  time.Time `json:"created,omitempty"`
}

// TaskPayload is the API view of a task.
type TaskPayload struct {
	ID                     string            `json:"id"`
	Name                   string            `json:"name"`
	Type                   string            `json:"type"`
	Title                  string            `json:"title,omitempty"`
	TaskState              string            `json:"task_state"`
	Assignee               *string           `json:"assignee,omitempty"`
	AutoAssigned           bool              `json:"auto_assigned"`
	CaseID                 string            `json:"case_id"`
	CaseTypeID             string            `json:"case_type_id"`
	CaseName               string            `json:"case_name,omitempty"`
	Jurisdiction           string            `json:"jurisdiction"`
	Region                 string            `json:"region,omitempty"`
	Location               string            `json:"location,omitempty"`
	WorkType               string            `json:"work_type_id,omitempty"`
	RoleCategory           string            `json:"role_category,omitempty"`
	SecurityClassification string            `json:"security_classification"`
	TerminationReason      *string           `json:"termination_reason,omitempty"`
	LastUpdatedAction      string            `json:"last_updated_action,omitempty"`
	LastUpdatedUser        string            `json:"last_updated_user,omitempty"`
	LastUpdatedTimestamp   *time.Time        `json:"last_updated_timestamp,omitempty"`
	DueDate                *time.Time        `json:"due_date,omitempty"`
	CreatedDate            time.Time         `json:"created_date"`
	Indexed                bool              `json:"indexed"`
	AdditionalProperties   map[string]string `json:"additional_properties,omitempty"`
	Roles                  []TaskRolePayload `json:"roles,omitempty"`
	Notes                  []NotePayload     `json:"notes,omitempty"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task TaskPayload `json:"task"`
}

// AssignTaskRequest assigns the task to UserID, or unassigns it when UserID is absent.
type AssignTaskRequest struct {
	UserID *string `json:"user_id"`
}

// CompletionOptionsPayload tweaks task completion.
type CompletionOptionsPayload struct {
	AssignAndComplete bool `json:"assign_and_complete"`
}

// CompleteTaskRequest is the optional body of the complete endpoint.
type CompleteTaskRequest struct {
	CompletionOptions *CompletionOptionsPayload `json:"completion_options"`
}

// InitiateTaskRequest carries the attributes of a task created by the workflow engine.
type InitiateTaskRequest struct {
	TaskName               string            `json:"task_name"`
	TaskType               string            `json:"task_type"`
	CaseID                 string            `json:"case_id"`
	CaseTypeID             string            `json:"case_type_id"`
	CaseName               string            `json:"case_name"`
	Jurisdiction           string            `json:"jurisdiction"`
	Region                 string            `json:"region"`
	Location               string            `json:"location"`
	SecurityClassification string            `json:"security_classification"`
	DueDateTime            *time.Time        `json:"due_date_time"`
	Created                *time.Time        `json:"created"`
	Attributes             map[string]string `json:"attributes"`
}

// TerminateInfo names why a task is being terminated.
type TerminateInfo struct {
	TerminateReason string `json:"terminate_reason" binding:"required"`
}

// TerminateTaskRequest is the body of the terminate endpoint.
type TerminateTaskRequest struct {
	TerminateInfo TerminateInfo `json:"terminate_info"`
}

// NotesRequest appends notes to a task.
type NotesRequest struct {
	NoteResource []NotePayload `json:"note_resource"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (r InitiateTaskRequest) toInput() usecase.InitiateTaskInput {
	return usecase.InitiateTaskInput{
		TaskName:               r.TaskName,
		TaskType:               r.TaskType,
		CaseID:                 r.CaseID,
		CaseTypeID:             r.CaseTypeID,
		CaseName:               r.CaseName,
		Jurisdiction:           r.Jurisdiction,
		Region:                 r.Region,
		Location:               r.Location,
		SecurityClassification: domain.Classification(r.SecurityClassification),
		DueDateTime:            r.DueDateTime,
		Created:                r.Created,
		Attributes:             r.Attributes,
	}
}

func (r NotesRequest) toInput() usecase.NotesInput {
	notes := make([]usecase.NoteInput, 0, len(r.NoteResource))
	for _, note := range r.NoteResource {
		notes = append(notes, usecase.NoteInput{
			Code:     note.Code,
			NoteType: note.NoteType,
			UserID:   note.UserID,
			Content:  note.Content,
		})
	}
	return usecase.NotesInput{Notes: notes}
}

// newTaskPayload converts a domain task to its API view.
func newTaskPayload(task domain.TaskResource) TaskPayload {
	payload := TaskPayload{
		ID:                     task.TaskID,
		Name:                   task.TaskName,
		Type:                   task.TaskType,
		Title:                  task.Title,
		TaskState:              string(task.State),
		Assignee:               task.Assignee,
		AutoAssigned:           task.AutoAssigned,
		CaseID:                 task.CaseID,
		CaseTypeID:             task.CaseTypeID,
		CaseName:               task.CaseName,
		Jurisdiction:           task.Jurisdiction,
		Region:                 task.Region,
		Location:               task.Location,
		WorkType:               task.WorkType,
		RoleCategory:           string(task.RoleCategory),
		SecurityClassification: string(task.SecurityClassification),
		LastUpdatedAction:      string(task.LastUpdatedAction),
		LastUpdatedUser:        task.LastUpdatedUser,
		DueDate:                task.DueDateTime,
		CreatedDate:            task.Created,
		Indexed:                task.Indexed,
		AdditionalProperties:   task.Attributes,
	}

	if task.TerminationReason != nil {
		reason := string(*task.TerminationReason)
		payload.TerminationReason = &reason
	}
	if !task.LastUpdatedTimestamp.IsZero() {
		ts := task.LastUpdatedTimestamp
		payload.LastUpdatedTimestamp = &ts
	}

	for _, role := range task.Roles {
		payload.Roles = append(payload.Roles, TaskRolePayload{
			RoleName:           role.RoleName,
			Permissions:        role.Permissions.Strings(),
			Authorisations:     role.Authorisations,
			AssignmentPriority: role.AssignmentPriority,
			AutoAssignable:     role.AutoAssignable,
			RoleCategory:       string(role.RoleCategory),
		})
	}
	for _, note := range task.Notes {
		payload.Notes = append(payload.Notes, NotePayload{
			Code:     note.Code,
			NoteType: note.NoteType,
			UserID:   note.UserID,
			Content:  note.Content,
			Created:  note.Created,
		})
	}

	return payload
}
