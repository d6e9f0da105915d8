package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/transport/http/middleware"
	"github.com/hmcts/wa-task-management-api-sub002/internal/usecase"
)

const taskIDParam = "task-id"

// TaskService is the task coordinator as seen by the HTTP layer.
type TaskService interface {
	GetTask(ctx context.Context, taskID, userID string) (*domain.TaskResource, error)
	ClaimTask(ctx context.Context, taskID, userID string) error
	UnclaimTask(ctx context.Context, taskID, userID string) error
	AssignTask(ctx context.Context, taskID, assignerID string, assigneeID *string) error
	CompleteTaskWithOptions(ctx context.Context, taskID, userID string, opts usecase.CompletionOptions) error
	CancelTask(ctx context.Context, taskID, userID string) (*domain.TaskResource, error)
	TerminateTask(ctx context.Context, taskID string, reason domain.TerminationReason) error
	InitiateTask(ctx context.Context, taskID string, input usecase.InitiateTaskInput) (*domain.TaskResource, error)
	UpdateNotes(ctx context.Context, taskID string, input usecase.NotesInput) (*domain.TaskResource, error)
	UpdateTaskIndex(ctx context.Context, taskID string) error
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler builds a handler over tasks.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// RegisterRoutes mounts the task endpoints on r. Every route expects RequireAuth upstream.
func (h *TaskHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:task-id", h.GetTask)
	r.POST("/:task-id/claim", h.ClaimTask)
	r.POST("/:task-id/unclaim", h.UnclaimTask)
	r.POST("/:task-id/assign", h.AssignTask)
	r.POST("/:task-id/complete", h.CompleteTask)
	r.POST("/:task-id/cancel", h.CancelTask)
	r.POST("/:task-id/notes", h.UpdateNotes)
	r.POST("/:task-id/initiation", h.InitiateTask)
	r.POST("/:task-id/index", h.UpdateTaskIndex)
	r.DELETE("/:task-id", h.TerminateTask)
}

// requestActor resolves the path task id and the authenticated user, answering the request
// itself when either is missing.
func requestActor(c *gin.Context) (taskID, userID string, ok bool) {
	taskID = strings.TrimSpace(c.Param(taskIDParam))
	if taskID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "task id is required"))
		return "", "", false
	}

	userID, ok = middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return "", "", false
	}
	return taskID, userID, true
}

// GetTask returns the task when the caller holds READ on it.
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), taskID, userID)
	if err != nil {
		RespondWithTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, TaskResponse{Task: newTaskPayload(*task)})
}

// ClaimTask assigns the task to the caller.
func (h *TaskHandler) ClaimTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	if err := h.tasks.ClaimTask(c.Request.Context(), taskID, userID); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnclaimTask releases the task.
func (h *TaskHandler) UnclaimTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	if err := h.tasks.UnclaimTask(c.Request.Context(), taskID, userID); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AssignTask assigns the task to the body's user, or unassigns it when no user is given.
func (h *TaskHandler) AssignTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	var req AssignTaskRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.UserID != nil {
		trimmed := strings.TrimSpace(*req.UserID)
		if trimmed == "" {
			req.UserID = nil
		} else {
			req.UserID = &trimmed
		}
	}

	if err := h.tasks.AssignTask(c.Request.Context(), taskID, userID, req.UserID); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CompleteTask completes the task, optionally assigning it to the caller first.
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	var req CompleteTaskRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	var opts usecase.CompletionOptions
	if req.CompletionOptions != nil {
		opts.AssignAndComplete = req.CompletionOptions.AssignAndComplete
	}

	if err := h.tasks.CompleteTaskWithOptions(c.Request.Context(), taskID, userID, opts); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelTask cancels the task.
func (h *TaskHandler) CancelTask(c *gin.Context) {
	taskID, userID, ok := requestActor(c)
	if !ok {
		return
	}

	if _, err := h.tasks.CancelTask(c.Request.Context(), taskID, userID); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TerminateTask removes a task the workflow engine has finished with.
func (h *TaskHandler) TerminateTask(c *gin.Context) {
	taskID, _, ok := requestActor(c)
	if !ok {
		return
	}

	var req TerminateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithTaskError(c, domain.NewValidationError(domain.FieldViolation{
			Field:   "terminate_info.terminate_reason",
			Message: "is required",
		}))
		return
	}

	reason, err := domain.ParseTerminationReason(req.TerminateInfo.TerminateReason)
	if err != nil {
		RespondWithTaskError(c, domain.NewValidationError(domain.FieldViolation{
			Field:   "terminate_info.terminate_reason",
			Message: "must be one of completed, cancelled, deleted",
		}))
		return
	}

	if err := h.tasks.TerminateTask(c.Request.Context(), taskID, reason); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InitiateTask creates and configures a new task.
func (h *TaskHandler) InitiateTask(c *gin.Context) {
	taskID, _, ok := requestActor(c)
	if !ok {
		return
	}

	var req InitiateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid task initiation payload"))
		return
	}

	task, err := h.tasks.InitiateTask(c.Request.Context(), taskID, req.toInput())
	if err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, TaskResponse{Task: newTaskPayload(*task)})
}

// UpdateNotes appends notes to the task.
func (h *TaskHandler) UpdateNotes(c *gin.Context) {
	taskID, _, ok := requestActor(c)
	if !ok {
		return
	}

	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid notes payload"))
		return
	}

	if _, err := h.tasks.UpdateNotes(c.Request.Context(), taskID, req.toInput()); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateTaskIndex marks the task as indexed for search.
func (h *TaskHandler) UpdateTaskIndex(c *gin.Context) {
	taskID, _, ok := requestActor(c)
	if !ok {
		return
	}

	if err := h.tasks.UpdateTaskIndex(c.Request.Context(), taskID); err != nil {
		RespondWithTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// bindOptionalJSON decodes the body when one is present.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return false
	}
	return true
}
