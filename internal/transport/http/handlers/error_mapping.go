package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message. An empty
// Message surfaces the error's own text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// taskErrorCases maps the task error taxonomy onto HTTP statuses.
var taskErrorCases = []ErrorCase{
	{Err: domain.ErrTaskNotFound, Status: http.StatusNotFound},
	{Err: domain.ErrRoleAssignmentVerification, Status: http.StatusForbidden},
	{Err: domain.ErrTaskStateIncorrect, Status: http.StatusConflict},
	{Err: domain.ErrTaskConflict, Status: http.StatusConflict},
	{Err: domain.ErrPartialSuccess, Status: http.StatusBadGateway},
	{Err: domain.ErrDatabaseConflict, Status: http.StatusServiceUnavailable},
	{Err: domain.ErrGenericServer, Status: http.StatusInternalServerError},
}

const genericErrorMessage = "internal server error"

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = publicMessage(err)
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// RespondWithTaskError writes the response for an error returned by the task service.
func RespondWithTaskError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			ErrorResponse: NewErrorResponse(c, domain.MessageValidation),
			Violations:    validationErr.Violations,
		})
		return
	}

	if err != nil && !errors.As(err, new(*domain.TaskError)) {
		_ = c.Error(err)
	}
	RespondWithMappedError(c, err, taskErrorCases, http.StatusInternalServerError, genericErrorMessage)
}

// publicMessage returns the stable message of a TaskError and never leaks wrapped causes.
func publicMessage(err error) string {
	var taskErr *domain.TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Message
	}
	return genericErrorMessage
}
