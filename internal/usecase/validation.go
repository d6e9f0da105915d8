package usecase

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct runs struct tags and converts failures into a field-level ValidationError.
func validateStruct(v *validator.Validate, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.NewValidationError(domain.FieldViolation{Field: "request", Message: err.Error()})
	}

	violations := make([]domain.FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, domain.FieldViolation{
			Field:   fieldPath(fe.Namespace()),
			Message: violationMessage(fe),
		})
	}
	return domain.NewValidationError(violations...)
}

func requireIDs(fields map[string]string) error {
	var violations []domain.FieldViolation
	for _, name := range []string{"task_id", "user_id", "case_id"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			violations = append(violations, domain.FieldViolation{Field: name, Message: "must not be blank"})
		}
	}
	if len(violations) > 0 {
		return domain.NewValidationError(violations...)
	}
	return nil
}

func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be blank"
	case "min":
		return "must contain at least " + fe.Param() + " element(s)"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}
