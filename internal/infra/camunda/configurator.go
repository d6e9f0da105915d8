package camunda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

const (
	permissionsTablePrefix   = "wa-task-permissions"
	configurationTablePrefix = "wa-task-configuration"

	// AttributeCaseAccessCategory is the task attribute matched against permission rows.
	AttributeCaseAccessCategory = "caseAccessCategory"
)

type decisionRow map[string]variableValue

func (r decisionRow) text(key string) string {
	v, ok := r[key]
	if !ok || v.Value == nil {
		return ""
	}
	switch value := v.Value.(type) {
	case string:
		return strings.TrimSpace(value)
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func (r decisionRow) list(key string) []string {
	raw := r.text(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// TaskConfigurator evaluates the permissions and configuration decision tables for a task's
// jurisdiction and case type.
type TaskConfigurator struct {
	client *Client
}

// NewTaskConfigurator wraps client.
func NewTaskConfigurator(client *Client) *TaskConfigurator {
	return &TaskConfigurator{client: client}
}

// Configure returns the task roles, work type, role category and title for task.
func (c *TaskConfigurator) Configure(ctx context.Context, task domain.TaskResource) (*domain.TaskConfiguration, error) {
	variables := evaluationVariables(task)

	permissionRows, err := c.evaluate(ctx, tableKey(permissionsTablePrefix, task), variables)
	if err != nil {
		return nil, fmt.Errorf("evaluate permissions table: %w", err)
	}
	roles, err := rolesFromRows(permissionRows, task.Attributes[AttributeCaseAccessCategory])
	if err != nil {
		return nil, err
	}

	configurationRows, err := c.evaluate(ctx, tableKey(configurationTablePrefix, task), variables)
	if err != nil {
		return nil, fmt.Errorf("evaluate configuration table: %w", err)
	}

	cfg := &domain.TaskConfiguration{Roles: roles}
	for _, row := range configurationRows {
		value := row.text("value")
		switch row.text("name") {
		case "workType":
			cfg.WorkType = value
		case "roleCategory":
			cfg.RoleCategory = domain.RoleCategory(value)
		case "title":
			cfg.Title = value
		}
	}

	c.client.logger.Debug("task configured",
		zap.String("task_id", task.TaskID),
		zap.Int("roles", len(roles)),
		zap.String("work_type", cfg.WorkType),
	)
	return cfg, nil
}

func tableKey(prefix string, task domain.TaskResource) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s", prefix, task.Jurisdiction, task.CaseTypeID))
}

func evaluationVariables(task domain.TaskResource) map[string]variableValue {
	attributes := map[string]any{
		"taskId":       task.TaskID,
		"taskType":     task.TaskType,
		"caseId":       task.CaseID,
		"jurisdiction": task.Jurisdiction,
		"caseTypeId":   task.CaseTypeID,
		"region":       task.Region,
		"location":     task.Location,
	}
	for key, value := range task.Attributes {
		if _, reserved := attributes[key]; !reserved {
			attributes[key] = value
		}
	}
	return map[string]variableValue{
		"taskAttributes": {Value: attributes, Type: "Json"},
		"taskType":       {Value: task.TaskType, Type: "String"},
	}
}

func (c *TaskConfigurator) evaluate(ctx context.Context, key string, variables map[string]variableValue) ([]decisionRow, error) {
	path := "/decision-definition/key/" + url.PathEscape(key)
	if c.client.tenantID != "" {
		path += "/tenant-id/" + url.PathEscape(c.client.tenantID)
	}
	path += "/evaluate"

	var rows []decisionRow
	body := map[string]any{"variables": variables}
	if err := c.client.do(ctx, http.MethodPost, path, body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// rolesFromRows merges permission rows per role name. Rows restricted to case access categories
// only apply when one of them is listed on the task.
func rolesFromRows(rows []decisionRow, taskCategories string) ([]domain.TaskRoleResource, error) {
	categories := make(map[string]struct{})
	for _, category := range strings.Split(taskCategories, ",") {
		if category = strings.TrimSpace(category); category != "" {
			categories[category] = struct{}{}
		}
	}

	byName := make(map[string]*domain.TaskRoleResource)
	for _, row := range rows {
		name := row.text("name")
		if name == "" {
			continue
		}
		if required := row.list(AttributeCaseAccessCategory); len(required) > 0 && !anyCategory(required, categories) {
			continue
		}

		permissions, err := domain.ParsePermissionSet(row.text("value"))
		if err != nil {
			return nil, fmt.Errorf("permissions for role %s: %w", name, err)
		}

		role, ok := byName[name]
		if !ok {
			role = &domain.TaskRoleResource{RoleName: name, Permissions: domain.NewPermissionSet()}
			byName[name] = role
		}
		role.Permissions.Union(permissions)
		role.Authorisations = appendUnique(role.Authorisations, row.list("authorisations")...)
		if category := row.text("roleCategory"); category != "" {
			role.RoleCategory = domain.RoleCategory(category)
		}
		if raw := row.text("assignmentPriority"); raw != "" {
			priority, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("assignment priority for role %s: %w", name, err)
			}
			role.AssignmentPriority = &priority
		}
		if raw := row.text("autoAssignable"); raw != "" {
			autoAssignable, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("auto assignable flag for role %s: %w", name, err)
			}
			role.AutoAssignable = role.AutoAssignable || autoAssignable
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	roles := make([]domain.TaskRoleResource, 0, len(names))
	for _, name := range names {
		roles = append(roles, *byName[name])
	}
	return roles, nil
}

func anyCategory(required []string, present map[string]struct{}) bool {
	for _, category := range required {
		if _, ok := present[category]; ok {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, values ...string) []string {
	for _, value := range values {
		found := false
		for _, current := range existing {
			if current == value {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, value)
		}
	}
	return existing
}

var _ port.TaskConfigurator = (*TaskConfigurator)(nil)
