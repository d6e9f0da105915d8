package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/repository"
)

const (
	tasksTable     = "cft_task_db.tasks"
	taskRolesTable = "cft_task_db.task_roles"

	pgUniqueViolation    = "23505"
	pgLockNotAvailable   = "55P03"
	defaultLockWaitLimit = 5 * time.Second
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var taskColumns = []string{
	"task_id",
	"task_name",
	"task_type",
	"title",
	"case_id",
	"case_type_id",
	"case_name",
	"jurisdiction",
	"region",
	"location",
	"work_type",
	"role_category",
	"security_classification",
	"state",
	"assignee",
	"auto_assigned",
	"termination_reason",
	"last_updated_action",
	"last_updated_user",
	"last_updated_timestamp",
	"due_date_time",
	"created",
	"indexed",
	"additional_properties",
	"notes",
}

var taskRoleColumns = []string{
	"role_name",
	"permissions",
	"authorisations",
	"assignment_priority",
	"auto_assignable",
	"role_category",
}

// TaskRepository implements port.TaskRepository backed by PostgreSQL.
type TaskRepository struct {
	exec          pgExecutor
	builder       squirrel.StatementBuilderType
	lockWaitLimit time.Duration
}

// NewTaskRepository constructs the repository from a generic executor.
func NewTaskRepository(exec pgExecutor) *TaskRepository {
	return &TaskRepository{
		exec:          exec,
		builder:       squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		lockWaitLimit: defaultLockWaitLimit,
	}
}

// WithTx binds the repository to execute statements within the supplied transaction.
func (r *TaskRepository) WithTx(tx pgx.Tx) *TaskRepository {
	if tx == nil {
		return r
	}
	return r.withExecutor(tx)
}

// WithLockWaitLimit bounds how long the waiting lock variant blocks.
func (r *TaskRepository) WithLockWaitLimit(limit time.Duration) *TaskRepository {
	if limit > 0 {
		r.lockWaitLimit = limit
	}
	return r
}

func (r *TaskRepository) withExecutor(exec pgExecutor) *TaskRepository {
	return &TaskRepository{
		exec:          exec,
		builder:       r.builder,
		lockWaitLimit: r.lockWaitLimit,
	}
}

var _ port.TaskRepository = (*TaskRepository)(nil)

// FindByID loads the task and its roles without locking.
func (r *TaskRepository) FindByID(ctx context.Context, taskID string) (*domain.TaskResource, error) {
	return r.find(ctx, taskID, "")
}

// FindByIDAndObtainPessimisticWriteLock loads the task with SELECT ... FOR UPDATE. No lock_timeout
// is set, so the wait ends only when the lock is granted or ctx is done.
func (r *TaskRepository) FindByIDAndObtainPessimisticWriteLock(ctx context.Context, taskID string) (*domain.TaskResource, error) {
	return r.find(ctx, taskID, "FOR UPDATE")
}

// FindByIDAndWaitAndObtainPessimisticWriteLock waits at most the lock wait limit for the row lock.
func (r *TaskRepository) FindByIDAndWaitAndObtainPessimisticWriteLock(ctx context.Context, taskID string) (*domain.TaskResource, error) {
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockWaitLimit.Milliseconds())
	if _, err := r.exec.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	task, err := r.find(ctx, taskID, "FOR UPDATE")
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, repository.ErrLockTimeout
		}
		return nil, err
	}
	return task, nil
}

// FindCaseID returns the case id of the task.
func (r *TaskRepository) FindCaseID(ctx context.Context, taskID string) (string, error) {
	stmt, args, err := r.builder.
		Select("case_id").
		From(tasksTable).
		Where(squirrel.Eq{"task_id": strings.TrimSpace(taskID)}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select case id sql: %w", err)
	}

	var caseID string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&caseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan case id: %w", err)
	}
	return caseID, nil
}

// InsertAndLock inserts the task row. The new row stays locked until the transaction ends.
func (r *TaskRepository) InsertAndLock(ctx context.Context, task domain.TaskResource) error {
	values, err := taskValues(task)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.
		Insert(tasksTable).
		Columns(taskColumns...).
		Values(values...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert task sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert task", err)
	}
	return r.replaceRoles(ctx, task)
}

// Save writes the full aggregate, replacing its task roles.
func (r *TaskRepository) Save(ctx context.Context, task domain.TaskResource) (*domain.TaskResource, error) {
	values, err := taskValues(task)
	if err != nil {
		return nil, err
	}

	update := r.builder.Update(tasksTable)
	for i, column := range taskColumns {
		if column == "task_id" {
			continue
		}
		update = update.Set(column, values[i])
	}

	stmt, args, err := update.Where(squirrel.Eq{"task_id": task.TaskID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update task sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return nil, mapWriteError("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}

	if err := r.replaceRoles(ctx, task); err != nil {
		return nil, err
	}

	saved := task.Clone()
	return &saved, nil
}

// FindActiveByCaseID lists ASSIGNED and UNASSIGNED tasks on the case, oldest first.
func (r *TaskRepository) FindActiveByCaseID(ctx context.Context, caseID string) ([]domain.TaskResource, error) {
	stmt, args, err := r.builder.
		Select(taskColumns...).
		From(tasksTable).
		Where(squirrel.Eq{
			"case_id": strings.TrimSpace(caseID),
			"state":   []string{string(domain.TaskStateAssigned), string(domain.TaskStateUnassigned)},
		}).
		OrderBy("created ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active tasks sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active tasks: %w", err)
	}

	var tasks []domain.TaskResource
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active tasks: %w", err)
	}

	for i := range tasks {
		roles, err := r.loadRoles(ctx, tasks[i].TaskID)
		if err != nil {
			return nil, err
		}
		tasks[i].Roles = roles
	}
	return tasks, nil
}

func (r *TaskRepository) find(ctx context.Context, taskID, suffix string) (*domain.TaskResource, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}

	query := r.builder.
		Select(taskColumns...).
		From(tasksTable).
		Where(squirrel.Eq{"task_id": taskID}).
		Limit(1)
	if suffix != "" {
		query = query.Suffix(suffix)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select task sql: %w", err)
	}

	task, err := scanTask(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	roles, err := r.loadRoles(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Roles = roles
	return task, nil
}

func (r *TaskRepository) loadRoles(ctx context.Context, taskID string) ([]domain.TaskRoleResource, error) {
	stmt, args, err := r.builder.
		Select(taskRoleColumns...).
		From(taskRolesTable).
		Where(squirrel.Eq{"task_id": taskID}).
		OrderBy("role_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select task roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query task roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.TaskRoleResource
	for rows.Next() {
		var (
			role           domain.TaskRoleResource
			permissions    []string
			authorisations []string
			priority       sql.NullInt32
			roleCategory   sql.NullString
		)
		if err := rows.Scan(&role.RoleName, &permissions, &authorisations, &priority, &role.AutoAssignable, &roleCategory); err != nil {
			return nil, fmt.Errorf("scan task role: %w", err)
		}

		set, err := domain.ParsePermissionSet(strings.Join(permissions, ","))
		if err != nil {
			return nil, fmt.Errorf("task role %s: %w", role.RoleName, err)
		}
		role.Permissions = set
		role.Authorisations = authorisations
		if priority.Valid {
			p := int(priority.Int32)
			role.AssignmentPriority = &p
		}
		if roleCategory.Valid {
			role.RoleCategory = domain.RoleCategory(roleCategory.String)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task roles: %w", err)
	}
	return roles, nil
}

func (r *TaskRepository) replaceRoles(ctx context.Context, task domain.TaskResource) error {
	stmt, args, err := r.builder.
		Delete(taskRolesTable).
		Where(squirrel.Eq{"task_id": task.TaskID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete task roles sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete task roles: %w", err)
	}

	if len(task.Roles) == 0 {
		return nil
	}

	insert := r.builder.
		Insert(taskRolesTable).
		Columns(append([]string{"task_id"}, taskRoleColumns...)...)
	for _, role := range task.Roles {
		var priority any
		if role.AssignmentPriority != nil {
			priority = int32(*role.AssignmentPriority)
		}
		authorisations := role.Authorisations
		if authorisations == nil {
			authorisations = []string{}
		}
		insert = insert.Values(
			task.TaskID,
			role.RoleName,
			role.Permissions.Strings(),
			authorisations,
			priority,
			role.AutoAssignable,
			nullableString(string(role.RoleCategory)),
		)
	}

	stmt, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert task roles sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert task roles", err)
	}
	return nil
}

func taskValues(task domain.TaskResource) ([]any, error) {
	attributes := task.Attributes
	if attributes == nil {
		attributes = map[string]string{}
	}
	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal task attributes: %w", err)
	}
	notes := task.Notes
	if notes == nil {
		notes = []domain.Note{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("marshal task notes: %w", err)
	}

	var terminationReason any
	if task.TerminationReason != nil {
		terminationReason = string(*task.TerminationReason)
	}
	var assignee any
	if task.Assignee != nil {
		assignee = *task.Assignee
	}
	var due any
	if task.DueDateTime != nil {
		due = task.DueDateTime.UTC()
	}

	return []any{
		task.TaskID,
		task.TaskName,
		task.TaskType,
		nullableString(task.Title),
		task.CaseID,
		task.CaseTypeID,
		nullableString(task.CaseName),
		task.Jurisdiction,
		nullableString(task.Region),
		nullableString(task.Location),
		nullableString(task.WorkType),
		nullableString(string(task.RoleCategory)),
		string(task.SecurityClassification),
		string(task.State),
		assignee,
		task.AutoAssigned,
		terminationReason,
		nullableString(string(task.LastUpdatedAction)),
		nullableString(task.LastUpdatedUser),
		task.LastUpdatedTimestamp.UTC(),
		due,
		task.Created.UTC(),
		task.Indexed,
		attributesJSON,
		notesJSON,
	}, nil
}

func scanTask(row pgx.Row) (*domain.TaskResource, error) {
	var (
		task              domain.TaskResource
		title             sql.NullString
		caseName          sql.NullString
		region            sql.NullString
		location          sql.NullString
		workType          sql.NullString
		roleCategory      sql.NullString
		classification    string
		state             string
		assignee          sql.NullString
		terminationReason sql.NullString
		lastAction        sql.NullString
		lastUser          sql.NullString
		due               sql.NullTime
		attributesJSON    []byte
		notesJSON         []byte
	)

	err := row.Scan(
		&task.TaskID,
		&task.TaskName,
		&task.TaskType,
		&title,
		&task.CaseID,
		&task.CaseTypeID,
		&caseName,
		&task.Jurisdiction,
		&region,
		&location,
		&workType,
		&roleCategory,
		&classification,
		&state,
		&assignee,
		&task.AutoAssigned,
		&terminationReason,
		&lastAction,
		&lastUser,
		&task.LastUpdatedTimestamp,
		&due,
		&task.Created,
		&task.Indexed,
		&attributesJSON,
		&notesJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Title = title.String
	task.CaseName = caseName.String
	task.Region = region.String
	task.Location = location.String
	task.WorkType = workType.String
	task.RoleCategory = domain.RoleCategory(roleCategory.String)
	task.SecurityClassification = domain.Classification(classification)
	task.State = domain.CFTTaskState(state)
	task.LastUpdatedAction = domain.TaskAction(lastAction.String)
	task.LastUpdatedUser = lastUser.String
	if assignee.Valid {
		value := assignee.String
		task.Assignee = &value
	}
	if terminationReason.Valid {
		reason := domain.TerminationReason(terminationReason.String)
		task.TerminationReason = &reason
	}
	if due.Valid {
		value := due.Time
		task.DueDateTime = &value
	}

	task.Attributes = map[string]string{}
	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &task.Attributes); err != nil {
			return nil, fmt.Errorf("decode task attributes: %w", err)
		}
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &task.Notes); err != nil {
			return nil, fmt.Errorf("decode task notes: %w", err)
		}
	}
	return &task, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
