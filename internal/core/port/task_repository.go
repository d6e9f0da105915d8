package port

import (
	"context"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

// TaskRepository persists the local task projection.
//
// Lookups return repository.ErrNotFound for unknown ids. The locking variants must run inside a
// transaction started by Transactor so the row lock lives until commit or rollback.
type TaskRepository interface {
	FindByID(ctx context.Context, taskID string) (*domain.TaskResource, error)
	// FindByIDAndObtainPessimisticWriteLock queues behind the current lock holder with no lock
	// timeout; only ctx bounds the wait. Coordinated transitions use it so a concurrent writer
	// yields a conflict or no-op after it commits rather than a timeout.
	FindByIDAndObtainPessimisticWriteLock(ctx context.Context, taskID string) (*domain.TaskResource, error)
	// FindByIDAndWaitAndObtainPessimisticWriteLock waits at most the configured lock wait limit
	// and returns repository.ErrLockTimeout when it expires. Best-effort writers such as the
	// index update use it to give way to coordinated transitions.
	FindByIDAndWaitAndObtainPessimisticWriteLock(ctx context.Context, taskID string) (*domain.TaskResource, error)
	FindCaseID(ctx context.Context, taskID string) (string, error)
	// InsertAndLock returns repository.ErrConflict when the task id already exists.
	InsertAndLock(ctx context.Context, task domain.TaskResource) error
	Save(ctx context.Context, task domain.TaskResource) (*domain.TaskResource, error)
	FindActiveByCaseID(ctx context.Context, caseID string) ([]domain.TaskResource, error)
}

// Transactor runs fn in a single database transaction. A nil return commits, an error rolls back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, tasks TaskRepository) error) error
}
