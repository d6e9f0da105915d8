package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Tasks      *TaskRepository
	Transactor *Transactor
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, lockWaitLimit time.Duration) *Repositories {
	tasks := NewTaskRepository(pool).WithLockWaitLimit(lockWaitLimit)
	return &Repositories{
		Tasks:      tasks,
		Transactor: NewTransactor(pool, tasks),
	}
}
