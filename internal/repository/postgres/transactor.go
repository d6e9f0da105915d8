package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transactor runs task repository work inside one PostgreSQL transaction.
type Transactor struct {
	db    txBeginner
	tasks *TaskRepository
}

// NewTransactor binds the task repository to transactions opened on db.
func NewTransactor(db txBeginner, tasks *TaskRepository) *Transactor {
	return &Transactor{db: db, tasks: tasks}
}

var _ port.Transactor = (*Transactor)(nil)

// InTransaction commits when fn returns nil and rolls back otherwise. Row locks taken by fn are
// released when the transaction ends.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context, tasks port.TaskRepository) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, t.tasks.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
