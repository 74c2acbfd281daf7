package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/infra/store"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/georgysavva/scany/v2/sqlscan"
)

// TaskRepo implements task.Repository on SQLite.
type TaskRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ task.Repository = (*TaskRepo)(nil)

func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db, now: time.Now}
}

// Upsert executes the conflict-aware insert and reads the row back by key.
// modernc reports no declared type for RETURNING columns, so timestamps
// would come back as text.
func (r *TaskRepo) Upsert(ctx context.Context, t *task.Task) (*task.Task, error) {
	query, args, err := store.UpsertTask(squirrel.Question, store.StampForInsert(t, r.now())).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert task %s/%s: %w", t.Tenant, t.Name, err)
	}
	return r.getBy(ctx, squirrel.Eq{"tenant": t.Tenant, "name": t.Name, "type": t.Type})
}

func (r *TaskRepo) Get(ctx context.Context, id core.ID) (*task.Task, error) {
	out, err := r.getBy(ctx, squirrel.Eq{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return out, err
}

func (r *TaskRepo) getBy(ctx context.Context, where squirrel.Eq) (*task.Task, error) {
	query, args, err := squirrel.Select(store.TaskColumns...).
		From(store.TasksTable).
		Where(where).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	var out task.Task
	if err := sqlscan.Get(ctx, r.db, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &out, nil
}

func (r *TaskRepo) List(ctx context.Context, filter *task.Filter) ([]*task.Task, error) {
	query, args, err := store.SelectTasks(squirrel.Question, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var out []*task.Task
	if err := sqlscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (r *TaskRepo) Exists(ctx context.Context, filter *task.Filter) (bool, error) {
	query, args, err := store.ExistsTasks(squirrel.Question, filter).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check tasks: %w", err)
	}
	return true, nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, t *task.Task, from task.Status) error {
	query, args, err := store.UpdateTaskStatus(squirrel.Question, t, from).ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s status: %w", t.ID, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, t.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is no longer %s", task.ErrStaleTask, t.ID, from)
}

func (r *TaskRepo) UpdateProgress(ctx context.Context, id core.ID, current int64) error {
	query, args, err := squirrel.Update(store.TasksTable).
		Set("current_count", squirrel.Expr("MIN(?, total_count)", current)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id, "status": task.StatusRunning}).
		Where(squirrel.Lt{"current_count": current}).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return fmt.Errorf("build progress update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update task %s progress: %w", id, err)
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, filter *task.Filter) (int64, error) {
	query, args, err := store.DeleteTasks(squirrel.Question, filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *TaskRepo) Tenants(ctx context.Context) ([]string, error) {
	query, args, err := store.DistinctTenants(squirrel.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenants query: %w", err)
	}
	var out []string
	if err := sqlscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}
