package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/infra/store"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the minimal database interface TaskRepo depends on (pgxpool or pgxmock).
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TaskRepo implements task.Repository on a pgx-compatible pool.
type TaskRepo struct {
	db  DB
	now func() time.Time
}

var _ task.Repository = (*TaskRepo)(nil)

func NewTaskRepo(db DB) *TaskRepo {
	return &TaskRepo{db: db, now: time.Now}
}

func (r *TaskRepo) Upsert(ctx context.Context, t *task.Task) (*task.Task, error) {
	query, args, err := store.UpsertTask(squirrel.Dollar, store.StampForInsert(t, r.now())).
		Suffix(store.ReturningTasks).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert query: %w", err)
	}
	var out task.Task
	if err := pgxscan.Get(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("upsert task %s/%s: %w", t.Tenant, t.Name, err)
	}
	return &out, nil
}

func (r *TaskRepo) Get(ctx context.Context, id core.ID) (*task.Task, error) {
	query, args, err := squirrel.Select(store.TaskColumns...).
		From(store.TasksTable).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	var out task.Task
	if err := pgxscan.Get(ctx, r.db, &out, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &out, nil
}

func (r *TaskRepo) List(ctx context.Context, filter *task.Filter) ([]*task.Task, error) {
	query, args, err := store.SelectTasks(squirrel.Dollar, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var out []*task.Task
	if err := pgxscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (r *TaskRepo) Exists(ctx context.Context, filter *task.Filter) (bool, error) {
	query, args, err := store.ExistsTasks(squirrel.Dollar, filter).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check tasks: %w", err)
	}
	return true, nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, t *task.Task, from task.Status) error {
	query, args, err := store.UpdateTaskStatus(squirrel.Dollar, t, from).ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", t.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.Get(ctx, t.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is no longer %s", task.ErrStaleTask, t.ID, from)
}

func (r *TaskRepo) UpdateProgress(ctx context.Context, id core.ID, current int64) error {
	query, args, err := squirrel.Update(store.TasksTable).
		Set("current_count", squirrel.Expr("LEAST(?::bigint, total_count)", current)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id, "status": task.StatusRunning}).
		Where(squirrel.Lt{"current_count": current}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build progress update: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update task %s progress: %w", id, err)
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, filter *task.Filter) (int64, error) {
	query, args, err := store.DeleteTasks(squirrel.Dollar, filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TaskRepo) Tenants(ctx context.Context) ([]string, error) {
	query, args, err := store.DistinctTenants(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenants query: %w", err)
	}
	var out []string
	if err := pgxscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}
