package task

import (
	"context"

	"github.com/compozy/tenantflow/engine/core"
)

type OrderBy string

const (
	OrderByCreated   OrderBy = "created_at"
	OrderByTriggered OrderBy = "triggered_at"
)

// Filter narrows List, Exists and Delete. Zero fields match everything.
type Filter struct {
	Tenant   string
	Statuses []Status
	Types    []Type
	OrderBy  OrderBy
	Limit    uint64
}

func (f *Filter) Order() OrderBy {
	if f == nil || f.OrderBy == "" {
		return OrderByCreated
	}
	return f.OrderBy
}

type Repository interface {
	// Upsert inserts the task or resets the existing row keyed by
	// (tenant, name, type). The stored task, with its persisted ID, is returned.
	Upsert(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id core.ID) (*Task, error)
	List(ctx context.Context, filter *Filter) ([]*Task, error)
	Exists(ctx context.Context, filter *Filter) (bool, error)
	// UpdateStatus persists status, current, external_ref and error only if
	// the stored status still equals from. Returns ErrStaleTask otherwise.
	UpdateStatus(ctx context.Context, t *Task, from Status) error
	// UpdateProgress raises current for a RUNNING task, never above total.
	UpdateProgress(ctx context.Context, id core.ID, current int64) error
	Delete(ctx context.Context, filter *Filter) (int64, error)
	Tenants(ctx context.Context) ([]string, error)
}
