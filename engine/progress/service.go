package progress

import (
	"context"
	"time"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	SourceBackend = "backend"
	SourceRecord  = "record"

	defaultConcurrency   = 8
	defaultLookupRetries = 2
	defaultLookupBackoff = 100 * time.Millisecond
)

// Snapshot is the live progress the execution backend reports for a handle.
type Snapshot struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

// Source looks up live progress by external_ref. ok is false when the
// backend no longer tracks the handle.
type Source interface {
	Lookup(ctx context.Context, ref string) (snap *Snapshot, ok bool, err error)
}

type TaskView struct {
	*task.Task
	Percent float64 `json:"percent"`
	Source  string  `json:"source"`
}

type TenantResult struct {
	Tenant   string   `json:"tenant"`
	Progress Progress `json:"progress"`
	Err      error    `json:"-"`
	Error    string   `json:"error,omitempty"`
}

type Overview struct {
	Overall Progress       `json:"overall"`
	Tenants []TenantResult `json:"tenants"`
}

type Service struct {
	repo        task.Repository
	source      Source
	concurrency int
}

// NewService builds the read-only progress boundary. source may be nil.
func NewService(repo task.Repository, source Source) *Service {
	return &Service{repo: repo, source: source, concurrency: defaultConcurrency}
}

func (s *Service) tenantTasks(ctx context.Context, tenant string) ([]*task.Task, error) {
	return s.repo.List(ctx, &task.Filter{Tenant: tenant, OrderBy: task.OrderByTriggered})
}

// Tenant aggregates the tasks of one tenant. On failure the zero result is
// returned alongside the error.
func (s *Service) Tenant(ctx context.Context, tenant string) (Progress, error) {
	tasks, err := s.tenantTasks(ctx, tenant)
	if err != nil {
		return Zero(), core.NewError(err, core.ErrCodeAggregation, map[string]any{"tenant": tenant})
	}
	return Aggregate(tasks), nil
}

// All aggregates every tenant concurrently. A failing tenant carries its own
// error and does not fail the others.
func (s *Service) All(ctx context.Context, tenants []string) Overview {
	results := make([]TenantResult, len(tenants))
	collected := make([][]*task.Task, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range tenants {
		g.Go(func() error {
			tasks, err := s.tenantTasks(gctx, name)
			if err != nil {
				logger.FromContext(ctx).Warn("Failed to read tenant progress", "tenant", name, "error", err)
				wrapped := core.NewError(err, core.ErrCodeAggregation, map[string]any{"tenant": name})
				results[i] = TenantResult{Tenant: name, Progress: Zero(), Err: wrapped, Error: wrapped.Error()}
				return nil
			}
			collected[i] = tasks
			results[i] = TenantResult{Tenant: name, Progress: Aggregate(tasks)}
			return nil
		})
	}
	_ = g.Wait()
	var all []*task.Task
	for _, tasks := range collected {
		all = append(all, tasks...)
	}
	return Overview{Overall: Aggregate(all), Tenants: results}
}

// Task resolves per-task progress, preferring the backend's live view when
// the task has been dispatched.
func (s *Service) Task(ctx context.Context, t *task.Task) TaskView {
	view := TaskView{Task: t, Percent: 100 * Fraction(t), Source: SourceRecord}
	ref := t.Ref()
	if ref == "" || s.source == nil || t.Status != task.StatusRunning {
		return view
	}
	var snap *Snapshot
	backoff := retry.WithMaxRetries(defaultLookupRetries, retry.NewConstant(defaultLookupBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, ok, err := s.source.Lookup(ctx, ref)
		if err != nil {
			return retry.RetryableError(err)
		}
		if ok {
			snap = res
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Debug("Falling back to stored progress", "task_id", t.ID, "ref", ref, "error", err)
		return view
	}
	if snap == nil || snap.Total <= 0 {
		return view
	}
	current := min(max(snap.Current, t.Current), snap.Total)
	view.Percent = 100 * float64(current) / float64(snap.Total)
	view.Source = SourceBackend
	return view
}

func (s *Service) Tasks(ctx context.Context, filter *task.Filter) ([]TaskView, error) {
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, s.Task(ctx, t))
	}
	return views, nil
}
