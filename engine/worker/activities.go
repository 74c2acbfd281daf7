package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/pkg/logger"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const (
	RunTaskActivity     = "RunTask"
	RevokeTasksActivity = "RevokeTasks"
	TriggerAllActivity  = "TriggerAll"

	errTypeTaskFailed   = "TaskFailed"
	errTypeInvalidState = "InvalidTaskState"
	errTypeUnknownUnit  = "UnknownUnit"

	cancelledReason = "cancelled while running"
)

// Heartbeat is the progress detail RunTask reports to Temporal.
type Heartbeat struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

type RunTaskInput struct {
	Tenant   string        `json:"tenant"`
	Call     plan.Call     `json:"call"`
	Previous *units.Result `json:"previous,omitempty"`
}

type RevokeTasksInput struct {
	TaskIDs []core.ID `json:"task_ids"`
	Reason  string    `json:"reason"`
}

// TenantLoader resolves the registry a scheduled trigger pass runs against.
type TenantLoader func(ctx context.Context) (*tenant.Registry, error)

type Activities struct {
	repo         task.Repository
	units        *units.Registry
	orchestrator *trigger.Orchestrator
	tenants      TenantLoader
}

// NewActivities wires the activity set. orchestrator and tenants are only
// needed by TriggerAll and may be nil on workers that never run it.
func NewActivities(
	repo task.Repository,
	registry *units.Registry,
	orchestrator *trigger.Orchestrator,
	tenants TenantLoader,
) *Activities {
	return &Activities{
		repo:         repo,
		units:        registry,
		orchestrator: orchestrator,
		tenants:      tenants,
	}
}

// ExternalRef is the handle stored on a running task: workflowID/runID/activityID.
func ExternalRef(workflowID, runID, activityID string) string {
	return workflowID + "/" + runID + "/" + activityID
}

// ParseExternalRef splits a handle built by ExternalRef.
func ParseExternalRef(ref string) (workflowID, runID, activityID string, ok bool) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// RunTask executes the unit bound to one task. It is the only writer of the
// task between Start and the terminal transition.
func (a *Activities) RunTask(ctx context.Context, in *RunTaskInput) (*units.Result, error) {
	log := logger.FromContext(ctx).With("tenant", in.Tenant, "task_id", in.Call.TaskID, "task", in.Call.TaskName)
	t, err := a.repo.Get(ctx, in.Call.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", in.Call.TaskID, err)
	}
	if t.Status != task.StatusPending {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("task %s is %s, expected %s", t.ID, t.Status, task.StatusPending),
			errTypeInvalidState,
			nil,
		)
	}
	unit, err := a.units.ByName(in.Call.Unit)
	if err != nil {
		_ = a.persist(ctx, t, task.StatusPending, func() error { return t.Revoke(err.Error()) })
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeUnknownUnit, err)
	}
	info := activity.GetInfo(ctx)
	ref := ExternalRef(info.WorkflowExecution.ID, info.WorkflowExecution.RunID, info.ActivityID)
	if err := t.Start(ref); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidState, err)
	}
	if err := a.repo.UpdateStatus(ctx, t, task.StatusPending); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("failed to start task %s: %s", t.ID, err),
			errTypeInvalidState,
			err,
		)
	}
	log.Info("Task started", "unit", unit.Name(), "total", t.Total)
	rec := units.RecorderFunc(func(ctx context.Context, current, total int64) error {
		activity.RecordHeartbeat(ctx, Heartbeat{Current: current, Total: total})
		if err := t.Advance(current); err != nil {
			return err
		}
		return a.repo.UpdateProgress(ctx, t.ID, t.Current)
	})
	res, runErr := unit.Run(ctx, units.Input{Task: t.Clone(), Previous: in.Previous}, rec)
	switch {
	case runErr == nil:
		if err := a.persist(ctx, t, task.StatusRunning, t.Complete); err != nil {
			return nil, err
		}
		log.Info("Task completed", "processed", t.Total)
		return res, nil
	case errors.Is(ctx.Err(), context.Canceled):
		_ = a.persist(ctx, t, task.StatusRunning, func() error { return t.Revoke(cancelledReason) })
		log.Warn("Task revoked", "current", t.Current)
		return nil, ctx.Err()
	default:
		_ = a.persist(ctx, t, task.StatusRunning, func() error { return t.Fail(runErr) })
		log.Error("Task failed", "error", runErr, "current", t.Current)
		return nil, temporal.NewNonRetryableApplicationError(runErr.Error(), errTypeTaskFailed, runErr)
	}
}

// persist applies a transition and stores it even when the activity context
// has already been cancelled.
func (a *Activities) persist(ctx context.Context, t *task.Task, from task.Status, transition func() error) error {
	if err := transition(); err != nil {
		return err
	}
	if err := a.repo.UpdateStatus(context.WithoutCancel(ctx), t, from); err != nil {
		logger.FromContext(ctx).Error("Failed to persist task status",
			"task_id", t.ID, "status", t.Status, "error", err)
		return fmt.Errorf("failed to persist task %s as %s: %w", t.ID, t.Status, err)
	}
	return nil
}

// RevokeTasks moves every listed task that is still PENDING or RUNNING to
// REVOKED. Terminal tasks and tasks changed concurrently are left alone.
func (a *Activities) RevokeTasks(ctx context.Context, in *RevokeTasksInput) (int, error) {
	log := logger.FromContext(ctx)
	revoked := 0
	for _, id := range in.TaskIDs {
		t, err := a.repo.Get(ctx, id)
		if errors.Is(err, task.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return revoked, fmt.Errorf("failed to load task %s: %w", id, err)
		}
		if t.Status.IsTerminal() {
			continue
		}
		from := t.Status
		if err := t.Revoke(in.Reason); err != nil {
			return revoked, err
		}
		err = a.repo.UpdateStatus(ctx, t, from)
		if errors.Is(err, task.ErrStaleTask) {
			log.Debug("Task changed before revoke", "task_id", id)
			continue
		}
		if err != nil {
			return revoked, fmt.Errorf("failed to revoke task %s: %w", id, err)
		}
		revoked++
	}
	if revoked > 0 {
		log.Info("Tasks revoked", "count", revoked, "reason", in.Reason)
	}
	return revoked, nil
}

// TriggerAll runs one scheduled trigger pass.
func (a *Activities) TriggerAll(ctx context.Context) ([]trigger.Result, error) {
	if a.orchestrator == nil || a.tenants == nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"trigger pass is not configured on this worker", "NotConfigured", nil,
		)
	}
	registry, err := a.tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	return a.orchestrator.TriggerAll(ctx, registry), nil
}
