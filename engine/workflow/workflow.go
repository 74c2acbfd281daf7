package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/pkg/logger"
)

type Deps struct {
	Repo      task.Repository
	Units     *units.Registry
	Submitter plan.Submitter
	// Tenants, when set, rejects unknown and reserved tenants in Setup.
	Tenants *tenant.Registry
	Now     func() time.Time
}

// Workflow is the ordered list of steps for one tenant.
type Workflow struct {
	tenant  string
	deps    Deps
	steps   []*Step
	// written holds the tasks the last Setup persisted, even when it failed.
	written []*task.Task
}

func New(tenantName string, deps Deps) *Workflow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Workflow{tenant: tenantName, deps: deps}
}

func (w *Workflow) Tenant() string {
	return w.tenant
}

func (w *Workflow) AddStep(s *Step) {
	w.steps = append(w.steps, s)
}

func (w *Workflow) Steps() []*Step {
	return w.steps
}

func (w *Workflow) configError(err error) error {
	return core.ConfigurationError(err, map[string]any{"tenant": w.tenant})
}

// Setup upserts the tasks of def and rebuilds the step list. Every check that
// can fail on configuration runs before the first write.
func (w *Workflow) Setup(ctx context.Context, def Definition) error {
	if w.tenant == "" {
		return w.configError(errors.New("tenant is required"))
	}
	if w.deps.Tenants != nil {
		if err := w.deps.Tenants.Validate(w.tenant); err != nil {
			return w.configError(err)
		}
	}
	if err := def.Validate(); err != nil {
		return w.configError(err)
	}
	w.written = nil
	bound := make([]units.Unit, len(def.Steps))
	for i, spec := range def.Steps {
		u, err := w.deps.Units.Resolve(spec.Type)
		if err != nil {
			return w.configError(err)
		}
		bound[i] = u
	}
	triggeredAt := w.deps.Now()
	steps := make([]*Step, 0, len(def.Steps))
	for i, spec := range def.Steps {
		step := NewStep(spec.Name, spec.Parallel)
		for n := 1; n <= spec.Count; n++ {
			t, err := task.New(w.tenant, spec.TaskName(n), spec.Type, spec.Total)
			if err != nil {
				return w.configError(err)
			}
			t.Reset(spec.Total, triggeredAt)
			stored, err := w.deps.Repo.Upsert(ctx, t)
			if err != nil {
				return fmt.Errorf("failed to upsert task %s for tenant %s: %w", t.Name, w.tenant, err)
			}
			w.written = append(w.written, stored)
			step.Add(stored, bound[i])
		}
		steps = append(steps, step)
	}
	w.steps = steps
	logger.FromContext(ctx).Debug("Workflow set up", "tenant", w.tenant, "steps", len(steps))
	return nil
}

// BuildPlan chains the step plans so each step resolves before the next begins.
func (w *Workflow) BuildPlan() plan.Plan {
	plans := make([]plan.Plan, 0, len(w.steps))
	for _, s := range w.steps {
		plans = append(plans, s.BuildPlan())
	}
	return plan.Sequence(plans...)
}

// Run submits the composite plan and returns without waiting for it.
func (w *Workflow) Run(ctx context.Context) (plan.Handle, error) {
	p := w.BuildPlan()
	if p.IsEmpty() {
		return plan.Handle{}, w.configError(errors.New("workflow has no tasks to run"))
	}
	handle, err := w.deps.Submitter.Submit(ctx, plan.SubmitRequest{Tenant: w.tenant, Plan: p})
	if err != nil {
		return plan.Handle{}, fmt.Errorf("failed to submit workflow for tenant %s: %w", w.tenant, err)
	}
	logger.FromContext(ctx).Info("Workflow submitted", "tenant", w.tenant, "handle", handle.String())
	return handle, nil
}

func (w *Workflow) Tasks() []*task.Task {
	var tasks []*task.Task
	for _, s := range w.steps {
		tasks = append(tasks, s.Tasks()...)
	}
	return tasks
}

// Written returns the tasks upserted by the last Setup call. After a failed
// Setup these are PENDING rows that no step owns.
func (w *Workflow) Written() []*task.Task {
	return w.written
}

func (w *Workflow) Progress() progress.Progress {
	return progress.Aggregate(w.Tasks())
}
