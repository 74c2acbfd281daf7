package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/engine/workflow"
	"github.com/compozy/tenantflow/pkg/logger"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

type Outcome string

const (
	OutcomeStarted Outcome = "started"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

const (
	ReasonLocked    = "locked"
	ReasonTriggered = "already triggered"

	defaultLockTTL     = time.Minute
	defaultConcurrency = 4
	submitFailedReason = "submit failed"
	setupFailedReason  = "setup failed"
)

// Result reports what a trigger pass did for one tenant.
type Result struct {
	Tenant  string      `json:"tenant"`
	Outcome Outcome     `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Handle  plan.Handle `json:"handle"`
	Err     error       `json:"-"`
	Error   string      `json:"error,omitempty"`
}

func (r Result) withErr(err error) Result {
	r.Outcome = OutcomeFailed
	r.Err = err
	r.Error = err.Error()
	return r
}

type Options struct {
	Repo       task.Repository
	Units      *units.Registry
	Submitter  plan.Submitter
	Locker     Locker
	Definition workflow.Definition
	LockTTL    time.Duration
	// Concurrency bounds how many tenants TriggerAll works on at once.
	Concurrency int
	Meter       metric.Meter
	// Events receives every trigger result when set.
	Events Publisher
	Now    func() time.Time
}

// Orchestrator is the single entry point for scheduled and on-demand triggers.
type Orchestrator struct {
	opts    Options
	guard   *Guard
	metrics *metrics
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Repo == nil {
		return nil, errors.New("orchestrator requires a task repository")
	}
	if opts.Units == nil {
		return nil, errors.New("orchestrator requires a unit registry")
	}
	if opts.Submitter == nil {
		return nil, errors.New("orchestrator requires a submitter")
	}
	if opts.Locker == nil {
		return nil, errors.New("orchestrator requires a locker")
	}
	if err := opts.Definition.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		opts:    opts,
		guard:   NewGuard(opts.Repo),
		metrics: newMetrics(opts.Meter),
	}, nil
}

func (o *Orchestrator) Guard() *Guard {
	return o.guard
}

// TriggerAll triggers every eligible tenant of registry. One tenant failing
// never stops the others; results follow registry order.
func (o *Orchestrator) TriggerAll(ctx context.Context, registry *tenant.Registry) []Result {
	tenants := registry.Eligible()
	results := make([]Result, len(tenants))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i, name := range tenants {
		g.Go(func() error {
			results[i] = o.Trigger(ctx, registry, name)
			return nil
		})
	}
	_ = g.Wait()
	logger.FromContext(ctx).Info("Trigger pass finished", "tenants", len(tenants), "started", countOutcome(results, OutcomeStarted))
	return results
}

// Trigger runs the locked guard, setup and submit sequence for one tenant.
func (o *Orchestrator) Trigger(ctx context.Context, registry *tenant.Registry, name string) Result {
	start := time.Now()
	res := o.trigger(ctx, registry, name)
	o.metrics.record(ctx, res, time.Since(start))
	o.publish(ctx, res)
	log := logger.FromContext(ctx).With("tenant", name, "outcome", res.Outcome)
	switch res.Outcome {
	case OutcomeFailed:
		log.Error("Tenant trigger failed", "error", res.Err)
	case OutcomeSkipped:
		log.Info("Tenant trigger skipped", "reason", res.Reason)
	default:
		log.Info("Tenant pipeline started", "handle", res.Handle.String())
	}
	return res
}

func (o *Orchestrator) trigger(ctx context.Context, registry *tenant.Registry, name string) Result {
	res := Result{Tenant: name}
	if err := registry.Validate(name); err != nil {
		return res.withErr(err)
	}
	lock, err := o.opts.Locker.Acquire(ctx, lockKey(name), o.opts.LockTTL)
	if errors.Is(err, ErrLocked) {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonLocked
		return res
	}
	if err != nil {
		return res.withErr(fmt.Errorf("failed to acquire trigger lock: %w", err))
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Warn("Failed to release trigger lock", "tenant", name, "error", err)
		}
	}()
	triggered, err := o.guard.IsTriggered(ctx, name)
	if err != nil {
		return res.withErr(err)
	}
	if triggered {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonTriggered
		return res
	}
	wf := workflow.New(name, workflow.Deps{
		Repo:      o.opts.Repo,
		Units:     o.opts.Units,
		Submitter: o.opts.Submitter,
		Tenants:   registry,
		Now:       o.opts.Now,
	})
	if err := wf.Setup(ctx, o.opts.Definition); err != nil {
		o.revokePending(ctx, wf.Written(), setupFailedReason)
		return res.withErr(err)
	}
	handle, err := wf.Run(ctx)
	if err != nil {
		o.revokePending(ctx, wf.Written(), submitFailedReason)
		return res.withErr(err)
	}
	res.Outcome = OutcomeStarted
	res.Handle = handle
	return res
}

// revokePending releases the guard for tasks that were written but never
// reached the backend.
func (o *Orchestrator) revokePending(ctx context.Context, tasks []*task.Task, reason string) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx)
	for _, t := range tasks {
		next := t.Clone()
		if err := next.Revoke(reason); err != nil {
			continue
		}
		if err := o.opts.Repo.UpdateStatus(ctx, next, t.Status); err != nil {
			log.Warn("Failed to revoke unsubmitted task", "task", t.Name, "error", err)
		}
	}
}

func countOutcome(results []Result, outcome Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}
