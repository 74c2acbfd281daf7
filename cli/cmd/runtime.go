package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/infra/monitoring"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/worker"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/interceptor"
)

const (
	scheduleRetryMaxDuration = 5 * time.Minute
	scheduleRetryBaseDelay   = 1 * time.Second
	scheduleRetryMaxDelay    = 30 * time.Second
)

// Runtime is a started Temporal worker together with the orchestrator it
// uses for scheduled trigger passes.
type Runtime struct {
	Worker       *worker.Worker
	Orchestrator *trigger.Orchestrator
}

// StartRuntime builds the orchestrator and starts the worker. The executor must
// have been opened with the store, locks and backend.
func StartRuntime(ctx context.Context, e *CommandExecutor, mon *monitoring.Service) (*Runtime, error) {
	orch, err := e.Orchestrator(mon.Meter())
	if err != nil {
		return nil, err
	}
	w, err := worker.NewWorker(ctx, e.Client(), &worker.Config{
		Repo:         e.TaskRepo(),
		Units:        e.Units(),
		Orchestrator: orch,
		Tenants:      e.Tenants,
		Interceptors: []interceptor.WorkerInterceptor{mon.TemporalInterceptor(ctx)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	if err := w.Setup(ctx); err != nil {
		return nil, err
	}
	return &Runtime{Worker: w, Orchestrator: orch}, nil
}

// ReconcileSchedule keeps retrying Scheduler.Ensure with exponential backoff
// until it succeeds, ctx ends or the retry budget runs out.
func (r *Runtime) ReconcileSchedule(ctx context.Context, expr string, enabled bool) error {
	log := logger.FromContext(ctx)
	if expr == "" {
		log.Info("No trigger schedule configured")
		return nil
	}
	if err := worker.ValidateCron(expr); err != nil {
		return err
	}
	backoff := retry.NewExponential(scheduleRetryBaseDelay)
	backoff = retry.WithCappedDuration(scheduleRetryMaxDelay, backoff)
	backoff = retry.WithMaxDuration(scheduleRetryMaxDuration, backoff)
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := r.Worker.Scheduler().Ensure(ctx, expr, enabled); err != nil {
			log.Warn("Schedule reconciliation failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile trigger schedule: %w", err)
	}
	log.Info("Trigger schedule reconciled", "cron", expr, "enabled", enabled, "attempts", attempt)
	return nil
}
