package worker

import (
	"context"
	"errors"
	"fmt"

	monitoringinterceptor "github.com/compozy/tenantflow/engine/infra/monitoring/interceptor"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/pkg/logger"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// -----------------------------------------------------------------------------
// Temporal-based Worker
// -----------------------------------------------------------------------------

type Config struct {
	Repo         task.Repository
	Units        *units.Registry
	Orchestrator *trigger.Orchestrator
	Tenants      TenantLoader
	Interceptors []interceptor.WorkerInterceptor
}

type Worker struct {
	client     *Client
	worker     worker.Worker
	activities *Activities
	scheduler  *Scheduler
}

func NewWorker(ctx context.Context, c *Client, cfg *Config) (*Worker, error) {
	if cfg.Repo == nil || cfg.Units == nil {
		return nil, errors.New("worker requires a task repository and a unit registry")
	}
	w := c.NewWorker(&worker.Options{
		BackgroundActivityContext: logger.ContextWithLogger(
			context.WithoutCancel(ctx),
			logger.FromContext(ctx),
		),
		Interceptors: cfg.Interceptors,
	})
	return &Worker{
		client:     c,
		worker:     w,
		activities: NewActivities(cfg.Repo, cfg.Units, cfg.Orchestrator, cfg.Tenants),
		scheduler:  NewScheduler(c, c.Config().TaskQueue),
	}, nil
}

func (o *Worker) register() {
	o.worker.RegisterWorkflowWithOptions(PipelineWorkflow, workflow.RegisterOptions{Name: PipelineWorkflowName})
	o.worker.RegisterWorkflowWithOptions(TriggerAllWorkflow, workflow.RegisterOptions{Name: TriggerAllWorkflowName})
	o.worker.RegisterActivity(o.activities)
}

// Setup registers workflows and activities and starts polling.
func (o *Worker) Setup(ctx context.Context) error {
	o.register()
	if err := o.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	monitoringinterceptor.IncrementRunningWorkers(ctx)
	logger.FromContext(ctx).Info("Worker started", "task_queue", o.client.Config().TaskQueue)
	return nil
}

func (o *Worker) Stop(ctx context.Context) {
	o.worker.Stop()
	monitoringinterceptor.DecrementRunningWorkers(ctx)
	logger.FromContext(ctx).Info("Worker stopped")
}

func (o *Worker) Scheduler() *Scheduler {
	return o.scheduler
}

func (o *Worker) Activities() *Activities {
	return o.activities
}
