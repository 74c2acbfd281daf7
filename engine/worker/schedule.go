package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ScheduleID         = "tenantflow-trigger-all"
	triggerAllWorkflow = "tenantflow-trigger-all-run"
	triggerAllTimeout  = 10 * time.Minute
	defaultTimezone    = "UTC"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron accepts five-field expressions and descriptors such as @hourly.
func ValidateCron(expr string) error {
	if expr == "" {
		return errors.New("cron expression is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// TriggerAllWorkflow is the scheduled entry point. It runs one trigger pass
// over every eligible tenant.
func TriggerAllWorkflow(ctx workflow.Context) ([]trigger.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: triggerAllTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var results []trigger.Result
	if err := workflow.ExecuteActivity(ctx, TriggerAllActivity).Get(ctx, &results); err != nil {
		return nil, err
	}
	started := 0
	for _, r := range results {
		if r.Outcome == trigger.OutcomeStarted {
			started++
		}
	}
	workflow.GetLogger(ctx).Info("Trigger pass finished", "tenants", len(results), "started", started)
	return results, nil
}

// Scheduler keeps the recurring trigger schedule in sync with configuration.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// Ensure creates the schedule or updates it in place. A disabled schedule is
// kept but paused.
func (s *Scheduler) Ensure(ctx context.Context, expr string, enabled bool) error {
	log := logger.FromContext(ctx).With("schedule_id", ScheduleID)
	if err := ValidateCron(expr); err != nil {
		return err
	}
	handle := s.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	desc, err := handle.Describe(ctx)
	var notFound *serviceerror.NotFound
	switch {
	case errors.As(err, &notFound):
		return s.create(ctx, expr, enabled)
	case err != nil:
		return fmt.Errorf("failed to describe schedule: %w", err)
	}
	if !needsUpdate(desc, expr, enabled, s.taskQueue) {
		log.Debug("Schedule is up to date")
		return nil
	}
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			schedule := input.Description.Schedule
			if schedule.Spec == nil {
				schedule.Spec = &client.ScheduleSpec{}
			}
			schedule.Spec.CronExpressions = []string{expr}
			schedule.Spec.TimeZoneName = defaultTimezone
			if schedule.State == nil {
				schedule.State = &client.ScheduleState{}
			}
			schedule.State.Paused = !enabled
			schedule.Action = s.action()
			return &client.ScheduleUpdate{Schedule: &schedule}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	log.Info("Schedule updated", "cron", expr, "enabled", enabled)
	return nil
}

func (s *Scheduler) create(ctx context.Context, expr string, enabled bool) error {
	handle, err := s.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{expr},
			TimeZoneName:    defaultTimezone,
		},
		Action: s.action(),
		Paused: !enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	logger.FromContext(ctx).Info("Schedule created", "schedule_id", handle.GetID(), "cron", expr, "enabled", enabled)
	return nil
}

func (s *Scheduler) action() *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        triggerAllWorkflow,
		Workflow:  TriggerAllWorkflowName,
		TaskQueue: s.taskQueue,
	}
}

// needsUpdate compares the described schedule against the desired one.
func needsUpdate(desc *client.ScheduleDescription, expr string, enabled bool, taskQueue string) bool {
	if desc == nil {
		return true
	}
	sched := desc.Schedule
	if sched.Spec == nil || !slices.Equal(sched.Spec.CronExpressions, []string{expr}) {
		return true
	}
	if sched.State == nil || sched.State.Paused == enabled {
		return true
	}
	action, ok := sched.Action.(*client.ScheduleWorkflowAction)
	if !ok {
		return true
	}
	if name, ok := action.Workflow.(string); !ok || name != TriggerAllWorkflowName {
		return true
	}
	return action.TaskQueue != taskQueue
}
