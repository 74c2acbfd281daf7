package interceptor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/compozy/tenantflow/engine/infra/monitoring/metrics"
	"github.com/compozy/tenantflow/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var (
	workflowStartedTotal   metric.Int64Counter
	workflowCompletedTotal metric.Int64Counter
	workflowFailedTotal    metric.Int64Counter
	workflowDuration       metric.Float64Histogram
	activityTotal          metric.Int64Counter
	activityDuration       metric.Float64Histogram
	workersRunning         metric.Int64UpDownCounter
	initOnce               sync.Once
	metricsMutex           sync.RWMutex
)

// resetMetrics is used for testing purposes only
func resetMetrics() {
	workflowStartedTotal = nil
	workflowCompletedTotal = nil
	workflowFailedTotal = nil
	workflowDuration = nil
	activityTotal = nil
	activityDuration = nil
	workersRunning = nil
	initOnce = sync.Once{}
}

// ResetMetricsForTesting resets the metrics initialization state for testing
func ResetMetricsForTesting() {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	resetMetrics()
}

func initWorkflowMetrics(ctx context.Context, meter metric.Meter) error {
	log := logger.FromContext(ctx)
	var err error
	workflowStartedTotal, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("temporal", "workflow_started_total"),
		metric.WithDescription("Started workflows"),
	)
	if err != nil {
		log.Error("Failed to create workflow started counter", "error", err, "component", "temporal_metrics")
		return err
	}
	workflowCompletedTotal, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("temporal", "workflow_completed_total"),
		metric.WithDescription("Completed workflows"),
	)
	if err != nil {
		log.Error("Failed to create workflow completed counter", "error", err, "component", "temporal_metrics")
		return err
	}
	workflowFailedTotal, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("temporal", "workflow_failed_total"),
		metric.WithDescription("Failed workflows"),
	)
	if err != nil {
		log.Error("Failed to create workflow failed counter", "error", err, "component", "temporal_metrics")
		return err
	}
	workflowDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("temporal", "workflow_duration_seconds"),
		metric.WithDescription("Workflow execution time"),
		metric.WithExplicitBucketBoundaries(metrics.WorkflowDurationBuckets...),
	)
	if err != nil {
		log.Error("Failed to create workflow duration histogram", "error", err, "component", "temporal_metrics")
		return err
	}
	return nil
}

func initActivityMetrics(ctx context.Context, meter metric.Meter) error {
	log := logger.FromContext(ctx)
	var err error
	activityTotal, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("temporal", "activity_total"),
		metric.WithDescription("Finished activities by type and result"),
	)
	if err != nil {
		log.Error("Failed to create activity counter", "error", err, "component", "temporal_metrics")
		return err
	}
	activityDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("temporal", "activity_duration_seconds"),
		metric.WithDescription("Activity execution time"),
		metric.WithExplicitBucketBoundaries(metrics.ActivityDurationBuckets...),
	)
	if err != nil {
		log.Error("Failed to create activity duration histogram", "error", err, "component", "temporal_metrics")
		return err
	}
	return nil
}

func initWorkerMetrics(ctx context.Context, meter metric.Meter) error {
	var err error
	workersRunning, err = meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("temporal", "workers_running_total"),
		metric.WithDescription("Currently running workers"),
	)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create workers running counter",
			"error", err, "component", "temporal_metrics")
		return err
	}
	return nil
}

func initMetrics(ctx context.Context, meter metric.Meter) {
	if meter == nil {
		return
	}
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	initOnce.Do(func() {
		if err := initWorkflowMetrics(ctx, meter); err != nil {
			return
		}
		if err := initActivityMetrics(ctx, meter); err != nil {
			return
		}
		if err := initWorkerMetrics(ctx, meter); err != nil {
			return
		}
	})
}

// TemporalMetrics creates a worker interceptor recording workflow and activity metrics.
func TemporalMetrics(ctx context.Context, meter metric.Meter) interceptor.WorkerInterceptor {
	if meter == nil {
		logger.FromContext(ctx).Warn("TemporalMetrics called with nil meter, returning no-op interceptor")
		return &interceptor.WorkerInterceptorBase{}
	}
	initMetrics(ctx, meter)
	return &metricsInterceptor{
		baseCtx: context.WithoutCancel(ctx),
	}
}

type metricsInterceptor struct {
	interceptor.WorkerInterceptorBase
	baseCtx context.Context
}

func (m *metricsInterceptor) InterceptWorkflow(
	_ workflow.Context,
	next interceptor.WorkflowInboundInterceptor,
) interceptor.WorkflowInboundInterceptor {
	return &workflowInboundInterceptor{
		WorkflowInboundInterceptorBase: interceptor.WorkflowInboundInterceptorBase{Next: next},
		baseCtx:                        m.baseCtx,
	}
}

func (m *metricsInterceptor) InterceptActivity(
	_ context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityInboundInterceptor{
		ActivityInboundInterceptorBase: interceptor.ActivityInboundInterceptorBase{Next: next},
		baseCtx:                        m.baseCtx,
	}
}

type workflowInboundInterceptor struct {
	interceptor.WorkflowInboundInterceptorBase
	baseCtx context.Context
}

// workflowMetricSet groups the instrumentation required for workflow observations.
type workflowMetricSet struct {
	started   metric.Int64Counter
	duration  metric.Float64Histogram
	failed    metric.Int64Counter
	completed metric.Int64Counter
}

func collectWorkflowMetrics() (workflowMetricSet, bool) {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	if workflowStartedTotal == nil || workflowDuration == nil ||
		workflowFailedTotal == nil || workflowCompletedTotal == nil {
		return workflowMetricSet{}, false
	}
	return workflowMetricSet{
		started:   workflowStartedTotal,
		duration:  workflowDuration,
		failed:    workflowFailedTotal,
		completed: workflowCompletedTotal,
	}, true
}

func (w *workflowInboundInterceptor) ExecuteWorkflow(
	ctx workflow.Context,
	in *interceptor.ExecuteWorkflowInput,
) (any, error) {
	set, ok := collectWorkflowMetrics()
	if !ok || workflow.IsReplaying(ctx) {
		return w.Next.ExecuteWorkflow(ctx, in)
	}
	startTime := workflow.Now(ctx)
	workflowType := workflow.GetInfo(ctx).WorkflowType.Name
	typeAttr := attribute.String("workflow_type", workflowType)
	set.started.Add(w.baseCtx, 1, metric.WithAttributes(typeAttr))
	result, err := w.Next.ExecuteWorkflow(ctx, in)
	duration := workflow.Now(ctx).Sub(startTime).Seconds()
	label := classifyError(err)
	attrs := metric.WithAttributes(typeAttr, attribute.String("result", label))
	set.duration.Record(w.baseCtx, duration, attrs)
	if err != nil {
		set.failed.Add(w.baseCtx, 1, attrs)
		logger.FromContext(w.baseCtx).Debug("Workflow finished with error",
			"workflow_type", workflowType, "result", label, "error", err)
		return result, err
	}
	set.completed.Add(w.baseCtx, 1, metric.WithAttributes(typeAttr))
	return result, nil
}

type activityInboundInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	baseCtx context.Context
}

func (a *activityInboundInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (any, error) {
	metricsMutex.RLock()
	total, duration := activityTotal, activityDuration
	metricsMutex.RUnlock()
	if total == nil || duration == nil {
		return a.Next.ExecuteActivity(ctx, in)
	}
	start := time.Now()
	result, err := a.Next.ExecuteActivity(ctx, in)
	attrs := metric.WithAttributes(
		attribute.String("activity_type", activity.GetInfo(ctx).ActivityType.Name),
		attribute.String("result", classifyError(err)),
	)
	total.Add(a.baseCtx, 1, attrs)
	duration.Record(a.baseCtx, time.Since(start).Seconds(), attrs)
	return result, err
}

// classifyError maps execution errors to result labels.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "completed"
	case temporal.IsCanceledError(err) || errors.Is(err, workflow.ErrCanceled) || errors.Is(err, context.Canceled):
		return "canceled"
	case temporal.IsTimeoutError(err) || errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}

// IncrementRunningWorkers increments the running workers counter
func IncrementRunningWorkers(ctx context.Context) {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	if workersRunning != nil {
		workersRunning.Add(context.WithoutCancel(ctx), 1)
	}
}

// DecrementRunningWorkers decrements the running workers counter
func DecrementRunningWorkers(ctx context.Context) {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	if workersRunning != nil {
		workersRunning.Add(context.WithoutCancel(ctx), -1)
	}
}
