package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gosimple/slug"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

const workflowIDPrefix = "pipeline-"

// ErrNoPipeline is returned by Cancel when the tenant has no running pipeline.
var ErrNoPipeline = errors.New("no running pipeline for tenant")

// WorkflowID is stable per tenant, so Temporal rejects a second concurrent
// pipeline for the same tenant.
func WorkflowID(tenant string) string {
	return workflowIDPrefix + slug.Make(tenant)
}

// Backend submits plans to Temporal and reads live progress back.
type Backend struct {
	client           client.Client
	taskQueue        string
	activityTimeout  time.Duration
	heartbeatTimeout time.Duration
}

func NewBackend(c client.Client, cfg *TemporalConfig) *Backend {
	return &Backend{
		client:           c,
		taskQueue:        cfg.TaskQueue,
		activityTimeout:  cfg.ActivityTimeout,
		heartbeatTimeout: cfg.HeartbeatTimeout,
	}
}

func (b *Backend) Submit(ctx context.Context, req plan.SubmitRequest) (plan.Handle, error) {
	if err := req.Plan.Validate(); err != nil {
		return plan.Handle{}, fmt.Errorf("invalid plan for tenant %s: %w", req.Tenant, err)
	}
	options := client.StartWorkflowOptions{
		ID:                                       WorkflowID(req.Tenant),
		TaskQueue:                                b.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := b.client.ExecuteWorkflow(ctx, options, PipelineWorkflowName, PipelineInput{
		Tenant:           req.Tenant,
		Plan:             req.Plan,
		ActivityTimeout:  b.activityTimeout,
		HeartbeatTimeout: b.heartbeatTimeout,
	})
	if err != nil {
		return plan.Handle{}, fmt.Errorf("failed to start pipeline for tenant %s: %w", req.Tenant, err)
	}
	logger.FromContext(ctx).Debug("Pipeline submitted",
		"tenant", req.Tenant, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return plan.Handle{ID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Cancel requests cancellation of the tenant's running pipeline. Running
// tasks revoke themselves and pending ones are revoked by the workflow.
func (b *Backend) Cancel(ctx context.Context, tenant string) error {
	err := b.client.CancelWorkflow(ctx, WorkflowID(tenant), "")
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNoPipeline, tenant)
	}
	if err != nil {
		return fmt.Errorf("failed to cancel pipeline for tenant %s: %w", tenant, err)
	}
	return nil
}

// Lookup reads the last heartbeat of the activity behind ref. ok is false when
// the execution is gone or the activity is no longer pending.
func (b *Backend) Lookup(ctx context.Context, ref string) (*progress.Snapshot, bool, error) {
	workflowID, runID, activityID, ok := ParseExternalRef(ref)
	if !ok {
		return nil, false, nil
	}
	resp, err := b.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to describe workflow %s: %w", workflowID, err)
	}
	for _, pa := range resp.GetPendingActivities() {
		if pa.GetActivityId() != activityID {
			continue
		}
		details := pa.GetHeartbeatDetails()
		if details == nil || len(details.GetPayloads()) == 0 {
			return nil, false, nil
		}
		var hb Heartbeat
		if err := converter.GetDefaultDataConverter().FromPayloads(details, &hb); err != nil {
			return nil, false, fmt.Errorf("failed to decode heartbeat for %s: %w", ref, err)
		}
		return &progress.Snapshot{Current: hb.Current, Total: hb.Total}, true, nil
	}
	return nil, false, nil
}
