package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/units"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	PipelineWorkflowName   = "PipelineWorkflow"
	TriggerAllWorkflowName = "TriggerAllWorkflow"

	upstreamFailedReason    = "upstream step failed"
	pipelineCancelledReason = "pipeline cancelled"
	revokeTimeout           = time.Minute
)

type PipelineInput struct {
	Tenant           string        `json:"tenant"`
	Plan             plan.Plan     `json:"plan"`
	ActivityTimeout  time.Duration `json:"activity_timeout"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`
}

type PipelineOutput struct {
	Tenant    string    `json:"tenant"`
	Completed []core.ID `json:"completed"`
	Revoked   int       `json:"revoked"`
}

// pipeline interprets a plan inside one workflow execution.
type pipeline struct {
	tenant    string
	completed map[core.ID]bool
	order     []core.ID
}

// PipelineWorkflow runs a tenant's plan. Parallel groups wait for every child
// and sequences stop at the first failure. Tasks the run did not complete
// are revoked before the workflow returns so the tenant is never left with
// stranded PENDING work.
func PipelineWorkflow(ctx workflow.Context, input PipelineInput) (*PipelineOutput, error) {
	log := workflow.GetLogger(ctx)
	if err := input.Plan.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidPlan", err)
	}
	ctx = workflow.WithActivityOptions(ctx, runTaskOptions(input))
	p := &pipeline{tenant: input.Tenant, completed: make(map[core.ID]bool)}
	log.Info("Pipeline started", "tenant", input.Tenant, "tasks", len(input.Plan.Leaves()))
	_, runErr := p.run(ctx, input.Plan, nil)
	out := &PipelineOutput{Tenant: input.Tenant, Completed: p.order}
	if runErr == nil {
		log.Info("Pipeline completed", "tenant", input.Tenant)
		return out, nil
	}
	reason := upstreamFailedReason
	revokeCtx := ctx
	if errors.Is(ctx.Err(), workflow.ErrCanceled) || temporal.IsCanceledError(runErr) {
		reason = pipelineCancelledReason
		revokeCtx, _ = workflow.NewDisconnectedContext(ctx)
	}
	pending := p.unfinished(input.Plan)
	if len(pending) > 0 {
		revokeCtx = workflow.WithActivityOptions(revokeCtx, workflow.ActivityOptions{
			StartToCloseTimeout: revokeTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
		})
		err := workflow.ExecuteActivity(revokeCtx, RevokeTasksActivity, &RevokeTasksInput{
			TaskIDs: pending,
			Reason:  reason,
		}).Get(revokeCtx, &out.Revoked)
		if err != nil {
			log.Error("Failed to revoke unfinished tasks", "tenant", input.Tenant, "error", err)
		}
	}
	log.Warn("Pipeline stopped", "tenant", input.Tenant, "reason", reason, "error", runErr)
	return out, runErr
}

func runTaskOptions(input PipelineInput) workflow.ActivityOptions {
	timeout := input.ActivityTimeout
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	heartbeat := input.HeartbeatTimeout
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatTimeout
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    heartbeat,
		WaitForCancellation: true,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

func (p *pipeline) run(ctx workflow.Context, pl plan.Plan, prev *units.Result) (*units.Result, error) {
	switch pl.Kind {
	case plan.KindLeaf:
		return p.runLeaf(ctx, *pl.Call, prev)
	case plan.KindParallel:
		return p.runParallel(ctx, pl.Children, prev)
	case plan.KindSequence:
		return p.runSequence(ctx, pl.Children, prev)
	case plan.KindEmpty, "":
		return prev, nil
	}
	return nil, fmt.Errorf("unknown plan kind %q", pl.Kind)
}

func (p *pipeline) runLeaf(ctx workflow.Context, call plan.Call, prev *units.Result) (*units.Result, error) {
	var res units.Result
	err := workflow.ExecuteActivity(ctx, RunTaskActivity, &RunTaskInput{
		Tenant:   p.tenant,
		Call:     call,
		Previous: prev,
	}).Get(ctx, &res)
	if err != nil {
		return nil, err
	}
	p.completed[call.TaskID] = true
	p.order = append(p.order, call.TaskID)
	return &res, nil
}

// runParallel resolves once every child has, even when some fail.
func (p *pipeline) runParallel(ctx workflow.Context, children []plan.Plan, prev *units.Result) (*units.Result, error) {
	results := make([]*units.Result, len(children))
	errs := make([]error, len(children))
	wg := workflow.NewWaitGroup(ctx)
	for i, child := range children {
		wg.Add(1)
		workflow.Go(ctx, func(gctx workflow.Context) {
			defer wg.Done()
			results[i], errs[i] = p.run(gctx, child, prev)
		})
	}
	wg.Wait(ctx)
	if err := errors.Join(errs...); err != nil {
		if canceled := firstCanceled(errs); canceled != nil {
			return nil, canceled
		}
		return nil, err
	}
	merged := &units.Result{}
	for _, r := range results {
		if r != nil {
			merged.Processed += r.Processed
		}
	}
	return merged, nil
}

func (p *pipeline) runSequence(ctx workflow.Context, children []plan.Plan, prev *units.Result) (*units.Result, error) {
	for _, child := range children {
		res, err := p.run(ctx, child, prev)
		if err != nil {
			return nil, err
		}
		prev = res
	}
	return prev, nil
}

func (p *pipeline) unfinished(pl plan.Plan) []core.ID {
	var ids []core.ID
	for _, call := range pl.Leaves() {
		if !p.completed[call.TaskID] {
			ids = append(ids, call.TaskID)
		}
	}
	return ids
}

func firstCanceled(errs []error) error {
	for _, err := range errs {
		if err != nil && temporal.IsCanceledError(err) {
			return err
		}
	}
	return nil
}
