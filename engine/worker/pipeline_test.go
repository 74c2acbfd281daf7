package worker

import (
	"context"
	"testing"
	"time"

	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/test/helpers"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

type PipelineWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env  *testsuite.TestWorkflowEnvironment
	ctx  context.Context
	repo task.Repository
	rec  *recorder
}

func TestPipelineWorkflow(t *testing.T) {
	suite.Run(t, new(PipelineWorkflowTestSuite))
}

func (s *PipelineWorkflowTestSuite) SetupTest() {
	s.ctx = helpers.NewTestContext(s.T())
	s.repo = helpers.SetupTaskRepo(s.ctx, s.T())
	s.rec = newRecorder()
	s.env = s.NewTestWorkflowEnvironment()
	s.env.SetTestTimeout(30 * time.Second)
	s.env.SetWorkerOptions(worker.Options{BackgroundActivityContext: s.ctx})
	s.env.RegisterWorkflowWithOptions(PipelineWorkflow, workflow.RegisterOptions{Name: PipelineWorkflowName})
	s.env.RegisterActivity(NewActivities(s.repo, newTestUnits(s.T(), s.rec), nil, nil))
}

func (s *PipelineWorkflowTestSuite) seed(name string, typ task.Type) *task.Task {
	return seedTask(s.ctx, s.T(), s.repo, name, typ)
}

func (s *PipelineWorkflowTestSuite) execute(p plan.Plan) (*PipelineOutput, error) {
	s.env.ExecuteWorkflow(PipelineWorkflowName, PipelineInput{Tenant: "acme", Plan: p})
	s.Require().True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	var out PipelineOutput
	if err == nil {
		s.Require().NoError(s.env.GetWorkflowResult(&out))
	}
	return &out, err
}

func (s *PipelineWorkflowTestSuite) TestStepsRunInOrder() {
	var imports, updates, exports []*task.Task
	for _, n := range []string{"import-1", "import-2", "import-3"} {
		imports = append(imports, s.seed(n, task.TypeImport))
	}
	for _, n := range []string{"update-1", "update-2", "update-3"} {
		updates = append(updates, s.seed(n, task.TypeUpdate))
	}
	for _, n := range []string{"export-1", "export-2", "export-3"} {
		exports = append(exports, s.seed(n, task.TypeExport))
	}
	p := plan.Sequence(
		plan.Parallel(leafFor(imports[0]), leafFor(imports[1]), leafFor(imports[2])),
		plan.Sequence(leafFor(updates[0]), leafFor(updates[1]), leafFor(updates[2])),
		plan.Parallel(leafFor(exports[0]), leafFor(exports[1]), leafFor(exports[2])),
	)
	out, err := s.execute(p)
	s.Require().NoError(err)
	s.Len(out.Completed, 9)
	events := s.rec.snapshot()
	s.Less(lastIndex(events, "end:import-"), firstIndex(events, "start:update-"))
	s.Less(lastIndex(events, "end:update-"), firstIndex(events, "start:export-"))
	s.Less(firstIndex(events, "end:update-1"), firstIndex(events, "start:update-2"))
	s.Less(firstIndex(events, "end:update-2"), firstIndex(events, "start:update-3"))
	for _, tk := range append(append(imports, updates...), exports...) {
		got := requireStatus(s.ctx, s.T(), s.repo, tk.ID, task.StatusCompleted)
		s.Equal(got.Total, got.Current)
		_, _, activityID, ok := ParseExternalRef(got.Ref())
		s.True(ok)
		s.NotEmpty(activityID)
	}
}

func (s *PipelineWorkflowTestSuite) TestSequenceThreadsPreviousResult() {
	first := s.seed("update-1", task.TypeUpdate)
	second := s.seed("update-2", task.TypeUpdate)
	_, err := s.execute(plan.Sequence(leafFor(first), leafFor(second)))
	s.Require().NoError(err)
	s.True(s.rec.previousOf("update-1").IsZero())
	s.Equal(first.ID, s.rec.previousOf("update-2"))
}

func (s *PipelineWorkflowTestSuite) TestFailureAbortsSequence() {
	done := s.seed("import-1", task.TypeImport)
	broken := s.seed("process-1", task.TypeProcess)
	skipped := s.seed("update-1", task.TypeUpdate)
	later := s.seed("export-1", task.TypeExport)
	p := plan.Sequence(
		leafFor(done),
		plan.Sequence(leafFor(broken), leafFor(skipped)),
		leafFor(later),
	)
	_, err := s.execute(p)
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().ErrorAs(err, &appErr)
	requireStatus(s.ctx, s.T(), s.repo, done.ID, task.StatusCompleted)
	failed := requireStatus(s.ctx, s.T(), s.repo, broken.ID, task.StatusFailed)
	s.Equal(int64(50), failed.Current)
	s.Contains(failed.ErrorText(), errUnitBroke.Error())
	for _, id := range []*task.Task{skipped, later} {
		revoked := requireStatus(s.ctx, s.T(), s.repo, id.ID, task.StatusRevoked)
		s.Equal(upstreamFailedReason, revoked.ErrorText())
	}
	s.Equal(-1, firstIndex(s.rec.snapshot(), "start:update-1"))
}

func (s *PipelineWorkflowTestSuite) TestParallelWaitsForSiblings() {
	broken := s.seed("process-1", task.TypeProcess)
	ok1 := s.seed("import-1", task.TypeImport)
	ok2 := s.seed("import-2", task.TypeImport)
	next := s.seed("update-1", task.TypeUpdate)
	p := plan.Sequence(
		plan.Parallel(leafFor(broken), leafFor(ok1), leafFor(ok2)),
		leafFor(next),
	)
	_, err := s.execute(p)
	s.Require().Error(err)
	requireStatus(s.ctx, s.T(), s.repo, broken.ID, task.StatusFailed)
	requireStatus(s.ctx, s.T(), s.repo, ok1.ID, task.StatusCompleted)
	requireStatus(s.ctx, s.T(), s.repo, ok2.ID, task.StatusCompleted)
	requireStatus(s.ctx, s.T(), s.repo, next.ID, task.StatusRevoked)
}

func (s *PipelineWorkflowTestSuite) TestTerminalTaskIsNotRerun() {
	tk := s.seed("import-1", task.TypeImport)
	s.Require().NoError(tk.Start("manual"))
	s.Require().NoError(s.repo.UpdateStatus(s.ctx, tk, task.StatusPending))
	s.Require().NoError(tk.Complete())
	s.Require().NoError(s.repo.UpdateStatus(s.ctx, tk, task.StatusRunning))
	_, err := s.execute(leafFor(tk))
	s.Require().Error(err)
	requireStatus(s.ctx, s.T(), s.repo, tk.ID, task.StatusCompleted)
	s.Empty(s.rec.snapshot())
}

func (s *PipelineWorkflowTestSuite) TestCancelledRunRevokesRemainingTasks() {
	first := s.seed("import-1", task.TypeImport)
	second := s.seed("update-1", task.TypeUpdate)
	s.env.OnActivity(RunTaskActivity, mock.Anything, mock.Anything).
		Return(nil, temporal.NewCanceledError()).Once()
	_, err := s.execute(plan.Sequence(leafFor(first), leafFor(second)))
	s.Require().Error(err)
	for _, tk := range []*task.Task{first, second} {
		revoked := requireStatus(s.ctx, s.T(), s.repo, tk.ID, task.StatusRevoked)
		s.Equal(pipelineCancelledReason, revoked.ErrorText())
	}
}

func (s *PipelineWorkflowTestSuite) TestEmptyPlan() {
	out, err := s.execute(plan.Empty())
	s.Require().NoError(err)
	s.Empty(out.Completed)
	s.Zero(out.Revoked)
}

func (s *PipelineWorkflowTestSuite) TestInvalidPlan() {
	_, err := s.execute(plan.Plan{Kind: plan.KindLeaf})
	s.Require().Error(err)
	s.Contains(err.Error(), "leaf plan without call")
}
