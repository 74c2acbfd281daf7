package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/infra/cache"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/engine/workflow"
	"github.com/compozy/tenantflow/test/helpers"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestExternalRef(t *testing.T) {
	t.Run("Should round trip workflow, run and activity ids", func(t *testing.T) {
		ref := ExternalRef("pipeline-acme", "run-1", "7")
		wfID, runID, actID, ok := ParseExternalRef(ref)
		require.True(t, ok)
		assert.Equal(t, "pipeline-acme", wfID)
		assert.Equal(t, "run-1", runID)
		assert.Equal(t, "7", actID)
	})
	t.Run("Should reject refs that were not built by ExternalRef", func(t *testing.T) {
		for _, ref := range []string{"", "manual", "a/b", "/run/7", "a/b/c/d"} {
			_, _, _, ok := ParseExternalRef(ref)
			assert.False(t, ok, ref)
		}
	})
}

func TestActivities_RevokeTasks(t *testing.T) {
	t.Run("Should revoke active tasks and leave terminal ones alone", func(t *testing.T) {
		ctx := helpers.NewTestContext(t)
		repo := helpers.SetupTaskRepo(ctx, t)
		pending := seedTask(ctx, t, repo, "import-1", task.TypeImport)
		running := seedTask(ctx, t, repo, "import-2", task.TypeImport)
		require.NoError(t, running.Start("ref"))
		require.NoError(t, repo.UpdateStatus(ctx, running, task.StatusPending))
		done := seedTask(ctx, t, repo, "import-3", task.TypeImport)
		require.NoError(t, done.Start("ref"))
		require.NoError(t, repo.UpdateStatus(ctx, done, task.StatusPending))
		require.NoError(t, done.Complete())
		require.NoError(t, repo.UpdateStatus(ctx, done, task.StatusRunning))
		missing := core.MustNewID()

		acts := NewActivities(repo, units.Default(10), nil, nil)
		n, err := acts.RevokeTasks(ctx, &RevokeTasksInput{
			TaskIDs: []core.ID{pending.ID, running.ID, done.ID, missing},
			Reason:  upstreamFailedReason,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		for _, id := range []core.ID{pending.ID, running.ID} {
			got := requireStatus(ctx, t, repo, id, task.StatusRevoked)
			assert.Equal(t, upstreamFailedReason, got.ErrorText())
		}
		requireStatus(ctx, t, repo, done.ID, task.StatusCompleted)
	})
	t.Run("Should skip tasks that changed concurrently", func(t *testing.T) {
		ctx := helpers.NewTestContext(t)
		repo := &task.MockRepository{}
		tk, err := task.New("acme", "import-1", task.TypeImport, 10)
		require.NoError(t, err)
		repo.On("Get", mock.Anything, tk.ID).Return(tk, nil)
		repo.On("UpdateStatus", mock.Anything, mock.Anything, task.StatusPending).Return(task.ErrStaleTask)
		acts := NewActivities(repo, units.Default(10), nil, nil)
		n, err := acts.RevokeTasks(ctx, &RevokeTasksInput{TaskIDs: []core.ID{tk.ID}, Reason: "x"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
	t.Run("Should return repository errors", func(t *testing.T) {
		ctx := helpers.NewTestContext(t)
		repo := &task.MockRepository{}
		id := core.MustNewID()
		repo.On("Get", mock.Anything, id).Return(nil, errors.New("db down"))
		acts := NewActivities(repo, units.Default(10), nil, nil)
		_, err := acts.RevokeTasks(ctx, &RevokeTasksInput{TaskIDs: []core.ID{id}, Reason: "x"})
		require.ErrorContains(t, err, "db down")
	})
}

func TestActivities_TriggerAll(t *testing.T) {
	t.Run("Should fail when the worker has no orchestrator", func(t *testing.T) {
		acts := NewActivities(&task.MockRepository{}, units.Default(10), nil, nil)
		_, err := acts.TriggerAll(context.Background())
		require.ErrorContains(t, err, "not configured")
	})
	t.Run("Should run a trigger pass through the backend", func(t *testing.T) {
		ctx := helpers.NewTestContext(t)
		repo := helpers.SetupTaskRepo(ctx, t)
		s := miniredis.RunT(t)
		rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { _ = rc.Close() })

		temporalClient := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		run.On("GetID").Return(WorkflowID("v1"))
		run.On("GetRunID").Return("run-1")
		temporalClient.On("ExecuteWorkflow", mock.Anything,
			mock.MatchedBy(func(o client.StartWorkflowOptions) bool { return o.ID == WorkflowID("v1") }),
			PipelineWorkflowName, mock.Anything,
		).Return(run, nil).Once()

		backend := NewBackend(temporalClient, &TemporalConfig{TaskQueue: "tenantflow"})
		orch, err := trigger.NewOrchestrator(trigger.Options{
			Repo:      repo,
			Units:     units.Default(10),
			Submitter: backend,
			Locker:    cache.NewRedisLocker(rc),
			Definition: workflow.Definition{Steps: []workflow.StepSpec{
				{Name: "import", Type: task.TypeImport, Parallel: true, Count: 2, Total: 100},
			}},
		})
		require.NoError(t, err)
		loader := func(context.Context) (*tenant.Registry, error) {
			return tenant.NewRegistry(tenant.DefaultAdmin, tenant.DefaultAdmin, "v1"), nil
		}
		acts := NewActivities(repo, units.Default(10), orch, loader)
		results, err := acts.TriggerAll(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, trigger.OutcomeStarted, results[0].Outcome)
		assert.Equal(t, WorkflowID("v1"), results[0].Handle.ID)
		temporalClient.AssertExpectations(t)
	})
	t.Run("Should surface tenant loading errors", func(t *testing.T) {
		orch := &trigger.Orchestrator{}
		loader := func(context.Context) (*tenant.Registry, error) {
			return nil, errors.New("no tenant dir")
		}
		acts := NewActivities(&task.MockRepository{}, units.Default(10), orch, loader)
		_, err := acts.TriggerAll(context.Background())
		require.ErrorContains(t, err, "no tenant dir")
	})
}
