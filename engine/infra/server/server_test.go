package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/tenantflow/engine/infra/cache"
	"github.com/compozy/tenantflow/engine/infra/pubsub"
	"github.com/compozy/tenantflow/engine/infra/server/appstate"
	"github.com/compozy/tenantflow/engine/infra/server/router"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/compozy/tenantflow/engine/worker"
	"github.com/compozy/tenantflow/engine/workflow"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/compozy/tenantflow/test/helpers"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCanceller struct {
	mock.Mock
}

func (m *mockCanceller) Cancel(ctx context.Context, tenant string) error {
	return m.Called(ctx, tenant).Error(0)
}

type apiFixture struct {
	ctx    context.Context
	repo   task.Repository
	sub    *plan.MockSubmitter
	cancel *mockCanceller
	state  *appstate.State
	router *gin.Engine
}

func newAPIFixture(t *testing.T, withBackend bool) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := helpers.NewTestContext(t)
	repo := helpers.SetupTaskRepo(ctx, t)
	f := &apiFixture{ctx: ctx, repo: repo, sub: &plan.MockSubmitter{}, cancel: &mockCanceller{}}
	deps := appstate.BaseDeps{
		Repo:     repo,
		Progress: progress.NewService(repo, nil),
		Tenants: func(context.Context) (*tenant.Registry, error) {
			return tenant.NewRegistry(tenant.DefaultAdmin, tenant.DefaultAdmin, "v1", "v2"), nil
		},
	}
	if withBackend {
		s := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		events, err := pubsub.NewRedisProvider(client)
		require.NoError(t, err)
		orch, err := trigger.NewOrchestrator(trigger.Options{
			Events:    events,
			Repo:      repo,
			Units:     units.Default(10),
			Submitter: f.sub,
			Locker:    cache.NewRedisLocker(client),
			Definition: workflow.Definition{Steps: []workflow.StepSpec{
				{Name: "import", Type: task.TypeImport, Parallel: true, Count: 2, Total: 100},
				{Name: "export", Type: task.TypeExport, Count: 1, Total: 100},
			}},
		})
		require.NoError(t, err)
		deps.Orchestrator = orch
		deps.Pipelines = f.cancel
		deps.Events = events
	}
	state, err := appstate.NewState(deps)
	require.NoError(t, err)
	f.state = state
	f.router = NewRouter(logger.NewForTests(), state, nil)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string) (int, router.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
	var resp router.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decodeData[T any](t *testing.T, resp router.Response) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestTenantRoutes(t *testing.T) {
	t.Run("Should list eligible tenants and the admin tenant", func(t *testing.T) {
		f := newAPIFixture(t, false)
		code, resp := f.do(t, http.MethodGet, "/api/v0/tenants")
		assert.Equal(t, http.StatusOK, code)
		data := decodeData[struct {
			Tenants []string `json:"tenants"`
			Admin   string   `json:"admin"`
		}](t, resp)
		assert.Equal(t, []string{"v1", "v2"}, data.Tenants)
		assert.Equal(t, tenant.DefaultAdmin, data.Admin)
	})
	t.Run("Should answer 404 for unknown and reserved tenants", func(t *testing.T) {
		f := newAPIFixture(t, false)
		for _, name := range []string{"v9", tenant.DefaultAdmin} {
			code, resp := f.do(t, http.MethodGet, "/api/v0/tenants/"+name+"/progress")
			assert.Equal(t, http.StatusNotFound, code, name)
			require.NotNil(t, resp.Error)
			assert.Equal(t, router.ErrNotFoundCode, resp.Error.Code)
		}
	})
}

func TestTriggerRoutes(t *testing.T) {
	t.Run("Should start a tenant pipeline and report its progress", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.sub.On("Submit", mock.Anything, mock.Anything).Return(plan.Handle{ID: "pipeline-v1", RunID: "run"}, nil).Once()

		code, resp := f.do(t, http.MethodPost, "/api/v0/tenants/v1/trigger")
		require.Equal(t, http.StatusAccepted, code)
		res := decodeData[trigger.Result](t, resp)
		assert.Equal(t, trigger.OutcomeStarted, res.Outcome)
		assert.Equal(t, "pipeline-v1", res.Handle.ID)

		code, resp = f.do(t, http.MethodGet, "/api/v0/tenants/v1/progress")
		require.Equal(t, http.StatusOK, code)
		p := decodeData[struct {
			Progress progress.Progress `json:"progress"`
		}](t, resp).Progress
		assert.Equal(t, int64(300), p.Total)
		assert.Zero(t, p.Percent)
		assert.True(t, p.IsPending)
		assert.False(t, p.IsComplete)

		code, resp = f.do(t, http.MethodGet, "/api/v0/tenants/v1/tasks?status=active&type=IMPORT")
		require.Equal(t, http.StatusOK, code)
		tasks := decodeData[struct {
			Tasks []progress.TaskView `json:"tasks"`
		}](t, resp).Tasks
		assert.Len(t, tasks, 2)
		for _, v := range tasks {
			assert.Equal(t, progress.SourceRecord, v.Source)
		}
		f.sub.AssertExpectations(t)
	})
	t.Run("Should skip a tenant that already has active tasks", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.sub.On("Submit", mock.Anything, mock.Anything).Return(plan.Handle{ID: "pipeline-v1"}, nil).Once()
		code, _ := f.do(t, http.MethodPost, "/api/v0/tenants/v1/trigger")
		require.Equal(t, http.StatusAccepted, code)

		code, resp := f.do(t, http.MethodPost, "/api/v0/tenants/v1/trigger")
		assert.Equal(t, http.StatusOK, code)
		res := decodeData[trigger.Result](t, resp)
		assert.Equal(t, trigger.OutcomeSkipped, res.Outcome)
		assert.Equal(t, trigger.ReasonTriggered, res.Reason)
		f.sub.AssertNumberOfCalls(t, "Submit", 1)
	})
	t.Run("Should report a failed submit and leave no active tasks", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.sub.On("Submit", mock.Anything, mock.Anything).Return(plan.Handle{}, errors.New("temporal down")).Once()
		code, resp := f.do(t, http.MethodPost, "/api/v0/tenants/v2/trigger")
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Contains(t, resp.Error.Details, "temporal down")
		active, err := f.repo.Exists(f.ctx, &task.Filter{Tenant: "v2", Statuses: task.ActiveStatuses()})
		require.NoError(t, err)
		assert.False(t, active)
	})
	t.Run("Should trigger every tenant and aggregate overall progress", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.sub.On("Submit", mock.Anything, mock.Anything).Return(plan.Handle{ID: "pipeline"}, nil).Twice()
		code, resp := f.do(t, http.MethodPost, "/api/v0/trigger")
		require.Equal(t, http.StatusAccepted, code)
		results := decodeData[struct {
			Results []trigger.Result `json:"results"`
		}](t, resp).Results
		require.Len(t, results, 2)

		code, resp = f.do(t, http.MethodGet, "/api/v0/progress")
		require.Equal(t, http.StatusOK, code)
		overview := decodeData[progress.Overview](t, resp)
		assert.Equal(t, int64(600), overview.Overall.Total)
		assert.Len(t, overview.Tenants, 2)
	})
	t.Run("Should answer 503 without an execution backend", func(t *testing.T) {
		f := newAPIFixture(t, false)
		for _, path := range []string{"/api/v0/trigger", "/api/v0/tenants/v1/trigger", "/api/v0/tenants/v1/revoke"} {
			code, resp := f.do(t, http.MethodPost, path)
			assert.Equal(t, http.StatusServiceUnavailable, code, path)
			assert.Equal(t, router.ErrServiceUnavailableCode, resp.Error.Code)
		}
	})
	t.Run("Should reject an invalid task query", func(t *testing.T) {
		f := newAPIFixture(t, false)
		for _, query := range []string{"status=stuck", "type=BOGUS", "limit=0", "limit=x"} {
			code, _ := f.do(t, http.MethodGet, "/api/v0/tenants/v1/tasks?"+query)
			assert.Equal(t, http.StatusBadRequest, code, query)
		}
	})
}

func TestRevokeRoute(t *testing.T) {
	t.Run("Should request cancellation of the running pipeline", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.cancel.On("Cancel", mock.Anything, "v1").Return(nil).Once()
		code, _ := f.do(t, http.MethodPost, "/api/v0/tenants/v1/revoke")
		assert.Equal(t, http.StatusAccepted, code)
		f.cancel.AssertExpectations(t)
	})
	t.Run("Should answer 404 when nothing is running", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.cancel.On("Cancel", mock.Anything, "v2").Return(fmt.Errorf("%w: v2", worker.ErrNoPipeline)).Once()
		code, resp := f.do(t, http.MethodPost, "/api/v0/tenants/v2/revoke")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, resp.Error.Message, "no running pipeline")
	})
}

func TestHealthRoute(t *testing.T) {
	t.Run("Should report healthy dependencies", func(t *testing.T) {
		f := newAPIFixture(t, false)
		f.state.AddHealthCheck("database", func(context.Context) error { return nil })
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})
	t.Run("Should answer 503 when a dependency fails", func(t *testing.T) {
		f := newAPIFixture(t, false)
		f.state.AddHealthCheck("database", func(context.Context) error { return nil })
		f.state.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v0/health", http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body struct {
			Data struct {
				Status string                 `json:"status"`
				Checks map[string]checkResult `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, statusUnhealthy, body.Data.Status)
		assert.True(t, body.Data.Checks["database"].Healthy)
		assert.Equal(t, "connection refused", body.Data.Checks["redis"].Error)
	})
}
