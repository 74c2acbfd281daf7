package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/compozy/tenantflow/engine/infra/server/appstate"
	"github.com/compozy/tenantflow/engine/infra/server/router"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/engine/worker"
	"github.com/gin-gonic/gin"
)

const maxTaskLimit = 1000

type taskQuery struct {
	Status string `form:"status"`
	Type   string `form:"type"`
	Limit  string `form:"limit"`
}

func registerPipelineRoutes(api *gin.RouterGroup) {
	api.GET("/progress", getOverallProgress)
	api.POST("/trigger", triggerAll)
	tenants := api.Group("/tenants")
	tenants.GET("", listTenants)
	tenants.GET("/:tenant/progress", getTenantProgress)
	tenants.GET("/:tenant/tasks", listTenantTasks)
	tenants.POST("/:tenant/trigger", triggerTenant)
	tenants.POST("/:tenant/revoke", revokeTenant)
}

func loadState(c *gin.Context) (*appstate.State, bool) {
	state, err := appstate.GetState(c.Request.Context())
	if err != nil {
		router.RespondWithError(c, router.NewRequestError(
			http.StatusInternalServerError, router.ErrMsgAppStateNotInitialized, err,
		))
		return nil, false
	}
	return state, true
}

func loadRegistry(c *gin.Context, state *appstate.State) (*tenant.Registry, bool) {
	registry, err := state.Tenants(c.Request.Context())
	if err != nil {
		router.RespondWithError(c, router.NewRequestError(http.StatusInternalServerError, "failed to load tenants", err))
		return nil, false
	}
	return registry, true
}

// resolveTenant loads the registry and checks the :tenant path parameter
// names a pipeline tenant.
func resolveTenant(c *gin.Context) (*appstate.State, *tenant.Registry, string, bool) {
	state, ok := loadState(c)
	if !ok {
		return nil, nil, "", false
	}
	name := router.GetURLParam(c, "tenant")
	if name == "" {
		return nil, nil, "", false
	}
	registry, ok := loadRegistry(c, state)
	if !ok {
		return nil, nil, "", false
	}
	if err := registry.Validate(name); err != nil {
		router.RespondWithError(c, router.TenantError(http.StatusNotFound, name, "tenant not found", err))
		return nil, nil, "", false
	}
	return state, registry, name, true
}

// getOverallProgress handles GET /progress.
func getOverallProgress(c *gin.Context) {
	state, ok := loadState(c)
	if !ok {
		return
	}
	registry, ok := loadRegistry(c, state)
	if !ok {
		return
	}
	overview := state.Progress.All(c.Request.Context(), registry.Eligible())
	router.RespondOK(c, "progress retrieved", overview)
}

// listTenants handles GET /tenants.
func listTenants(c *gin.Context) {
	state, ok := loadState(c)
	if !ok {
		return
	}
	registry, ok := loadRegistry(c, state)
	if !ok {
		return
	}
	router.RespondOK(c, "tenants retrieved", gin.H{
		"tenants": registry.Eligible(),
		"admin":   registry.Admin(),
	})
}

// getTenantProgress handles GET /tenants/:tenant/progress.
func getTenantProgress(c *gin.Context) {
	state, _, name, ok := resolveTenant(c)
	if !ok {
		return
	}
	p, err := state.Progress.Tenant(c.Request.Context(), name)
	if err != nil {
		router.RespondWithError(c, router.TenantError(http.StatusInternalServerError, name, "failed to aggregate progress", err))
		return
	}
	router.RespondOK(c, "progress retrieved", gin.H{"tenant": name, "progress": p})
}

func parseTaskQuery(c *gin.Context, name string) (*task.Filter, error) {
	var q taskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, err
	}
	statuses, err := task.ParseSelector(q.Status)
	if err != nil {
		return nil, err
	}
	filter := &task.Filter{Tenant: name, Statuses: statuses, OrderBy: task.OrderByTriggered}
	if q.Type != "" {
		typ, err := task.ParseType(q.Type)
		if err != nil {
			return nil, err
		}
		filter.Types = []task.Type{typ}
	}
	if q.Limit != "" {
		limit, err := strconv.ParseUint(q.Limit, 10, 64)
		if err != nil || limit == 0 {
			return nil, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(limit, maxTaskLimit)
	}
	return filter, nil
}

// listTenantTasks handles GET /tenants/:tenant/tasks.
func listTenantTasks(c *gin.Context) {
	state, _, name, ok := resolveTenant(c)
	if !ok {
		return
	}
	filter, err := parseTaskQuery(c, name)
	if err != nil {
		router.RespondWithError(c, router.TenantError(http.StatusBadRequest, name, "invalid task query", err))
		return
	}
	views, err := state.Progress.Tasks(c.Request.Context(), filter)
	if err != nil {
		router.RespondWithError(c, router.TenantError(http.StatusInternalServerError, name, "failed to list tasks", err))
		return
	}
	router.RespondOK(c, "tasks retrieved", gin.H{"tenant": name, "tasks": views})
}

func requireOrchestrator(c *gin.Context, state *appstate.State) (*trigger.Orchestrator, bool) {
	if state.Orchestrator == nil {
		router.RespondWithError(c, router.NewRequestError(
			http.StatusServiceUnavailable, router.ErrMsgTriggerNotConfigured, nil,
		))
		return nil, false
	}
	return state.Orchestrator, true
}

// triggerAll handles POST /trigger.
func triggerAll(c *gin.Context) {
	state, ok := loadState(c)
	if !ok {
		return
	}
	orch, ok := requireOrchestrator(c, state)
	if !ok {
		return
	}
	registry, ok := loadRegistry(c, state)
	if !ok {
		return
	}
	results := orch.TriggerAll(c.Request.Context(), registry)
	router.RespondAccepted(c, "trigger pass finished", gin.H{"results": results})
}

// triggerTenant handles POST /tenants/:tenant/trigger.
func triggerTenant(c *gin.Context) {
	state, registry, name, ok := resolveTenant(c)
	if !ok {
		return
	}
	orch, ok := requireOrchestrator(c, state)
	if !ok {
		return
	}
	res := orch.Trigger(c.Request.Context(), registry, name)
	switch res.Outcome {
	case trigger.OutcomeFailed:
		router.RespondWithError(c, router.TenantError(http.StatusInternalServerError, name, "trigger failed", res.Err))
	case trigger.OutcomeSkipped:
		router.RespondOK(c, "trigger skipped", res)
	default:
		router.RespondAccepted(c, "pipeline started", res)
	}
}

// revokeTenant handles POST /tenants/:tenant/revoke.
func revokeTenant(c *gin.Context) {
	state, _, name, ok := resolveTenant(c)
	if !ok {
		return
	}
	if state.Pipelines == nil {
		router.RespondWithError(c, router.NewRequestError(
			http.StatusServiceUnavailable, router.ErrMsgTriggerNotConfigured, nil,
		))
		return
	}
	err := state.Pipelines.Cancel(c.Request.Context(), name)
	if errors.Is(err, worker.ErrNoPipeline) {
		router.RespondWithError(c, router.TenantError(http.StatusNotFound, name, "no running pipeline", err))
		return
	}
	if err != nil {
		router.RespondWithError(c, router.TenantError(http.StatusInternalServerError, name, "failed to cancel pipeline", err))
		return
	}
	router.RespondAccepted(c, "pipeline cancellation requested", gin.H{"tenant": name})
}
