package appstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loader(context.Context) (*tenant.Registry, error) {
	return tenant.NewRegistry(tenant.DefaultAdmin, "v1"), nil
}

func TestNewState(t *testing.T) {
	t.Run("Should require a repository and a tenant loader", func(t *testing.T) {
		_, err := NewState(BaseDeps{Tenants: loader})
		assert.ErrorContains(t, err, "task repository is required")
		_, err = NewState(BaseDeps{Repo: &task.MockRepository{}})
		assert.ErrorContains(t, err, "tenant loader is required")
	})
	t.Run("Should default the progress service", func(t *testing.T) {
		state, err := NewState(BaseDeps{Repo: &task.MockRepository{}, Tenants: loader})
		require.NoError(t, err)
		assert.NotNil(t, state.Progress)
		assert.Nil(t, state.Orchestrator)
	})
}

func TestStateMiddleware(t *testing.T) {
	t.Run("Should expose the state on the request context", func(t *testing.T) {
		state, err := NewState(BaseDeps{Repo: &task.MockRepository{}, Tenants: loader})
		require.NoError(t, err)
		state.AddHealthCheck("db", func(context.Context) error { return nil })
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(StateMiddleware(state))
		var got *State
		r.GET("/", func(c *gin.Context) {
			got, err = GetState(c.Request.Context())
			c.Status(http.StatusNoContent)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		require.NoError(t, err)
		assert.Same(t, state, got)
		assert.Len(t, got.HealthChecks(), 1)
	})
	t.Run("Should fail without state", func(t *testing.T) {
		_, err := GetState(context.Background())
		assert.Error(t, err)
	})
}
