package appstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/compozy/tenantflow/engine/infra/pubsub"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/tenant"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	stateKey contextKey = "app_state"
)

// TenantLoader resolves the tenant registry for one request.
type TenantLoader func(ctx context.Context) (*tenant.Registry, error)

// PipelineCanceller stops the running pipeline of a tenant.
type PipelineCanceller interface {
	Cancel(ctx context.Context, tenant string) error
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type BaseDeps struct {
	Repo     task.Repository
	Progress *progress.Service
	Tenants  TenantLoader
	// Orchestrator and Pipelines are nil when the server runs without an
	// execution backend. Trigger and revoke routes then answer 503.
	Orchestrator *trigger.Orchestrator
	Pipelines    PipelineCanceller
	// Events feeds the trigger event stream. Nil disables the stream.
	Events pubsub.Provider
}

type State struct {
	BaseDeps
	mu     sync.RWMutex
	checks []HealthCheck
}

func NewState(deps BaseDeps) (*State, error) {
	if deps.Repo == nil {
		return nil, errors.New("task repository is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("tenant loader is required")
	}
	if deps.Progress == nil {
		deps.Progress = progress.NewService(deps.Repo, nil)
	}
	return &State{BaseDeps: deps}, nil
}

// AddHealthCheck registers a dependency probe reported by the health endpoint.
func (s *State) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
}

func (s *State) HealthChecks() []HealthCheck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HealthCheck, len(s.checks))
	copy(out, s.checks)
	return out
}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

func GetState(ctx context.Context) (*State, error) {
	state, ok := ctx.Value(stateKey).(*State)
	if !ok {
		return nil, fmt.Errorf("app state not found in context")
	}
	return state, nil
}

func StateMiddleware(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithState(c.Request.Context(), state)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
