package server

import (
	"context"
	"net/http"
	"time"

	"github.com/compozy/tenantflow/engine/infra/server/appstate"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/compozy/tenantflow/pkg/version"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	statusHealthy      = "healthy"
	statusUnhealthy    = "unhealthy"
	healthCheckTimeout = 2 * time.Second
)

type checkResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func setupDiagnosticEndpoints(r *gin.Engine, prefixURL string, state *appstate.State) {
	health := CreateHealthHandler(state)
	r.GET("/health", health)
	r.GET(prefixURL+"/health", health)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"data":    gin.H{"status": "ok"},
			"message": "Success",
		})
	})
}

// CreateHealthHandler reports every registered dependency probe. Any failing
// probe turns the response into a 503.
func CreateHealthHandler(state *appstate.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := runHealthChecks(c.Request.Context(), state.HealthChecks())
		ready := true
		for _, res := range checks {
			if !res.Healthy {
				ready = false
			}
		}
		status := statusHealthy
		code := http.StatusOK
		if !ready {
			status = statusUnhealthy
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"data": gin.H{
				"status":  status,
				"ready":   ready,
				"checks":  checks,
				"version": version.Get().Version,
			},
			"message": "Success",
		})
	}
}

func runHealthChecks(ctx context.Context, checks []appstate.HealthCheck) map[string]checkResult {
	results := make([]checkResult, len(checks))
	g := new(errgroup.Group)
	for i, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			if err := check.Check(checkCtx); err != nil {
				logger.FromContext(ctx).Warn("Health check failed", "check", check.Name, "error", err)
				results[i] = checkResult{Error: err.Error()}
				return nil
			}
			results[i] = checkResult{Healthy: true}
			return nil
		})
	}
	_ = g.Wait()
	out := make(map[string]checkResult, len(checks))
	for i, check := range checks {
		out[check.Name] = results[i]
	}
	return out
}
