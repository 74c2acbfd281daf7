package monitoring

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/interceptor"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return logger.ContextWithLogger(t.Context(), logger.NewForTests())
}

func scrape(t *testing.T, service *Service) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	service.ExporterHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return w.Code, string(body)
}

func TestNewMonitoringService(t *testing.T) {
	t.Run("Should create a disabled service with default config when nil provided", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), nil)
		require.NoError(t, err)
		assert.False(t, service.IsInitialized())
		assert.Equal(t, "/metrics", service.Path())
		assert.NotNil(t, service.Meter())
	})
	t.Run("Should fail with invalid config", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), &Config{Enabled: true, Path: ""})
		require.Error(t, err)
		assert.Nil(t, service)
		assert.Contains(t, err.Error(), "monitoring path cannot be empty")
	})
	t.Run("Should initialize with Prometheus exporter when enabled", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		assert.True(t, service.IsInitialized())
		assert.NotNil(t, service.exporter)
		assert.NotNil(t, service.provider)
		assert.Implements(t, (*metric.Meter)(nil), service.Meter())
		assert.NoError(t, service.Shutdown(context.Background()))
	})
}

func TestMonitoringService_ExporterHandler(t *testing.T) {
	t.Run("Should return 503 when not initialized", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), DefaultConfig())
		require.NoError(t, err)
		code, body := scrape(t, service)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body, "Monitoring service not initialized")
	})
	t.Run("Should expose instruments created from the service meter", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		counter, err := service.Meter().Int64Counter("tenantflow_trigger_outcomes_total")
		require.NoError(t, err)
		counter.Add(t.Context(), 3)
		code, body := scrape(t, service)
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "tenantflow_trigger_outcomes_total")
		assert.Contains(t, body, "go_goroutines")
	})
}

func TestMonitoringService_GinMiddleware(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		t.Run("Should pass requests through the middleware", func(t *testing.T) {
			service, err := NewMonitoringService(testContext(t), &Config{Enabled: enabled, Path: "/metrics"})
			require.NoError(t, err)
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(service.GinMiddleware())
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestMonitoringService_TemporalInterceptor(t *testing.T) {
	t.Run("Should return a base interceptor when disabled", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), DefaultConfig())
		require.NoError(t, err)
		_, ok := service.TemporalInterceptor(t.Context()).(*interceptor.WorkerInterceptorBase)
		assert.True(t, ok)
	})
	t.Run("Should return the metrics interceptor when enabled", func(t *testing.T) {
		service, err := NewMonitoringService(testContext(t), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		_, ok := service.TemporalInterceptor(t.Context()).(*interceptor.WorkerInterceptorBase)
		assert.False(t, ok)
	})
}

func TestNewMonitoringServiceWithFallback(t *testing.T) {
	t.Run("Should return degraded service when config is invalid", func(t *testing.T) {
		service := NewMonitoringServiceWithFallback(testContext(t), &Config{Enabled: true, Path: "invalid-path"})
		assert.False(t, service.IsInitialized())
		assert.Error(t, service.InitializationError())
		assert.NotNil(t, service.Meter())
	})
	t.Run("Should handle nil config gracefully", func(t *testing.T) {
		service := NewMonitoringServiceWithFallback(testContext(t), nil)
		assert.False(t, service.IsInitialized())
		assert.NoError(t, service.InitializationError())
	})
}
