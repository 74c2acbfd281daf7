package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBase(t *testing.T) {
	t.Run("Should return versioned API base path", func(t *testing.T) {
		assert.Equal(t, "/api/"+Version(), Base())
		assert.Contains(t, Base(), "/api/v")
	})
}

func TestResourceRoutes(t *testing.T) {
	t.Run("Should compose resource paths under the base path", func(t *testing.T) {
		assert.Equal(t, "/api/v0/tenants", Tenants())
		assert.Equal(t, "/api/v0/progress", Progress())
		assert.Equal(t, "/api/v0/trigger", Trigger())
		assert.Equal(t, "/api/v0/health", HealthVersioned())
		assert.Equal(t, "/api/v0/events", Events())
	})
}
