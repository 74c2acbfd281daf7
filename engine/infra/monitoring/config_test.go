package monitoring

import (
	"testing"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept the default path", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})
	t.Run("Should reject bad paths", func(t *testing.T) {
		for path, msg := range map[string]string{
			"":             "cannot be empty",
			"metrics":      "must start with '/'",
			"/api/metrics": "cannot be under /api/",
			"/metrics?x=1": "cannot contain query parameters",
		} {
			err := (&Config{Enabled: true, Path: path}).Validate()
			assert.ErrorContains(t, err, msg, path)
		}
	})
}

func TestFromAppConfig(t *testing.T) {
	t.Run("Should map the monitoring section", func(t *testing.T) {
		cfg := FromAppConfig(&config.MonitoringConfig{Enabled: true, Path: "/prom"})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "/prom", cfg.Path)
	})
	t.Run("Should keep the default path when unset", func(t *testing.T) {
		cfg := FromAppConfig(&config.MonitoringConfig{Enabled: true})
		assert.Equal(t, "/metrics", cfg.Path)
		assert.False(t, FromAppConfig(nil).Enabled)
	})
}
