package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("Should prefix message with code", func(t *testing.T) {
		err := core.NewError(errors.New("total is required"), core.ErrCodeConfiguration, nil)
		assert.Equal(t, "CONFIGURATION_ERROR: total is required", err.Error())
	})
	t.Run("Should use code as message when cause is nil", func(t *testing.T) {
		err := core.NewError(nil, core.ErrCodeNotFound, map[string]any{"tenant": "v1"})
		assert.Equal(t, "NOT_FOUND", err.Error())
		assert.Equal(t, "v1", err.AsMap()["details"].(map[string]any)["tenant"])
	})
	t.Run("Should unwrap to the cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := core.NewError(cause, core.ErrCodeExecution, nil)
		assert.ErrorIs(t, err, cause)
	})
	t.Run("Should detect code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("setup: %w", core.ConfigurationError(errors.New("bad"), nil))
		assert.True(t, core.HasCode(err, core.ErrCodeConfiguration))
		assert.False(t, core.HasCode(err, core.ErrCodeExecution))
	})
}
