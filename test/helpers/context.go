// Package helpers holds fixtures shared by package tests.
package helpers

import (
	"context"
	"testing"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/stretchr/testify/require"
)

// NewTestContext returns a context carrying a silent logger and a config
// manager loaded from defaults and the environment.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
	mgr := config.NewManager(config.NewService())
	_, err := mgr.Load(ctx, config.NewDefaultProvider())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.WithoutCancel(ctx)) })
	return config.ContextWithManager(ctx, mgr)
}
