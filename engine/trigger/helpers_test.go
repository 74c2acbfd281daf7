package trigger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/compozy/tenantflow/engine/task"
	"github.com/stretchr/testify/require"
)

func seedTask(t *testing.T, repo task.Repository, tenant string, typ task.Type) *task.Task {
	t.Helper()
	tk, err := task.New(tenant, string(typ)+"-1", typ, 100)
	require.NoError(t, err)
	tk.Reset(100, time.Now())
	stored, err := repo.Upsert(t.Context(), tk)
	require.NoError(t, err)
	return stored
}

// moveTo walks the state machine from PENDING to status, persisting each hop.
func moveTo(t *testing.T, repo task.Repository, tk *task.Task, status task.Status) {
	t.Helper()
	ctx := t.Context()
	hop := func(fn func() error) {
		from := tk.Status
		require.NoError(t, fn())
		require.NoError(t, repo.UpdateStatus(ctx, tk, from))
	}
	switch status {
	case task.StatusPending:
	case task.StatusRunning:
		hop(func() error { return tk.Start("ref") })
	case task.StatusCompleted:
		hop(func() error { return tk.Start("ref") })
		hop(tk.Complete)
	case task.StatusFailed:
		hop(func() error { return tk.Start("ref") })
		hop(func() error { return tk.Fail(errors.New("boom")) })
	case task.StatusRevoked:
		hop(func() error { return tk.Revoke("cancelled") })
	}
}
