package helpers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/compozy/tenantflow/engine/infra/repo"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/pkg/config"
	"github.com/stretchr/testify/require"
)

// SetupTaskRepo opens a migrated SQLite task store in a temp directory.
func SetupTaskRepo(ctx context.Context, t *testing.T) task.Repository {
	t.Helper()
	p, err := repo.NewProvider(ctx, &config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "tenantflow.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.WithoutCancel(ctx)) })
	return p.TaskRepo()
}

// ErrInjectedUpsert is returned by UpsertFaultRepo on the failing call.
var ErrInjectedUpsert = errors.New("injected upsert failure")

// UpsertFaultRepo wraps a repository and fails the FailOn-th Upsert call
// (1-based). A zero FailOn disables the fault.
type UpsertFaultRepo struct {
	task.Repository
	mu     sync.Mutex
	FailOn int
	calls  int
}

func NewUpsertFaultRepo(inner task.Repository, failOn int) *UpsertFaultRepo {
	return &UpsertFaultRepo{Repository: inner, FailOn: failOn}
}

func (r *UpsertFaultRepo) Upsert(ctx context.Context, t *task.Task) (*task.Task, error) {
	r.mu.Lock()
	r.calls++
	fail := r.FailOn > 0 && r.calls == r.FailOn
	r.mu.Unlock()
	if fail {
		return nil, ErrInjectedUpsert
	}
	return r.Repository.Upsert(ctx, t)
}

// Disable turns the fault off for subsequent calls.
func (r *UpsertFaultRepo) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailOn = 0
}
