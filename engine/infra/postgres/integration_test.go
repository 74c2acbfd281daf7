package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// createTestDatabase starts a PostgreSQL container and returns its DSN.
func createTestDatabase(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("tenantflow"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgContainer.Terminate(terminateCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %s", err)
		}
	})
	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresIntegration(t *testing.T) {
	ctx := logger.ContextWithLogger(context.Background(), logger.NewForTests())
	dsn := createTestDatabase(ctx, t)
	require.NoError(t, ApplyMigrationsWithLock(ctx, dsn))
	st, err := NewStore(ctx, &Config{ConnString: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.WithoutCancel(ctx)) })
	repo := NewTaskRepo(st.Pool())

	t.Run("Should report the applied migration version", func(t *testing.T) {
		version, err := MigrationStatus(ctx, dsn)
		require.NoError(t, err)
		assert.Positive(t, version)
		require.NoError(t, ApplyMigrationsWithLock(ctx, dsn), "migrations are idempotent")
	})
	t.Run("Should upsert, transition and list tasks", func(t *testing.T) {
		tk, err := task.New("v1", "import-1", task.TypeImport, 100)
		require.NoError(t, err)
		tk.Reset(100, time.Now())
		stored, err := repo.Upsert(ctx, tk)
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, stored.Status)

		running := stored.Clone()
		require.NoError(t, running.Start("ref-1"))
		require.NoError(t, repo.UpdateStatus(ctx, running, task.StatusPending))
		require.NoError(t, repo.UpdateProgress(ctx, stored.ID, 40))
		err = repo.UpdateStatus(ctx, running, task.StatusPending)
		assert.True(t, errors.Is(err, task.ErrStaleTask))

		got, err := repo.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusRunning, got.Status)
		assert.Equal(t, int64(40), got.Current)
		assert.Equal(t, "ref-1", got.Ref())

		active, err := repo.Exists(ctx, &task.Filter{Tenant: "v1", Statuses: task.ActiveStatuses()})
		require.NoError(t, err)
		assert.True(t, active)
		tenants, err := repo.Tenants(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1"}, tenants)
	})
	t.Run("Should delete by filter", func(t *testing.T) {
		tk, err := task.New("v2", "export-1", task.TypeExport, 10)
		require.NoError(t, err)
		tk.Reset(10, time.Now())
		_, err = repo.Upsert(ctx, tk)
		require.NoError(t, err)
		n, err := repo.Delete(ctx, &task.Filter{Tenant: "v2"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
