package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *TaskRepo {
	t.Helper()
	ctx := context.Background()
	s, err := NewStore(ctx, &Config{Path: filepath.Join(t.TempDir(), "tasks.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })
	require.NoError(t, ApplyMigrations(ctx, s.DB()))
	return NewTaskRepo(s.DB())
}

func seedTask(t *testing.T, repo *TaskRepo, tenant, name string, typ task.Type, total int64) *task.Task {
	t.Helper()
	tk, err := task.New(tenant, name, typ, total)
	require.NoError(t, err)
	tk.Reset(total, time.Now())
	stored, err := repo.Upsert(context.Background(), tk)
	require.NoError(t, err)
	return stored
}

func TestTaskRepo_Upsert(t *testing.T) {
	t.Run("Should keep one row and one id per tenant, name and type", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		first := seedTask(t, repo, "v1", "import-0", task.TypeImport, 100)
		require.NoError(t, first.Start("wf/run/1"))
		require.NoError(t, repo.UpdateStatus(ctx, first, task.StatusPending))
		require.NoError(t, repo.UpdateProgress(ctx, first.ID, 40))

		again, err := task.New("v1", "import-0", task.TypeImport, 200)
		require.NoError(t, err)
		again.Reset(200, time.Now())
		second, err := repo.Upsert(ctx, again)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, task.StatusPending, second.Status)
		assert.Equal(t, int64(0), second.Current)
		assert.Equal(t, int64(200), second.Total)
		assert.Nil(t, second.ExternalRef)
		assert.NotNil(t, second.TriggeredAt)
		all, err := repo.List(ctx, &task.Filter{Tenant: "v1"})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
	t.Run("Should keep tasks of the same name and different type apart", func(t *testing.T) {
		repo := newTestRepo(t)
		seedTask(t, repo, "v1", "job-0", task.TypeImport, 10)
		seedTask(t, repo, "v1", "job-0", task.TypeExport, 10)
		all, err := repo.List(context.Background(), &task.Filter{Tenant: "v1"})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestTaskRepo_Get(t *testing.T) {
	t.Run("Should return ErrTaskNotFound for unknown ids", func(t *testing.T) {
		repo := newTestRepo(t)
		_, err := repo.Get(context.Background(), core.MustNewID())
		assert.True(t, errors.Is(err, task.ErrTaskNotFound))
	})
	t.Run("Should round-trip timestamps", func(t *testing.T) {
		repo := newTestRepo(t)
		stored := seedTask(t, repo, "v1", "import-0", task.TypeImport, 10)
		got, err := repo.Get(context.Background(), stored.ID)
		require.NoError(t, err)
		assert.False(t, got.CreatedAt.IsZero())
		require.NotNil(t, got.TriggeredAt)
		assert.WithinDuration(t, time.Now(), *got.TriggeredAt, time.Minute)
	})
}

func TestTaskRepo_UpdateStatus(t *testing.T) {
	t.Run("Should let exactly one concurrent writer win", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		stored := seedTask(t, repo, "v1", "import-0", task.TypeImport, 10)
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tk := stored.Clone()
				if errs[i] = tk.Start("ref"); errs[i] != nil {
					return
				}
				errs[i] = repo.UpdateStatus(ctx, tk, task.StatusPending)
			}(i)
		}
		wg.Wait()
		var wins, stale int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, task.ErrStaleTask):
				stale++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 3, stale)
	})
	t.Run("Should return ErrTaskNotFound for a deleted task", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		stored := seedTask(t, repo, "v1", "import-0", task.TypeImport, 10)
		_, err := repo.Delete(ctx, &task.Filter{Tenant: "v1"})
		require.NoError(t, err)
		require.NoError(t, stored.Start("ref"))
		err = repo.UpdateStatus(ctx, stored, task.StatusPending)
		assert.True(t, errors.Is(err, task.ErrTaskNotFound))
	})
}

func TestTaskRepo_UpdateProgress(t *testing.T) {
	t.Run("Should be monotonic and clamped to total", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		stored := seedTask(t, repo, "v1", "import-0", task.TypeImport, 100)
		require.NoError(t, stored.Start("ref"))
		require.NoError(t, repo.UpdateStatus(ctx, stored, task.StatusPending))

		require.NoError(t, repo.UpdateProgress(ctx, stored.ID, 60))
		require.NoError(t, repo.UpdateProgress(ctx, stored.ID, 30))
		got, err := repo.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(60), got.Current)

		require.NoError(t, repo.UpdateProgress(ctx, stored.ID, 500))
		got, err = repo.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.Current)
	})
	t.Run("Should ignore progress for tasks that are not running", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		stored := seedTask(t, repo, "v1", "import-0", task.TypeImport, 100)
		require.NoError(t, repo.UpdateProgress(ctx, stored.ID, 60))
		got, err := repo.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Current)
	})
}

func TestTaskRepo_ExistsAndDelete(t *testing.T) {
	t.Run("Should match only active pipeline tasks", func(t *testing.T) {
		repo := newTestRepo(t)
		ctx := context.Background()
		seedTask(t, repo, "v1", "generic-0", task.TypeGeneric, 10)
		active := &task.Filter{Tenant: "v1", Statuses: task.ActiveStatuses(), Types: task.PipelineTypes()}
		ok, err := repo.Exists(ctx, active)
		require.NoError(t, err)
		assert.False(t, ok)

		seedTask(t, repo, "v1", "import-0", task.TypeImport, 10)
		ok, err = repo.Exists(ctx, active)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := repo.Delete(ctx, &task.Filter{Tenant: "v1", Types: []task.Type{task.TypeImport}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		ok, err = repo.Exists(ctx, active)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTaskRepo_Tenants(t *testing.T) {
	t.Run("Should list each tenant once in order", func(t *testing.T) {
		repo := newTestRepo(t)
		seedTask(t, repo, "v2", "import-0", task.TypeImport, 10)
		seedTask(t, repo, "v1", "import-0", task.TypeImport, 10)
		seedTask(t, repo, "v1", "import-1", task.TypeImport, 10)
		out, err := repo.Tenants(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v2"}, out)
	})
}
