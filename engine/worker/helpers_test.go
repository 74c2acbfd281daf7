package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/units"
	"github.com/stretchr/testify/require"
)

const failingUnitName = "process"

var errUnitBroke = errors.New("unit broke")

// recorder logs unit start and end events in the order they happen.
type recorder struct {
	mu       sync.Mutex
	events   []string
	previous map[string]core.ID
}

func newRecorder() *recorder {
	return &recorder{previous: make(map[string]core.ID)}
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) previousOf(name string) core.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous[name]
}

// lastIndex returns the index of the last event with prefix, or -1.
func lastIndex(events []string, prefix string) int {
	idx := -1
	for i, e := range events {
		if strings.HasPrefix(e, prefix) {
			idx = i
		}
	}
	return idx
}

// firstIndex returns the index of the first event with prefix, or -1.
func firstIndex(events []string, prefix string) int {
	for i, e := range events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

type recordingUnit struct {
	name string
	rec  *recorder
	fail bool
}

func (u *recordingUnit) Name() string {
	return u.name
}

func (u *recordingUnit) Run(ctx context.Context, in units.Input, progress units.Recorder) (*units.Result, error) {
	u.rec.add("start:" + in.Task.Name)
	if in.Previous != nil {
		u.rec.mu.Lock()
		u.rec.previous[in.Task.Name] = in.Previous.TaskID
		u.rec.mu.Unlock()
	}
	half := in.Task.Total / 2
	if err := progress.Record(ctx, half, in.Task.Total); err != nil {
		return nil, err
	}
	if u.fail {
		u.rec.add("fail:" + in.Task.Name)
		return nil, errUnitBroke
	}
	if err := progress.Record(ctx, in.Task.Total, in.Task.Total); err != nil {
		return nil, err
	}
	u.rec.add("end:" + in.Task.Name)
	return &units.Result{TaskID: in.Task.ID, Processed: in.Task.Total}, nil
}

// newTestUnits binds PROCESS to a failing unit and every other type to a
// recording one.
func newTestUnits(t *testing.T, rec *recorder) *units.Registry {
	t.Helper()
	reg, err := units.NewRegistry(map[task.Type]units.Unit{
		task.TypeGeneric: &recordingUnit{name: "generic", rec: rec},
		task.TypeImport:  &recordingUnit{name: "import", rec: rec},
		task.TypeUpdate:  &recordingUnit{name: "update", rec: rec},
		task.TypeExport:  &recordingUnit{name: "export", rec: rec},
		task.TypeProcess: &recordingUnit{name: failingUnitName, rec: rec, fail: true},
	})
	require.NoError(t, err)
	return reg
}

func seedTask(ctx context.Context, t *testing.T, repo task.Repository, name string, typ task.Type) *task.Task {
	t.Helper()
	tk, err := task.New("acme", name, typ, 100)
	require.NoError(t, err)
	stored, err := repo.Upsert(ctx, tk)
	require.NoError(t, err)
	return stored
}

func leafFor(tk *task.Task) plan.Plan {
	unit := strings.ToLower(string(tk.Type))
	return plan.Leaf(plan.Call{TaskID: tk.ID, TaskName: tk.Name, TaskType: tk.Type, Unit: unit})
}

func requireStatus(ctx context.Context, t *testing.T, repo task.Repository, id core.ID, status task.Status) *task.Task {
	t.Helper()
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, status, got.Status, "task %s", got.Name)
	return got
}
