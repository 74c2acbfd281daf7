package units

import (
	"context"
	"fmt"
	"slices"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/task"
)

// Input is what a unit receives when the backend runs it.
type Input struct {
	Task     *task.Task `json:"task"`
	Previous *Result    `json:"previous,omitempty"`
}

// Result is passed to the next call of a sequential chain.
type Result struct {
	TaskID    core.ID `json:"task_id,omitempty"`
	Processed int64   `json:"processed"`
}

// Recorder receives progress reports while a unit runs.
type Recorder interface {
	Record(ctx context.Context, current, total int64) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, current, total int64) error

func (f RecorderFunc) Record(ctx context.Context, current, total int64) error {
	return f(ctx, current, total)
}

// Unit is the callable bound to a task.
type Unit interface {
	Name() string
	Run(ctx context.Context, in Input, rec Recorder) (*Result, error)
}

// Registry maps every task type to a unit.
type Registry struct {
	byType map[task.Type]Unit
	byName map[string]Unit
}

// NewRegistry fails unless every task type is bound.
func NewRegistry(bindings map[task.Type]Unit) (*Registry, error) {
	r := &Registry{
		byType: make(map[task.Type]Unit, len(bindings)),
		byName: make(map[string]Unit, len(bindings)),
	}
	var missing []task.Type
	for _, typ := range task.Types() {
		u, ok := bindings[typ]
		if !ok || u == nil {
			missing = append(missing, typ)
			continue
		}
		r.byType[typ] = u
		r.byName[u.Name()] = u
	}
	for typ := range bindings {
		if !typ.Valid() {
			return nil, fmt.Errorf("binding for unknown task type %q", typ)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, core.ConfigurationError(
			fmt.Errorf("no unit bound for task types %v", missing),
			map[string]any{"missing": missing},
		)
	}
	return r, nil
}

// Resolve returns the unit bound to typ.
func (r *Registry) Resolve(typ task.Type) (Unit, error) {
	u, ok := r.byType[typ]
	if !ok {
		return nil, core.ConfigurationError(fmt.Errorf("no unit bound for task type %q", typ), nil)
	}
	return u, nil
}

// ByName finds a unit by the name recorded in a plan.
func (r *Registry) ByName(name string) (Unit, error) {
	u, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", name)
	}
	return u, nil
}

// Default binds every type to a batching counter unit.
func Default(batch int64) *Registry {
	r, err := NewRegistry(map[task.Type]Unit{
		task.TypeGeneric: NewCounterUnit("generic", batch),
		task.TypeImport:  NewCounterUnit("import", batch),
		task.TypeUpdate:  NewCounterUnit("update", batch),
		task.TypeExport:  NewCounterUnit("export", batch),
		task.TypeProcess: NewCounterUnit("process", batch),
	})
	if err != nil {
		panic(err)
	}
	return r
}
