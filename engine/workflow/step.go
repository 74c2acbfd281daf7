package workflow

import (
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/progress"
	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/engine/units"
)

// Entry pairs a task with the unit bound to it.
type Entry struct {
	Task *task.Task
	Unit units.Unit
}

// Step is a group of tasks run either concurrently or as an ordered chain.
type Step struct {
	Name     string
	Parallel bool
	entries  []Entry
}

func NewStep(name string, parallel bool) *Step {
	return &Step{Name: name, Parallel: parallel}
}

// Add appends a pair. Adding the same task twice is a caller error.
func (s *Step) Add(t *task.Task, u units.Unit) {
	s.entries = append(s.entries, Entry{Task: t, Unit: u})
}

func (s *Step) Entries() []Entry {
	return s.entries
}

func (s *Step) Tasks() []*task.Task {
	tasks := make([]*task.Task, 0, len(s.entries))
	for _, e := range s.entries {
		tasks = append(tasks, e.Task)
	}
	return tasks
}

func (s *Step) BuildPlan() plan.Plan {
	leaves := make([]plan.Plan, 0, len(s.entries))
	for _, e := range s.entries {
		leaves = append(leaves, plan.Leaf(plan.Call{
			TaskID:   e.Task.ID,
			TaskName: e.Task.Name,
			TaskType: e.Task.Type,
			Unit:     e.Unit.Name(),
		}))
	}
	if s.Parallel {
		return plan.Parallel(leaves...)
	}
	return plan.Sequence(leaves...)
}

func (s *Step) Progress() progress.Progress {
	return progress.Aggregate(s.Tasks())
}

func (s *Step) Total() int64 {
	return s.Progress().Total
}

func (s *Step) Current() int64 {
	return s.Progress().Current
}

func (s *Step) Percent() float64 {
	return s.Progress().Percent
}
