package workflow

import (
	"errors"
	"fmt"

	"github.com/compozy/tenantflow/engine/task"
	"github.com/compozy/tenantflow/pkg/config"
)

// StepSpec declares Count tasks of one type, each with Total units of work.
type StepSpec struct {
	Name     string    `json:"name"     yaml:"name"`
	Type     task.Type `json:"type"     yaml:"type"`
	Parallel bool      `json:"parallel" yaml:"parallel"`
	Count    int       `json:"count"    yaml:"count"`
	Total    int64     `json:"total"    yaml:"total"`
}

// Definition is the concrete pipeline layout a tenant's workflow is built from.
type Definition struct {
	Steps []StepSpec `json:"steps" yaml:"steps"`
}

func DefinitionFromConfig(steps []config.StepConfig) (Definition, error) {
	def := Definition{Steps: make([]StepSpec, 0, len(steps))}
	for _, s := range steps {
		typ, err := task.ParseType(s.Type)
		if err != nil {
			return Definition{}, fmt.Errorf("step %s: %w", s.Name, err)
		}
		def.Steps = append(def.Steps, StepSpec{
			Name:     s.Name,
			Type:     typ,
			Parallel: s.Parallel,
			Count:    s.Count,
			Total:    s.Total,
		})
	}
	return def, def.Validate()
}

func (d Definition) Validate() error {
	if len(d.Steps) == 0 {
		return errors.New("pipeline has no steps")
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("step %s: duplicate name", s.Name)
		}
		seen[s.Name] = struct{}{}
		if !s.Type.Valid() {
			return fmt.Errorf("step %s: unknown task type %q", s.Name, s.Type)
		}
		if s.Count <= 0 {
			return fmt.Errorf("step %s: count must be positive", s.Name)
		}
		if s.Total <= 0 {
			return fmt.Errorf("step %s: total is required", s.Name)
		}
	}
	return nil
}

// TaskName names the i-th task (1-based) of a step.
func (s StepSpec) TaskName(i int) string {
	return fmt.Sprintf("%s-%d", s.Name, i)
}
