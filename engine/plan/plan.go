package plan

import (
	"context"
	"fmt"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/task"
)

type Kind string

const (
	KindEmpty    Kind = "empty"
	KindLeaf     Kind = "leaf"
	KindParallel Kind = "parallel"
	KindSequence Kind = "sequence"
)

// Call is one bound callable: the unit to run and the task it reports on.
type Call struct {
	TaskID   core.ID   `json:"task_id"`
	TaskName string    `json:"task_name"`
	TaskType task.Type `json:"task_type"`
	Unit     string    `json:"unit"`
}

// Plan is a serializable tree of calls. Parallel children run concurrently
// and the group resolves when all of them have. Sequence children run in
// order and the first failure aborts the rest.
type Plan struct {
	Kind     Kind   `json:"kind"`
	Call     *Call  `json:"call,omitempty"`
	Children []Plan `json:"children,omitempty"`
}

func Empty() Plan {
	return Plan{Kind: KindEmpty}
}

func Leaf(call Call) Plan {
	return Plan{Kind: KindLeaf, Call: &call}
}

func Parallel(plans ...Plan) Plan {
	return group(KindParallel, plans)
}

func Sequence(plans ...Plan) Plan {
	return group(KindSequence, plans)
}

// group drops empty children and unwraps single-child groups.
func group(kind Kind, plans []Plan) Plan {
	children := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.IsEmpty() {
			continue
		}
		children = append(children, p)
	}
	switch len(children) {
	case 0:
		return Empty()
	case 1:
		return children[0]
	}
	return Plan{Kind: kind, Children: children}
}

func (p Plan) IsEmpty() bool {
	return p.Kind == "" || p.Kind == KindEmpty
}

// Leaves returns every call in execution order.
func (p Plan) Leaves() []Call {
	var out []Call
	p.walk(func(c Call) { out = append(out, c) })
	return out
}

func (p Plan) walk(fn func(Call)) {
	switch p.Kind {
	case KindLeaf:
		if p.Call != nil {
			fn(*p.Call)
		}
	case KindParallel, KindSequence:
		for _, child := range p.Children {
			child.walk(fn)
		}
	}
}

// Validate checks the structural invariants a backend relies on.
func (p Plan) Validate() error {
	switch p.Kind {
	case KindEmpty, "":
		return nil
	case KindLeaf:
		if p.Call == nil {
			return fmt.Errorf("leaf plan without call")
		}
		if p.Call.TaskID.IsZero() || p.Call.Unit == "" {
			return fmt.Errorf("leaf plan requires task id and unit")
		}
		return nil
	case KindParallel, KindSequence:
		for i, child := range p.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s child %d: %w", p.Kind, i, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown plan kind %q", p.Kind)
}

// Handle identifies a submitted plan in the execution backend.
type Handle struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
}

func (h Handle) String() string {
	if h.RunID == "" {
		return h.ID
	}
	return h.ID + "/" + h.RunID
}

type SubmitRequest struct {
	Tenant string `json:"tenant"`
	Plan   Plan   `json:"plan"`
}

// Submitter hands a composite plan to the execution backend. Submit returns
// once the backend has accepted the plan, without waiting for it to run.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)
}
