package trigger

import (
	"context"
	"fmt"

	"github.com/compozy/tenantflow/engine/task"
)

// Guard answers whether a tenant already has pipeline work in flight.
type Guard struct {
	repo task.Repository
}

func NewGuard(repo task.Repository) *Guard {
	return &Guard{repo: repo}
}

// IsTriggered is true iff some IMPORT, UPDATE, EXPORT or PROCESS task of the
// tenant is PENDING or RUNNING. GENERIC tasks never block a trigger.
func (g *Guard) IsTriggered(ctx context.Context, tenant string) (bool, error) {
	ok, err := g.repo.Exists(ctx, &task.Filter{
		Tenant:   tenant,
		Statuses: task.ActiveStatuses(),
		Types:    task.PipelineTypes(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check active tasks for tenant %s: %w", tenant, err)
	}
	return ok, nil
}
