package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/compozy/tenantflow/pkg/logger"
)

// EventsChannel carries one Event per tenant trigger.
const EventsChannel = "tenantflow:events"

const EventKindTrigger = "trigger"

// Publisher broadcasts encoded events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Event struct {
	Kind   string    `json:"kind"`
	Result Result    `json:"result"`
	At     time.Time `json:"at"`
}

func (o *Orchestrator) publish(ctx context.Context, res Result) {
	if o.opts.Events == nil {
		return
	}
	payload, err := json.Marshal(Event{Kind: EventKindTrigger, Result: res, At: o.opts.Now().UTC()})
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to encode trigger event", "tenant", res.Tenant, "error", err)
		return
	}
	if err := o.opts.Events.Publish(context.WithoutCancel(ctx), EventsChannel, payload); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish trigger event", "tenant", res.Tenant, "error", err)
	}
}
