package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/compozy/tenantflow/engine/infra/server/router"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	eventsHeartbeatInterval = 15 * time.Second
	errMsgEventsNotEnabled  = "event stream is not configured"
)

func registerEventRoutes(api *gin.RouterGroup) {
	api.GET("/events", streamEvents)
}

// streamEvents handles GET /events. It relays trigger events as server-sent
// events until the client disconnects. ?tenant= narrows the stream.
func streamEvents(c *gin.Context) {
	state, ok := loadState(c)
	if !ok {
		return
	}
	if state.Events == nil {
		router.RespondWithError(c, router.NewRequestError(
			http.StatusServiceUnavailable, errMsgEventsNotEnabled, errors.New("no event provider"),
		))
		return
	}
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	tenant := c.Query("tenant")
	sub, err := state.Events.Subscribe(ctx, trigger.EventsChannel)
	if err != nil {
		router.RespondWithError(c, router.NewRequestError(http.StatusServiceUnavailable, "failed to subscribe to events", err))
		return
	}
	defer sub.Close()
	// Streams outlive the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("Stream keeps the server write deadline", "error", err)
	}
	stream, err := router.StartSSE(c.Writer)
	if err != nil {
		router.RespondWithError(c, router.NewRequestError(http.StatusInternalServerError, "streaming unsupported", err))
		return
	}
	heartbeat := time.NewTicker(eventsHeartbeatInterval)
	defer heartbeat.Stop()
	var id int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				log.Warn("Event subscription ended", "error", err)
			}
			return
		case <-heartbeat.C:
			if err := stream.WriteHeartbeat(); err != nil {
				return
			}
		case msg, open := <-sub.Messages():
			if !open {
				return
			}
			if tenant != "" && !eventForTenant(msg.Payload, tenant) {
				continue
			}
			id++
			if err := stream.WriteEvent(id, trigger.EventKindTrigger, json.RawMessage(msg.Payload)); err != nil {
				log.Debug("Event stream closed by client", "error", err)
				return
			}
		}
	}
}

func eventForTenant(payload []byte, tenant string) bool {
	var ev trigger.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return false
	}
	return ev.Result.Tenant == tenant
}
