package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/compozy/tenantflow/engine/infra/server/router"
	"github.com/compozy/tenantflow/engine/plan"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventRoutes(t *testing.T) {
	t.Run("Should answer 503 without an event provider", func(t *testing.T) {
		f := newAPIFixture(t, false)
		code, resp := f.do(t, http.MethodGet, "/api/v0/events")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, router.ErrServiceUnavailableCode, resp.Error.Code)
	})
	t.Run("Should stream trigger events for the requested tenant", func(t *testing.T) {
		f := newAPIFixture(t, true)
		f.sub.On("Submit", mock.Anything, mock.Anything).Return(plan.Handle{ID: "pipeline", RunID: "run"}, nil)
		srv := httptest.NewServer(f.router)
		defer srv.Close()
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v0/events?tenant=v1", http.NoBody)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		code, _ := f.do(t, http.MethodPost, "/api/v0/tenants/v2/trigger")
		require.Equal(t, http.StatusAccepted, code)
		code, _ = f.do(t, http.MethodPost, "/api/v0/tenants/v1/trigger")
		require.Equal(t, http.StatusAccepted, code)

		scanner := bufio.NewScanner(resp.Body)
		var lines []string
		for scanner.Scan() {
			line := scanner.Text()
			lines = append(lines, line)
			if strings.HasPrefix(line, "data: ") {
				break
			}
		}
		require.NotEmpty(t, lines)
		assert.Contains(t, lines, "event: trigger")
		assert.Contains(t, lines, "id: 1")
		var ev trigger.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[len(lines)-1], "data: ")), &ev))
		assert.Equal(t, "v1", ev.Result.Tenant)
		assert.Equal(t, trigger.OutcomeStarted, ev.Result.Outcome)
	})
}

func TestEventForTenant(t *testing.T) {
	t.Run("Should match on the result tenant", func(t *testing.T) {
		payload, err := json.Marshal(trigger.Event{Kind: trigger.EventKindTrigger, Result: trigger.Result{Tenant: "v1"}})
		require.NoError(t, err)
		assert.True(t, eventForTenant(payload, "v1"))
		assert.False(t, eventForTenant(payload, "v2"))
		assert.False(t, eventForTenant([]byte("not json"), "v1"))
	})
}
