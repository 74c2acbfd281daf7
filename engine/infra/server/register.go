package server

import (
	"github.com/compozy/tenantflow/engine/infra/monitoring"
	"github.com/compozy/tenantflow/engine/infra/server/appstate"
	"github.com/compozy/tenantflow/engine/infra/server/routes"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the API, health and metrics routes.
// mon may be nil.
func NewRouter(log logger.Logger, state *appstate.State, mon *monitoring.Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if mon != nil && mon.IsInitialized() {
		r.Use(mon.GinMiddleware())
		r.GET(mon.Path(), gin.WrapH(mon.ExporterHandler()))
	}
	r.Use(LoggerMiddleware(log))
	r.Use(appstate.StateMiddleware(state))
	setupDiagnosticEndpoints(r, routes.Base(), state)
	api := r.Group(routes.Base())
	registerPipelineRoutes(api)
	registerEventRoutes(api)
	log.Debug("Completed route registration", "base", routes.Base())
	return r
}
