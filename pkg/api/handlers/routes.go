package handlers

import (
	"github.com/labstack/echo/v4"
)

// Handlers groups everything mounted under /outreach.
type Handlers struct {
	Templates    *TemplateHandler
	Sequences    *SequenceHandler
	Enrollments  *EnrollmentHandler
	Prospects    *ProspectHandler
	Filters      *FilterHandler
	Suppressions *SuppressionHandler
	Sync         *SyncHandler
	Stats        *StatsHandler
	Runner       *RunnerHandler
	Inbound      *InboundHandler
}

// Register mounts the outreach routes. operator guards the administrative
// routes; runner guards the tick trigger and the inbound webhook.
func (h Handlers) Register(e *echo.Echo, operator, runner []echo.MiddlewareFunc) {
	g := e.Group("/outreach")

	rg := g.Group("", runner...)
	rg.POST("/runner", h.Runner.Tick)
	rg.POST("/inbound", h.Inbound.Receive)

	og := g.Group("", operator...)
	og.POST("/sync", h.Sync.Sync)

	og.GET("/filters", h.Filters.Get)
	og.PUT("/filters", h.Filters.Put)

	og.GET("/templates", h.Templates.List)
	og.POST("/templates", h.Templates.Create)
	og.GET("/templates/:id", h.Templates.Get)
	og.PATCH("/templates/:id", h.Templates.Update)
	og.PUT("/templates/:id", h.Templates.Update)
	og.DELETE("/templates/:id", h.Templates.Delete)

	og.GET("/sequences", h.Sequences.List)
	og.POST("/sequences", h.Sequences.Create)
	og.GET("/sequences/:id", h.Sequences.Get)
	og.PATCH("/sequences/:id", h.Sequences.Update)
	og.PUT("/sequences/:id", h.Sequences.Update)
	og.DELETE("/sequences/:id", h.Sequences.Delete)
	og.POST("/sequences/:id/steps", h.Sequences.AddStep)
	og.GET("/sequences/:id/enrollments", h.Sequences.Enrollments)

	og.POST("/enrollments", h.Enrollments.Create)
	og.GET("/enrollments/:id", h.Enrollments.Get)
	og.POST("/enrollments/:id/pause", h.Enrollments.Pause)
	og.POST("/enrollments/:id/resume", h.Enrollments.Resume)
	og.POST("/enrollments/:id/opt-out", h.Enrollments.OptOut)

	og.GET("/prospects", h.Prospects.List)
	og.GET("/prospects/:id", h.Prospects.Get)
	og.GET("/prospects/:id/enrollments", h.Prospects.Enrollments)

	og.GET("/suppressions", h.Suppressions.List)
	og.POST("/suppressions", h.Suppressions.Create)

	og.GET("/stats", h.Stats.Get)
}
