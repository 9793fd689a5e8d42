// Package api provides HTTP handlers for the bidding theater.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ideaforge/bidtheater/engine"
	"github.com/ideaforge/bidtheater/hub"
	"github.com/ideaforge/bidtheater/persona"
	"github.com/ideaforge/bidtheater/store"
)

// Handler handles HTTP requests.
type Handler struct {
	registry *engine.Registry
	catalog  *persona.Catalog
	store    store.Store
	hub      *hub.Hub
}

// NewHandler creates a new handler. store and hub may be nil in tests.
func NewHandler(registry *engine.Registry, catalog *persona.Catalog, st store.Store, h *hub.Hub) *Handler {
	return &Handler{
		registry: registry,
		catalog:  catalog,
		store:    st,
		hub:      h,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions/:idea_id/start", h.StartSession)
	e.GET("/v1/sessions/:idea_id", h.GetSession)
	e.POST("/v1/sessions/:idea_id/context", h.SubmitContext)
	e.GET("/v1/sessions/:idea_id/settlement", h.GetSettlement)
	e.GET("/v1/sessions/:idea_id/replay", h.GetReplay)

	e.GET("/v1/personas", h.ListPersonas)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"active_sessions": h.registry.Count(),
	})
}
