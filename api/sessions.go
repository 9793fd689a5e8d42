package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ideaforge/bidtheater/engine"
	"github.com/ideaforge/bidtheater/logger"
)

// StartSessionRequest is the request to start a bidding session.
type StartSessionRequest struct {
	IdeaText   string   `json:"idea_text"`
	PersonaIDs []string `json:"persona_ids,omitempty"`
}

// SubmitContextRequest is the request to add user context to a session.
type SubmitContextRequest struct {
	Kind      string  `json:"kind"`
	Content   string  `json:"content,omitempty"`
	PersonaID string  `json:"persona_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// StartSession starts (or joins) the session for an idea.
// POST /v1/sessions/:idea_id/start
func (h *Handler) StartSession(c echo.Context) error {
	ideaID := c.Param("idea_id")

	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.IdeaText == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "idea_text is required"})
	}

	participants := h.catalog.All()
	if len(req.PersonaIDs) > 0 {
		participants = participants[:0]
		for _, id := range req.PersonaIDs {
			p, ok := h.catalog.Get(id)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown persona: " + id})
			}
			participants = append(participants, p)
		}
	}

	session := h.registry.GetOrCreate(ideaID, req.IdeaText, participants)
	if session == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "registry is shutting down"})
	}
	logger.Info("session %s started with %d personas", ideaID, len(participants))
	return c.JSON(http.StatusOK, session.Snapshot())
}

// GetSession returns the live snapshot of a session.
// GET /v1/sessions/:idea_id
func (h *Handler) GetSession(c echo.Context) error {
	ideaID := c.Param("idea_id")

	session, err := h.registry.Get(ideaID)
	if errors.Is(err, engine.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	if err != nil {
		logger.Error("failed to look up session %s: %v", ideaID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up session"})
	}

	resp := map[string]interface{}{
		"session": session.Snapshot(),
	}
	if h.hub != nil {
		resp["observers"] = h.hub.ObserverCount(ideaID)
	}
	return c.JSON(http.StatusOK, resp)
}

// SubmitContext adds a supplement, reaction or prediction to a session.
// POST /v1/sessions/:idea_id/context
func (h *Handler) SubmitContext(c echo.Context) error {
	ideaID := c.Param("idea_id")

	var req SubmitContextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	session, err := h.registry.Get(ideaID)
	if errors.Is(err, engine.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	if err != nil {
		logger.Error("failed to look up session %s: %v", ideaID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up session"})
	}

	switch req.Kind {
	case "supplement":
		if req.Content == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required for supplements"})
		}
		session.AddSupplement(req.Content)
	case "reaction":
		if req.Content == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required for reactions"})
		}
		session.AddReaction(req.Content)
	case "prediction":
		if req.PersonaID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "persona_id is required for predictions"})
		}
		session.AddPrediction(req.PersonaID, req.Amount)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "kind must be supplement, reaction or prediction"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetSettlement returns the persisted settlement of a completed session.
// GET /v1/sessions/:idea_id/settlement
func (h *Handler) GetSettlement(c echo.Context) error {
	ideaID := c.Param("idea_id")
	if h.store == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "settlement storage is disabled"})
	}

	settlement, err := h.store.GetSettlement(c.Request().Context(), ideaID)
	if err != nil {
		logger.Error("failed to load settlement for %s: %v", ideaID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load settlement"})
	}
	if settlement == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "settlement not found"})
	}
	return c.JSON(http.StatusOK, settlement)
}

// GetReplay returns the archived message log of a completed session.
// GET /v1/sessions/:idea_id/replay
func (h *Handler) GetReplay(c echo.Context) error {
	ideaID := c.Param("idea_id")
	if h.store == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "settlement storage is disabled"})
	}

	events, err := h.store.GetArchivedEvents(c.Request().Context(), ideaID, 0)
	if err != nil {
		logger.Error("failed to load replay for %s: %v", ideaID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load replay"})
	}
	if len(events) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "replay not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"idea_id": ideaID,
		"events":  events,
	})
}

// ListPersonas returns the persona catalog.
// GET /v1/personas
func (h *Handler) ListPersonas(c echo.Context) error {
	personas := h.catalog.All()
	resp := make([]map[string]interface{}, len(personas))
	for i, p := range personas {
		resp[i] = map[string]interface{}{
			"id":            p.ID,
			"name":          p.Name,
			"specialty":     p.Specialty,
			"risk_appetite": p.RiskAppetite,
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"personas": resp})
}
