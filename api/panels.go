package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/KKould/snowtree/execution"
	"github.com/KKould/snowtree/panel"
	"github.com/KKould/snowtree/session"
)

// CreatePanel adds a panel to a session and activates it
func (h *Handlers) CreatePanel(c *gin.Context) {
	var req struct {
		SessionID   string         `json:"sessionId"`
		Type        string         `json:"type"`
		Title       string         `json:"title"`
		Permanent   bool           `json:"permanent"`
		CustomState map[string]any `json:"customState"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	p, err := h.panels.CreatePanel(panel.CreateRequest{
		SessionID:   req.SessionID,
		Type:        req.Type,
		Title:       req.Title,
		Permanent:   req.Permanent,
		CustomState: req.CustomState,
	})
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	RespondCreated(c, p, "/api/panels/"+p.ID)
}

// GetPanel returns one panel by id
func (h *Handlers) GetPanel(c *gin.Context) {
	p := h.panels.GetPanel(c.Param("id"))
	if p == nil {
		RespondNotFound(c, "panel not found")
		return
	}
	RespondData(c, p)
}

// ListSessionPanels returns a session's panels in position order
func (h *Handlers) ListSessionPanels(c *gin.Context) {
	RespondList(c, h.panels.ListSessionPanels(c.Param("id")))
}

// UpdatePanel applies a partial patch to a panel
func (h *Handlers) UpdatePanel(c *gin.Context) {
	var req panel.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	p, err := h.panels.UpdatePanel(c.Param("id"), req)
	if err != nil {
		RespondNotFound(c, err.Error())
		return
	}
	RespondData(c, p)
}

// DeletePanel removes a panel; permanent panels are silently kept
func (h *Handlers) DeletePanel(c *gin.Context) {
	if err := h.panels.DeletePanel(c.Param("id")); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// SetActivePanel exclusively activates one of the session's panels
func (h *Handlers) SetActivePanel(c *gin.Context) {
	var req struct {
		PanelID *string `json:"panelId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.panels.SetActivePanel(c.Param("id"), req.PanelID); err != nil {
		RespondNotFound(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// ResumePanel spawns a fresh agent process on the panel
func (h *Handlers) ResumePanel(c *gin.Context) {
	var req session.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.sessions.ResumePanel(c.Request.Context(), c.Param("id"), req); err != nil {
		respondTurnError(c, err)
		return
	}
	RespondNoContent(c)
}

// SendFollowUp delivers a message to the panel's agent, restarting the
// process if needed.
func (h *Handlers) SendFollowUp(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		RespondBadRequest(c, "message is required")
		return
	}

	if err := h.sessions.SendFollowUp(c.Request.Context(), c.Param("id"), req.Message); err != nil {
		respondTurnError(c, err)
		return
	}
	RespondNoContent(c)
}

// InterruptPanel stops the panel's agent process
func (h *Handlers) InterruptPanel(c *gin.Context) {
	if err := h.sessions.Interrupt(c.Param("id")); err != nil {
		respondTurnError(c, err)
		return
	}
	RespondNoContent(c)
}

func respondTurnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, execution.ErrExecutionInProgress):
		RespondConflict(c, "an agent turn is already running for this session")
	case errors.Is(err, session.ErrSessionNotFound):
		RespondNotFound(c, "session not found")
	default:
		logger.Error().Err(err).Msg("agent turn request failed")
		RespondInternalError(c, err.Error())
	}
}
