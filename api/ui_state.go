package api

import "github.com/gin-gonic/gin"

// GetUIState returns a persisted UI state value, empty when unset
func (h *Handlers) GetUIState(c *gin.Context) {
	value, err := h.store.GetUIState(c.Param("key"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, gin.H{"key": c.Param("key"), "value": value})
}

type valueRequest struct {
	Value string `json:"value"`
}

// SetUIState upserts a UI state value by key
func (h *Handlers) SetUIState(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.store.SetUIState(c.Param("key"), req.Value); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// GetPreference returns a user preference, empty when unset
func (h *Handlers) GetPreference(c *gin.Context) {
	value, err := h.store.GetPreference(c.Param("key"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, gin.H{"key": c.Param("key"), "value": value})
}

// SetPreference upserts a user preference by key
func (h *Handlers) SetPreference(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.store.SetPreference(c.Param("key"), req.Value); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// RecordAppOpen appends an app launch timestamp for usage stats
func (h *Handlers) RecordAppOpen(c *gin.Context) {
	if err := h.store.RecordAppOpen(); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}
