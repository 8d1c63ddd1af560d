package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KKould/snowtree/gitexec"
	"github.com/KKould/snowtree/session"
)

// ListSessions returns all sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListSessions()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list sessions")
		RespondInternalError(c, "failed to list sessions")
		return
	}
	RespondList(c, sessions)
}

// CreateSession provisions a worktree and starts the first agent turn
func (h *Handlers) CreateSession(c *gin.Context) {
	var req session.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.ToolType == "" {
		RespondBadRequest(c, "name and toolType are required")
		return
	}

	sess, err := h.sessions.CreateSession(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownToolType):
			RespondBadRequest(c, err.Error())
		default:
			logger.Error().Err(err).Msg("failed to create session")
			RespondInternalError(c, err.Error())
		}
		return
	}
	RespondCreated(c, sess, "/api/sessions/"+sess.ID)
}

// GetSession returns one session by id
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.GetSession(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			RespondNotFound(c, "session not found")
			return
		}
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, sess)
}

// ArchiveSession stops the session and removes its worktree, keeping history
func (h *Handlers) ArchiveSession(c *gin.Context) {
	err := h.sessions.ArchiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			RespondNotFound(c, "session not found")
			return
		}
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// DeleteSession removes the session and its cascading rows
func (h *Handlers) DeleteSession(c *gin.Context) {
	err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			RespondNotFound(c, "session not found")
			return
		}
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// GetTranscript returns the session's persisted conversation messages
func (h *Handlers) GetTranscript(c *gin.Context) {
	messages, err := h.sessions.Transcript(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, messages)
}

// GetTimeline returns the session's audit log in seq order
func (h *Handlers) GetTimeline(c *gin.Context) {
	events, err := h.recorder.Events(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, events)
}

// ListExecutionDiffs returns the session's per-turn diff records
func (h *Handlers) ListExecutionDiffs(c *gin.Context) {
	diffs, err := h.store.ListExecutionDiffs(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, diffs)
}

type combinedDiffRequest struct {
	ExecutionIDs []int64 `form:"executionIds"`
}

// GetCombinedDiff merges a session's diffs into one view. An executionIds
// query filters to specific records.
func (h *Handlers) GetCombinedDiff(c *gin.Context) {
	var req combinedDiffRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		RespondBadRequest(c, "invalid query: "+err.Error())
		return
	}

	combined, err := h.tracker.GetCombinedDiff(c.Param("id"), req.ExecutionIDs)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, combined)
}

type diffHunkRequest struct {
	Action string `json:"action"`
	Patch  string `json:"patch"`
}

// ApplyDiffHunk stages or restores a single diff hunk in the session's
// worktree. A malformed or non-applying patch is the caller's error.
func (h *Handlers) ApplyDiffHunk(c *gin.Context) {
	var req diffHunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Patch == "" {
		RespondBadRequest(c, "patch is required")
		return
	}

	id := c.Param("id")
	var err error
	switch req.Action {
	case "stage":
		err = h.sessions.StageHunk(c.Request.Context(), id, []byte(req.Patch))
	case "restore":
		err = h.sessions.RestoreHunk(c.Request.Context(), id, []byte(req.Patch))
	default:
		RespondBadRequest(c, "action must be 'stage' or 'restore'")
		return
	}
	if err != nil {
		var exitErr *gitexec.NonZeroExitError
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			RespondNotFound(c, "session not found")
		case errors.As(err, &exitErr):
			RespondBadRequest(c, "patch did not apply: "+exitErr.Stderr)
		default:
			RespondInternalError(c, err.Error())
		}
		return
	}
	RespondNoContent(c)
}

// PushSession pushes the session's branch from its worktree
func (h *Handlers) PushSession(c *gin.Context) {
	res, err := h.sessions.Push(c.Request.Context(), c.Param("id"))
	if err != nil {
		var exitErr *gitexec.NonZeroExitError
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			RespondNotFound(c, "session not found")
		case errors.As(err, &exitErr):
			RespondConflict(c, "push rejected: "+exitErr.Stderr)
		default:
			RespondInternalError(c, err.Error())
		}
		return
	}
	RespondData(c, res)
}

// ListPromptMarkers returns the session's prompt markers in display order
func (h *Handlers) ListPromptMarkers(c *gin.Context) {
	markers, err := h.store.ListPromptMarkers(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, markers)
}

// DeletePromptMarker removes a prompt marker; diffs attributed to it keep
// their rows with the marker reference cleared.
func (h *Handlers) DeletePromptMarker(c *gin.Context) {
	marker, err := h.store.GetPromptMarker(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if marker == nil {
		RespondNotFound(c, "prompt marker not found")
		return
	}
	if err := h.store.DeletePromptMarker(marker.ID); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// ListSessionOutputs returns the session's archived raw output chunks. A
// limit query caps the result.
func (h *Handlers) ListSessionOutputs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondBadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	outputs, err := h.store.ListSessionOutputs(c.Param("id"), limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, outputs)
}

// PruneOrphanTimelineEvents removes timeline rows whose session is gone
func (h *Handlers) PruneOrphanTimelineEvents(c *gin.Context) {
	pruned, err := h.recorder.PruneOrphans()
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, gin.H{"pruned": pruned})
}
