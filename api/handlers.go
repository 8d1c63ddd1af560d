// Package api exposes the HTTP and WebSocket surface: session lifecycle,
// panels, agent turns, diffs, timeline queries, and live output streams.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/execution"
	"github.com/KKould/snowtree/log"
	"github.com/KKould/snowtree/panel"
	"github.com/KKould/snowtree/session"
	"github.com/KKould/snowtree/timeline"
)

var logger = log.GetLogger("API")

// Handlers holds references to the app components
type Handlers struct {
	store    *db.Store
	sessions *session.Manager
	panels   *panel.Manager
	tracker  *execution.Tracker
	recorder *timeline.Recorder
}

// NewHandlers creates a Handlers instance over the app components
func NewHandlers(store *db.Store, sessions *session.Manager, panels *panel.Manager,
	tracker *execution.Tracker, recorder *timeline.Recorder) *Handlers {
	return &Handlers{
		store:    store,
		sessions: sessions,
		panels:   panels,
		tracker:  tracker,
		recorder: recorder,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")

	// Session routes
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/archive", h.ArchiveSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.GET("/sessions/:id/panels", h.ListSessionPanels)
	api.PUT("/sessions/:id/active-panel", h.SetActivePanel)
	api.GET("/sessions/:id/transcript", h.GetTranscript)
	api.GET("/sessions/:id/timeline", h.GetTimeline)
	api.GET("/sessions/:id/diffs", h.ListExecutionDiffs)
	api.GET("/sessions/:id/diffs/combined", h.GetCombinedDiff)
	api.POST("/sessions/:id/diffs/hunk", h.ApplyDiffHunk)
	api.POST("/sessions/:id/push", h.PushSession)
	api.GET("/sessions/:id/prompt-markers", h.ListPromptMarkers)
	api.GET("/sessions/:id/outputs", h.ListSessionOutputs)
	api.DELETE("/prompt-markers/:id", h.DeletePromptMarker)

	// Panel routes
	api.POST("/panels", h.CreatePanel)
	api.GET("/panels/:id", h.GetPanel)
	api.PATCH("/panels/:id", h.UpdatePanel)
	api.DELETE("/panels/:id", h.DeletePanel)
	api.POST("/panels/:id/resume", h.ResumePanel)
	api.POST("/panels/:id/follow-up", h.SendFollowUp)
	api.POST("/panels/:id/interrupt", h.InterruptPanel)
	api.GET("/panels/:id/stream", h.StreamPanel)

	// Project routes
	api.GET("/projects", h.ListProjects)
	api.POST("/projects", h.CreateProject)
	api.DELETE("/projects/:id", h.DeleteProject)
	api.GET("/projects/:id/run-commands", h.ListRunCommands)
	api.POST("/projects/:id/run-commands", h.CreateRunCommand)

	// Folder routes
	api.GET("/folders", h.ListFolders)
	api.POST("/folders", h.CreateFolder)
	api.DELETE("/folders/:id", h.DeleteFolder)

	// UI state and preferences
	api.GET("/ui-state/:key", h.GetUIState)
	api.PUT("/ui-state/:key", h.SetUIState)
	api.GET("/preferences/:key", h.GetPreference)
	api.PUT("/preferences/:key", h.SetPreference)
	api.POST("/app-opens", h.RecordAppOpen)

	// Maintenance
	api.POST("/admin/timeline/prune-orphans", h.PruneOrphanTimelineEvents)
}
