package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KKould/snowtree/db"
)

// ListProjects returns registered projects
func (h *Handlers) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects()
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, projects)
}

// CreateProject registers a repository
func (h *Handlers) CreateProject(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Path == "" {
		RespondBadRequest(c, "name and path are required")
		return
	}

	project := &db.Project{
		ID:   uuid.NewString(),
		Name: req.Name,
		Path: req.Path,
	}
	if err := h.store.CreateProject(project); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondCreated(c, project, "/api/projects/"+project.ID)
}

// DeleteProject removes a project registration
func (h *Handlers) DeleteProject(c *gin.Context) {
	if err := h.store.DeleteProject(c.Param("id")); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// ListFolders returns the session grouping folders
func (h *Handlers) ListFolders(c *gin.Context) {
	folders, err := h.store.ListFolders()
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, folders)
}

// CreateFolder adds a session grouping folder
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req struct {
		Name      string  `json:"name"`
		ProjectID *string `json:"projectId,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		RespondBadRequest(c, "name is required")
		return
	}

	folder := &db.Folder{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Name:      req.Name,
	}
	if err := h.store.CreateFolder(folder); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondCreated(c, folder, "")
}

// DeleteFolder removes a folder; its sessions are kept, ungrouped
func (h *Handlers) DeleteFolder(c *gin.Context) {
	if err := h.store.DeleteFolder(c.Param("id")); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// ListRunCommands returns a project's saved commands
func (h *Handlers) ListRunCommands(c *gin.Context) {
	commands, err := h.store.ListRunCommands(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, commands)
}

// CreateRunCommand saves a command for a project
func (h *Handlers) CreateRunCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Command == "" {
		RespondBadRequest(c, "command is required")
		return
	}

	rc := &db.RunCommand{
		ID:        uuid.NewString(),
		ProjectID: c.Param("id"),
		Command:   req.Command,
	}
	if err := h.store.CreateRunCommand(rc); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondCreated(c, rc, "")
}
