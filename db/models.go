package db

import (
	"database/sql"
	"time"
)

// Session status values. Archival is a terminal status, not deletion.
const (
	SessionStatusPending  = "pending"
	SessionStatusRunning  = "running"
	SessionStatusWaiting  = "waiting"
	SessionStatusError    = "error"
	SessionStatusArchived = "archived"
)

// Session represents one agent session bound to a git worktree
type Session struct {
	ID             string  `json:"id"`
	ProjectID      *string `json:"projectId,omitempty"`
	FolderID       *string `json:"folderId,omitempty"`
	Name           string  `json:"name"`
	InitialPrompt  string  `json:"initialPrompt"`
	WorktreePath   string  `json:"worktreePath"`
	Status         string  `json:"status"`
	ActivePanelID  *string `json:"activePanelId,omitempty"`
	ToolType       string  `json:"toolType"`
	AgentSessionID *string `json:"agentSessionId,omitempty"`
	DisplayOrder   int     `json:"displayOrder"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// PanelState is the mutable per-panel state blob
type PanelState struct {
	IsActive      bool           `json:"isActive"`
	HasBeenViewed bool           `json:"hasBeenViewed"`
	CustomState   map[string]any `json:"customState,omitempty"`
}

// PanelMetadata describes panel placement and protection
type PanelMetadata struct {
	CreatedAt    int64  `json:"createdAt"`
	LastActiveAt *int64 `json:"lastActiveAt,omitempty"`
	Position     int    `json:"position"`
	Permanent    bool   `json:"permanent,omitempty"`
}

// ToolPanel represents one tool/agent tab bound to a session
type ToolPanel struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	Type      string        `json:"type"`
	Title     string        `json:"title"`
	State     PanelState    `json:"state"`
	Metadata  PanelMetadata `json:"metadata"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

// ExecutionDiff is the persisted, immutable record of one agent turn's
// file changes. Append-only.
type ExecutionDiff struct {
	ID                int64    `json:"id"`
	SessionID         string   `json:"sessionId"`
	PromptMarkerID    *string  `json:"promptMarkerId,omitempty"`
	ExecutionSequence int      `json:"executionSequence"`
	GitDiff           string   `json:"gitDiff"`
	FilesChanged      []string `json:"filesChanged"`
	StatsAdditions    int      `json:"statsAdditions"`
	StatsDeletions    int      `json:"statsDeletions"`
	StatsFilesChanged int      `json:"statsFilesChanged"`
	BeforeCommitHash  string   `json:"beforeCommitHash"`
	AfterCommitHash   string   `json:"afterCommitHash"`
	CommitMessage     string   `json:"commitMessage"`
	Timestamp         int64    `json:"timestamp"`
}

// Timeline event kinds
const (
	TimelineKindChatUser        = "chat.user"
	TimelineKindChatAssistant   = "chat.assistant"
	TimelineKindCLICommand      = "cli.command"
	TimelineKindGitCommand      = "git.command"
	TimelineKindWorktreeCommand = "worktree.command"
)

// Timeline event statuses
const (
	TimelineStatusStarted  = "started"
	TimelineStatusFinished = "finished"
	TimelineStatusFailed   = "failed"
)

// TimelineEvent is one row of the append-only per-session audit log.
// A logical operation is two rows (started, then finished/failed)
// correlated by the operation id in Meta["operationId"].
type TimelineEvent struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"sessionId"`
	Seq        int64          `json:"seq"`
	Timestamp  int64          `json:"timestamp"`
	Kind       string         `json:"kind"`
	Status     string         `json:"status"`
	Command    *string        `json:"command,omitempty"`
	Cwd        *string        `json:"cwd,omitempty"`
	DurationMs *int64         `json:"durationMs,omitempty"`
	ExitCode   *int64         `json:"exitCode,omitempty"`
	ToolID     *string        `json:"toolId,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// PromptMarker links an execution to the prompt that started it
type PromptMarker struct {
	ID           string `json:"id"`
	SessionID    string `json:"sessionId"`
	Prompt       string `json:"prompt"`
	DisplayOrder int    `json:"displayOrder"`
	CreatedAt    int64  `json:"createdAt"`
}

// ConversationMessage is one persisted normalized entry of a panel transcript
type ConversationMessage struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"sessionId"`
	PanelID    *string `json:"panelId,omitempty"`
	EntryID    string  `json:"entryId"`
	EntryType  string  `json:"entryType"`
	Content    string  `json:"content"`
	ToolName   *string `json:"toolName,omitempty"`
	ToolUseID  *string `json:"toolUseId,omitempty"`
	ToolStatus *string `json:"toolStatus,omitempty"`
	ActionType *string `json:"actionType,omitempty"`
	Metadata   *string `json:"metadata,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// SessionOutput is one raw output chunk archived for parser debugging
type SessionOutput struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"sessionId"`
	PanelID   *string `json:"panelId,omitempty"`
	Output    string  `json:"output"`
	Timestamp int64   `json:"timestamp"`
}

// Project is a repository registered with the app
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	DisplayOrder int    `json:"displayOrder"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// Folder groups sessions within a project
type Folder struct {
	ID           string  `json:"id"`
	ProjectID    *string `json:"projectId,omitempty"`
	Name         string  `json:"name"`
	DisplayOrder int     `json:"displayOrder"`
	CreatedAt    int64   `json:"createdAt"`
}

// RunCommand is a saved per-project command
type RunCommand struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId"`
	Command      string `json:"command"`
	DisplayOrder int    `json:"displayOrder"`
	CreatedAt    int64  `json:"createdAt"`
}

// NowMs returns the current time as Unix milliseconds (int64)
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NullString converts *string to sql.NullString
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts sql.NullString to *string
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// IntPtr converts sql.NullInt64 to *int64
func IntPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
