// Package agent supervises AI CLI subprocesses. Each backend (claude, codex,
// gemini) gets its own Executor implementation sharing a line-streaming
// process core; raw output lines are handed to the parser layer, which
// absorbs the protocol differences.
package agent

import (
	"context"
	"errors"

	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("AGENT")

var (
	// ErrProcessNotFound means the panel has no live process
	ErrProcessNotFound = errors.New("no running process for panel")

	// ErrSpawnFailure wraps OS-level spawn errors
	ErrSpawnFailure = errors.New("failed to spawn agent process")
)

// EventType is the closed set of executor event kinds
type EventType int

const (
	// EventOutput carries one raw JSON line from the backend's stdout
	EventOutput EventType = iota
	// EventSessionID reports the backend-assigned agent session id
	EventSessionID
	// EventExit reports process termination
	EventExit
	// EventError reports a stream or process failure
	EventError
)

// Event is one asynchronous notification from a running agent process
type Event struct {
	Type           EventType
	PanelID        string
	SessionID      string
	Line           []byte // EventOutput
	AgentSessionID string // EventSessionID
	ExitCode       int    // EventExit
	Err            error  // EventError
}

// SpawnOptions describes how to launch one agent turn
type SpawnOptions struct {
	PanelID      string
	SessionID    string
	WorktreePath string
	Prompt       string
	Model        string

	// PermissionMode selects the backend's permission posture
	// (e.g. "default", "acceptEdits", "bypassPermissions")
	PermissionMode string

	// ResumeSessionID resumes an existing backend conversation
	ResumeSessionID string

	// Continue resumes the most recent conversation in the worktree
	Continue bool

	// Env adds to the inherited environment
	Env map[string]string
}

// Executor is the uniform contract over heterogeneous agent backends.
// Spawn never blocks on process output: events arrive asynchronously on
// Events(). Interrupt is best-effort signal delivery; callers observe the
// subsequent EventExit to know the process actually stopped.
type Executor interface {
	Spawn(ctx context.Context, opts SpawnOptions) error
	Interrupt(panelID string) error
	SendFollowUp(panelID string, message string) error
	Events() <-chan Event
	Stop()
}
