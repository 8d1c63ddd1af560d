// Package parser normalizes the heterogeneous wire formats of AI CLI
// backends (Claude stream-json, Codex JSON-RPC-style notifications, Gemini
// line-delimited JSON) into one canonical entry model. Parsers are
// stateless except for streaming-delta accumulation, which each parser
// instance owns; construct one parser per panel stream.
package parser

import "time"

// EntryType classifies a normalized entry
type EntryType string

const (
	EntryUserMessage      EntryType = "user_message"
	EntryAssistantMessage EntryType = "assistant_message"
	EntryThinking         EntryType = "thinking"
	EntryToolUse          EntryType = "tool_use"
	EntryToolResult       EntryType = "tool_result"
	EntrySystemMessage    EntryType = "system_message"
	EntryErrorMessage     EntryType = "error_message"
)

// ToolStatus tracks a tool invocation's lifecycle
type ToolStatus string

const (
	ToolStatusPending ToolStatus = "pending"
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusFailed  ToolStatus = "failed"
)

// Action kinds derived from tool names and inputs
const (
	ActionFileRead   = "file_read"
	ActionFileEdit   = "file_edit"
	ActionFileWrite  = "file_write"
	ActionCommandRun = "command_run"
	ActionWebFetch   = "web_fetch"
	ActionSearch     = "search"
	ActionOther      = "other"
)

// Action is the tagged variant describing what a tool invocation does,
// for UI affordances. Exactly one payload field is set per kind.
type Action struct {
	Kind        string `json:"kind"`
	Path        string `json:"path,omitempty"`
	Command     string `json:"command,omitempty"`
	URL         string `json:"url,omitempty"`
	Query       string `json:"query,omitempty"`
	Description string `json:"description,omitempty"`
}

// NormalizedEntry is the canonical, backend-agnostic representation of one
// unit of agent output or tool activity. For streaming entries the ID is
// stable across deltas and Content always carries the full accumulated text
// so far; consumers never reassemble deltas themselves.
type NormalizedEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EntryType  EntryType      `json:"entryType"`
	Content    string         `json:"content"`
	ToolName   string         `json:"toolName,omitempty"`
	ToolUseID  string         `json:"toolUseId,omitempty"`
	ToolStatus ToolStatus     `json:"toolStatus,omitempty"`
	Action     *Action        `json:"action,omitempty"`
	Streaming  bool           `json:"streaming,omitempty"`

	// TurnComplete marks the backend's terminal event for a turn. The
	// orchestrator closes the turn's execution and timeline brackets on it;
	// the process itself may stay alive for the next follow-up.
	TurnComplete bool `json:"turnComplete,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Parser is the per-backend translation contract. One backend event may
// normalize to several entries (an assistant message carrying text and
// tool_use blocks yields one entry per block). An empty slice means
// "suppress": deny-listed high-volume events produce nothing, and malformed
// input degrades to nothing rather than failing the stream.
type Parser interface {
	Parse(eventType string, params map[string]any, panelID string) []*NormalizedEntry
}

// one adapts a possibly-nil single entry to the Parse contract
func one(e *NormalizedEntry) []*NormalizedEntry {
	if e == nil {
		return nil
	}
	return []*NormalizedEntry{e}
}
