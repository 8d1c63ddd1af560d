package parser

import (
	"strings"
	"time"
)

// CodexParser translates Codex protocol notifications. The CLI emits
// JSON-RPC-style lines whose "method" names the event and whose params carry
// an item/call id used for delta accumulation.
type CodexParser struct {
	acc *accumulator
}

// NewCodexParser creates a parser with its own accumulator state
func NewCodexParser() *CodexParser {
	return &CodexParser{acc: newAccumulator()}
}

// codexDenied lists high-volume notification methods dropped outright
var codexDenied = map[string]bool{
	"token_count":  true,
	"task_started": true,
	"turn_context": true,
	"session_meta": true,
	"progress":     true,
	"raw_output":   true,
}

// Parse implements the Parser contract for Codex notifications
func (p *CodexParser) Parse(method string, params map[string]any, panelID string) []*NormalizedEntry {
	if codexDenied[method] {
		return nil
	}

	switch method {
	case "agent_message_delta":
		return one(p.acc.append(p.key(params, panelID), EntryAssistantMessage, stringOr(params, "delta", "")))

	case "agent_reasoning_delta":
		return one(p.acc.append(p.key(params, panelID), EntryThinking, stringOr(params, "delta", "")))

	case "agent_message":
		// Complete message: prefer the finalized accumulator entry when one
		// exists (deltas already delivered the text), else emit directly.
		key := p.key(params, panelID)
		if p.acc.pending(key) {
			return one(p.acc.finalize(key))
		}
		return one(&NormalizedEntry{
			ID:        key,
			Timestamp: time.Now(),
			EntryType: EntryAssistantMessage,
			Content:   stringOr(params, "message", ""),
		})

	case "agent_reasoning":
		key := p.key(params, panelID)
		if p.acc.pending(key) {
			return one(p.acc.finalize(key))
		}
		return one(&NormalizedEntry{
			ID:        key,
			Timestamp: time.Now(),
			EntryType: EntryThinking,
			Content:   stringOr(params, "text", ""),
		})

	case "exec_command_begin":
		callID := stringOr(params, "call_id", "")
		command := codexCommand(params)
		return one(&NormalizedEntry{
			ID:         callID,
			Timestamp:  time.Now(),
			EntryType:  EntryToolUse,
			Content:    command,
			ToolName:   "exec",
			ToolUseID:  callID,
			ToolStatus: ToolStatusPending,
			Action:     &Action{Kind: ActionCommandRun, Command: command},
		})

	case "exec_command_end":
		callID := stringOr(params, "call_id", "")
		exitCode, _ := params["exit_code"].(float64)
		status := ToolStatusSuccess
		if exitCode != 0 {
			status = ToolStatusFailed
		}
		return one(&NormalizedEntry{
			ID:         callID + ":result",
			Timestamp:  time.Now(),
			EntryType:  EntryToolResult,
			Content:    stringOr(params, "aggregated_output", ""),
			ToolUseID:  callID,
			ToolStatus: status,
		})

	case "patch_apply_begin":
		callID := stringOr(params, "call_id", "")
		return one(&NormalizedEntry{
			ID:         callID,
			Timestamp:  time.Now(),
			EntryType:  EntryToolUse,
			Content:    "applying patch",
			ToolName:   "apply_patch",
			ToolUseID:  callID,
			ToolStatus: ToolStatusPending,
			Action:     &Action{Kind: ActionFileEdit, Path: firstChangedPath(params)},
		})

	case "patch_apply_end":
		callID := stringOr(params, "call_id", "")
		success, _ := params["success"].(bool)
		status := ToolStatusSuccess
		if !success {
			status = ToolStatusFailed
		}
		return one(&NormalizedEntry{
			ID:         callID + ":result",
			Timestamp:  time.Now(),
			EntryType:  EntryToolResult,
			Content:    stringOr(params, "stdout", ""),
			ToolUseID:  callID,
			ToolStatus: status,
		})

	case "task_complete":
		// Terminal event for the turn: flush any dangling stream state
		var out []*NormalizedEntry
		if flushed := p.acc.finalize(panelFallbackKey(panelID)); flushed != nil {
			out = append(out, flushed)
		}
		return append(out, &NormalizedEntry{
			Timestamp:    time.Now(),
			EntryType:    EntrySystemMessage,
			Content:      "turn completed",
			TurnComplete: true,
			Metadata:     params,
		})

	case "error":
		return one(&NormalizedEntry{
			Timestamp: time.Now(),
			EntryType: EntryErrorMessage,
			Content:   stringOr(params, "message", "unknown error"),
			Metadata:  params,
		})

	default:
		return one(wrapUnknown(method, params))
	}
}

// key prefers the backend's item id, falling back to the panel key when the
// notification has no stable id.
func (p *CodexParser) key(params map[string]any, panelID string) string {
	if id := stringOr(params, "item_id", ""); id != "" {
		return id
	}
	if id := stringOr(params, "call_id", ""); id != "" {
		return id
	}
	return panelFallbackKey(panelID)
}

func codexCommand(params map[string]any) string {
	if cmd := stringOr(params, "command", ""); cmd != "" {
		return cmd
	}
	// command may arrive as argv
	if argv, ok := params["command"].([]any); ok {
		var parts []string
		for _, a := range argv {
			if s, ok := a.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func firstChangedPath(params map[string]any) string {
	changes, ok := params["changes"].(map[string]any)
	if !ok {
		return ""
	}
	for path := range changes {
		return path
	}
	return ""
}
