package parser

import (
	"fmt"
	"time"
)

// GeminiParser translates the Gemini CLI's line-delimited JSON events. The
// backend provides no stable item ids for streamed content, so delta
// accumulation keys on the panel fallback, and tool calls key on callId.
type GeminiParser struct {
	acc *accumulator
}

// NewGeminiParser creates a parser with its own accumulator state
func NewGeminiParser() *GeminiParser {
	return &GeminiParser{acc: newAccumulator()}
}

// geminiDenied drops progress pings and token statistics
var geminiDenied = map[string]bool{
	"loading": true,
	"stats":   true,
	"quota":   true,
	"usage":   true,
	"init":    true,
}

// Parse implements the Parser contract for Gemini events
func (p *GeminiParser) Parse(eventType string, params map[string]any, panelID string) []*NormalizedEntry {
	if geminiDenied[eventType] {
		return nil
	}

	switch eventType {
	case "user":
		return one(&NormalizedEntry{
			ID:        geminiMessageID(params, panelID),
			Timestamp: time.Now(),
			EntryType: EntryUserMessage,
			Content:   geminiText(params),
		})

	case "content", "assistant_delta":
		// Streamed model output; no stable id, accumulate per panel
		return one(p.acc.append(panelFallbackKey(panelID), EntryAssistantMessage, geminiText(params)))

	case "assistant", "gemini":
		key := panelFallbackKey(panelID)
		if p.acc.pending(key) {
			return one(p.acc.finalize(key))
		}
		return one(&NormalizedEntry{
			ID:        geminiMessageID(params, panelID),
			Timestamp: time.Now(),
			EntryType: EntryAssistantMessage,
			Content:   geminiText(params),
		})

	case "thought":
		return one(&NormalizedEntry{
			ID:        geminiMessageID(params, panelID),
			Timestamp: time.Now(),
			EntryType: EntryThinking,
			Content:   geminiText(params),
		})

	case "tool_call":
		callID := stringOr(params, "callId", "")
		name := stringOr(params, "name", "")
		args, _ := params["args"].(map[string]any)
		return one(&NormalizedEntry{
			ID:         callID,
			Timestamp:  time.Now(),
			EntryType:  EntryToolUse,
			Content:    toolUseContent(name, args),
			ToolName:   name,
			ToolUseID:  callID,
			ToolStatus: ToolStatusPending,
			Action:     DeriveAction(name, args),
		})

	case "tool_result":
		callID := stringOr(params, "callId", "")
		status := ToolStatusSuccess
		if stringOr(params, "status", "") == "error" {
			status = ToolStatusFailed
		}
		return one(&NormalizedEntry{
			ID:         callID + ":result",
			Timestamp:  time.Now(),
			EntryType:  EntryToolResult,
			Content:    geminiText(params),
			ToolUseID:  callID,
			ToolStatus: status,
		})

	case "turn_complete", "result":
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
			Content:   geminiText(params),
			Metadata:  params,
		})

	default:
		return one(wrapUnknown(eventType, params))
	}
}

func geminiText(params map[string]any) string {
	for _, key := range []string{"text", "message", "content", "output"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func geminiMessageID(params map[string]any, panelID string) string {
	if id, ok := params["messageId"].(float64); ok {
		return fmt.Sprintf("%s:%d", panelID, int(id))
	}
	return ""
}
