package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("PARSER")

// ClaudeParser translates Claude CLI stream-json events. Event types are the
// "type" field of each output line: system, assistant, user, result, and
// stream_event (partial-message deltas when --include-partial-messages is on).
type ClaudeParser struct {
	acc *accumulator
}

// NewClaudeParser creates a parser with its own accumulator state
func NewClaudeParser() *ClaudeParser {
	return &ClaudeParser{acc: newAccumulator()}
}

// claudeDenied lists high-volume stream subtypes that carry no renderable
// content. Deliberately excluded from normalization (the timeline is audit
// focused, not a terminal replay).
var claudeDenied = map[string]bool{
	"message_start":       true,
	"message_delta":       true,
	"content_block_start": true,
	"ping":                true,
	"message_stop":        true,
	"control_request":     true,
	"control_response":    true,
}

// Parse implements the Parser contract for Claude stream-json
func (p *ClaudeParser) Parse(eventType string, params map[string]any, panelID string) []*NormalizedEntry {
	switch eventType {
	case "assistant":
		return p.parseAssistant(params)
	case "user":
		return p.parseUser(params)
	case "system":
		return one(p.parseSystem(params))
	case "result":
		return p.parseResult(params, panelID)
	case "stream_event":
		return one(p.parseStreamEvent(params, panelID))
	case "control_request", "control_response":
		return nil
	default:
		// Unknown event types become system messages so new backend events
		// are visible rather than silently dropped.
		return one(wrapUnknown(eventType, params))
	}
}

func (p *ClaudeParser) parseAssistant(params map[string]any) []*NormalizedEntry {
	message, ok := params["message"].(map[string]any)
	if !ok {
		return nil
	}
	blocks, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	// One entry per renderable block: a message carrying [text, tool_use]
	// must surface the tool invocation, not just the text.
	msgID := stringOr(params, "uuid", "")
	var out []*NormalizedEntry
	for i, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			text, _ := block["text"].(string)
			if text == "" {
				continue
			}
			out = append(out, &NormalizedEntry{
				ID:        blockID(msgID, i),
				Timestamp: time.Now(),
				EntryType: EntryAssistantMessage,
				Content:   text,
			})
		case "thinking":
			thinking, _ := block["thinking"].(string)
			if thinking == "" {
				continue
			}
			out = append(out, &NormalizedEntry{
				ID:        blockID(msgID, i),
				Timestamp: time.Now(),
				EntryType: EntryThinking,
				Content:   thinking,
			})
		case "tool_use":
			name, _ := block["name"].(string)
			id, _ := block["id"].(string)
			input, _ := block["input"].(map[string]any)
			out = append(out, &NormalizedEntry{
				ID:         id,
				Timestamp:  time.Now(),
				EntryType:  EntryToolUse,
				Content:    toolUseContent(name, input),
				ToolName:   name,
				ToolUseID:  id,
				ToolStatus: ToolStatusPending,
				Action:     DeriveAction(name, input),
			})
		}
	}
	return out
}

func (p *ClaudeParser) parseUser(params map[string]any) []*NormalizedEntry {
	message, ok := params["message"].(map[string]any)
	if !ok {
		return nil
	}

	// Tool results come back as user messages with tool_result blocks;
	// parallel tool use sends several in one message.
	var out []*NormalizedEntry
	if blocks, ok := message["content"].([]any); ok {
		for _, raw := range blocks {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if block["type"] != "tool_result" {
				continue
			}
			toolUseID, _ := block["tool_use_id"].(string)
			isError, _ := block["is_error"].(bool)
			status := ToolStatusSuccess
			if isError {
				status = ToolStatusFailed
			}
			out = append(out, &NormalizedEntry{
				ID:         toolUseID + ":result",
				Timestamp:  time.Now(),
				EntryType:  EntryToolResult,
				Content:    blockContentText(block["content"]),
				ToolUseID:  toolUseID,
				ToolStatus: status,
			})
		}
		return out
	}

	// Plain user text (echoed prompt)
	if text, ok := message["content"].(string); ok && text != "" {
		out = append(out, &NormalizedEntry{
			ID:        stringOr(params, "uuid", ""),
			Timestamp: time.Now(),
			EntryType: EntryUserMessage,
			Content:   text,
		})
	}
	return out
}

// blockID keeps entry ids unique when one message yields several blocks
func blockID(msgID string, index int) string {
	if msgID == "" || index == 0 {
		return msgID
	}
	return fmt.Sprintf("%s:%d", msgID, index)
}

func (p *ClaudeParser) parseSystem(params map[string]any) *NormalizedEntry {
	subtype, _ := params["subtype"].(string)
	if subtype == "init" {
		// Session metadata; the executor extracts session_id separately
		model, _ := params["model"].(string)
		return &NormalizedEntry{
			ID:        stringOr(params, "uuid", ""),
			Timestamp: time.Now(),
			EntryType: EntrySystemMessage,
			Content:   fmt.Sprintf("session started (model %s)", model),
			Metadata:  params,
		}
	}
	return wrapUnknown("system:"+subtype, params)
}

func (p *ClaudeParser) parseResult(params map[string]any, panelID string) []*NormalizedEntry {
	// Terminal event: close out any dangling streaming entry for the panel
	var out []*NormalizedEntry
	if flushed := p.acc.finalize(panelFallbackKey(panelID)); flushed != nil {
		out = append(out, flushed)
	}

	isError, _ := params["is_error"].(bool)
	resultText, _ := params["result"].(string)
	terminal := &NormalizedEntry{
		Timestamp:    time.Now(),
		EntryType:    EntrySystemMessage,
		Content:      "turn completed",
		TurnComplete: true,
		Metadata:     params,
	}
	if isError {
		terminal.EntryType = EntryErrorMessage
		terminal.Content = resultText
	}
	return append(out, terminal)
}

func (p *ClaudeParser) parseStreamEvent(params map[string]any, panelID string) *NormalizedEntry {
	event, ok := params["event"].(map[string]any)
	if !ok {
		return nil
	}
	eventType, _ := event["type"].(string)

	if claudeDenied[eventType] {
		return nil
	}

	key := streamKey(params, event, panelID)

	switch eventType {
	case "content_block_delta":
		delta, ok := event["delta"].(map[string]any)
		if !ok {
			return nil
		}
		switch delta["type"] {
		case "text_delta":
			text, _ := delta["text"].(string)
			return p.acc.append(key, EntryAssistantMessage, text)
		case "thinking_delta":
			thinking, _ := delta["thinking"].(string)
			return p.acc.append(key, EntryThinking, thinking)
		default:
			// input_json_delta and friends: tool input assembly is rendered
			// from the complete assistant message instead
			return nil
		}
	case "content_block_stop":
		return p.acc.finalize(key)
	default:
		return nil
	}
}

// streamKey picks the most stable id available for delta accumulation
func streamKey(params, event map[string]any, panelID string) string {
	if uuid, ok := params["uuid"].(string); ok && uuid != "" {
		if idx, ok := event["index"].(float64); ok {
			return fmt.Sprintf("%s:%d", uuid, int(idx))
		}
		return uuid
	}
	if idx, ok := event["index"].(float64); ok {
		return fmt.Sprintf("%s:%d", panelFallbackKey(panelID), int(idx))
	}
	return panelFallbackKey(panelID)
}

func panelFallbackKey(panelID string) string {
	return "panel:" + panelID
}

// wrapUnknown turns an unrecognized event into a generic system message
func wrapUnknown(eventType string, params map[string]any) *NormalizedEntry {
	logger.Debug().Str("eventType", eventType).Msg("unrecognized backend event, wrapping as system message")
	payload, err := json.Marshal(params)
	if err != nil {
		payload = []byte("{}")
	}
	return &NormalizedEntry{
		Timestamp: time.Now(),
		EntryType: EntrySystemMessage,
		Content:   fmt.Sprintf("%s: %s", eventType, payload),
		Metadata:  map[string]any{"eventType": eventType},
	}
}

func toolUseContent(name string, input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil || string(data) == "null" {
		return name
	}
	return fmt.Sprintf("%s %s", name, data)
}

func blockContentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					if out != "" {
						out += "\n"
					}
					out += text
				}
			}
		}
		return out
	default:
		return ""
	}
}

func stringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
