package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/KKould/snowtree/agent"
	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/execution"
	"github.com/KKould/snowtree/panel"
	"github.com/KKould/snowtree/parser"
)

// consume drains one executor's event stream for the life of the process
func (m *Manager) consume(toolType string, ex agent.Executor) {
	defer m.wg.Done()
	for ev := range ex.Events() {
		switch ev.Type {
		case agent.EventOutput:
			m.handleOutput(toolType, ev)
		case agent.EventSessionID:
			if err := m.store.UpdateSessionAgentID(ev.SessionID, ev.AgentSessionID); err != nil {
				logger.Warn().Err(err).Str("session", ev.SessionID).Msg("failed to persist agent session id")
			}
		case agent.EventExit:
			m.handleExit(ev)
		case agent.EventError:
			logger.Error().Err(ev.Err).Str("panel", ev.PanelID).Msg("agent stream error")
			m.broadcast(ev.PanelID, parser.NormalizedEntry{
				ID:        "stream-error",
				Timestamp: time.Now(),
				EntryType: parser.EntryErrorMessage,
				Content:   ev.Err.Error(),
			})
		}
	}
}

// handleOutput archives the raw line, runs it through the panel's parser,
// and fans the normalized entry out to subscribers. Finalized entries are
// also persisted to the conversation transcript.
func (m *Manager) handleOutput(toolType string, ev agent.Event) {
	raw := string(ev.Line)
	if err := m.store.InsertSessionOutput(&db.SessionOutput{
		SessionID: ev.SessionID,
		PanelID:   &ev.PanelID,
		Output:    raw,
	}); err != nil {
		logger.Debug().Err(err).Str("session", ev.SessionID).Msg("failed to archive raw output")
	}

	var params map[string]any
	if err := json.Unmarshal(ev.Line, &params); err != nil {
		// Non-JSON output (CLI banners, stray prints) surfaces as-is
		m.broadcast(ev.PanelID, parser.NormalizedEntry{
			Timestamp: time.Now(),
			EntryType: parser.EntrySystemMessage,
			Content:   raw,
		})
		return
	}

	eventType, _ := params["type"].(string)
	entries := m.panelParser(ev.PanelID, toolType).Parse(eventType, params, ev.PanelID)
	for _, entry := range entries {
		m.broadcast(ev.PanelID, *entry)
		if !entry.Streaming {
			m.persistEntry(ev.SessionID, ev.PanelID, entry)
		}
		if entry.TurnComplete {
			failed := entry.EntryType == parser.EntryErrorMessage
			m.finishTurn(ev.SessionID, ev.PanelID, failed, "backend reported turn error")
		}
	}
}

// handleExit settles a process that died. The normal path closes the turn on
// the backend's terminal event while the process stays alive for follow-ups;
// this is the fallback for crashes and interrupts mid-turn.
func (m *Manager) handleExit(ev agent.Event) {
	m.finishTurn(ev.SessionID, ev.PanelID, ev.ExitCode != 0, "agent process exited non-zero")

	logger.Info().Str("session", ev.SessionID).Str("panel", ev.PanelID).
		Int("exitCode", ev.ExitCode).Msg("agent process ended")
}

// finishTurn closes the execution bracket and the assistant timeline
// operation, records the turn's diff, and settles the session status.
// Idempotent: a terminal event followed by process exit settles once.
func (m *Manager) finishTurn(sessionID, panelID string, failed bool, detail string) {
	m.mu.Lock()
	op := m.turnOps[sessionID]
	delete(m.turnOps, sessionID)
	m.mu.Unlock()

	tracking := m.tracker.IsTracking(sessionID)
	if op == nil && !tracking {
		return
	}

	if op != nil {
		if failed {
			op.Fail(1, detail, nil)
		} else {
			op.Finish(0, nil)
		}
	}

	if _, err := m.tracker.EndExecution(context.Background(), sessionID); err != nil &&
		!errors.Is(err, execution.ErrNotTracking) {
		logger.Error().Err(err).Str("session", sessionID).Msg("failed to record execution diff")
	}

	m.markRunning(panelID, false)

	status := db.SessionStatusWaiting
	if failed {
		status = db.SessionStatusError
	}
	if err := m.store.UpdateSessionStatus(sessionID, status); err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("failed to update status on turn end")
	}

	logger.Info().Str("session", sessionID).Str("panel", panelID).
		Bool("failed", failed).Msg("agent turn ended")
}

// panelParser returns the panel's parser, creating it on first use. One
// parser per panel keeps streaming accumulation isolated.
func (m *Manager) panelParser(panelID, toolType string) parser.Parser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.parsers[panelID]; ok {
		return p
	}
	var p parser.Parser
	switch toolType {
	case panel.TypeCodex:
		p = parser.NewCodexParser()
	case panel.TypeGemini:
		p = parser.NewGeminiParser()
	default:
		p = parser.NewClaudeParser()
	}
	m.parsers[panelID] = p
	return p
}

// persistEntry appends a finalized normalized entry to the transcript
func (m *Manager) persistEntry(sessionID, panelID string, entry *parser.NormalizedEntry) {
	msg := &db.ConversationMessage{
		SessionID: sessionID,
		PanelID:   &panelID,
		EntryID:   entry.ID,
		EntryType: string(entry.EntryType),
		Content:   entry.Content,
		Timestamp: entry.Timestamp.UnixMilli(),
	}
	if entry.ToolName != "" {
		msg.ToolName = &entry.ToolName
	}
	if entry.ToolUseID != "" {
		msg.ToolUseID = &entry.ToolUseID
	}
	if entry.ToolStatus != "" {
		status := string(entry.ToolStatus)
		msg.ToolStatus = &status
	}
	if entry.Action != nil {
		actionType := entry.Action.Kind
		msg.ActionType = &actionType
	}
	if len(entry.Metadata) > 0 {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			meta := string(data)
			msg.Metadata = &meta
		}
	}
	if err := m.store.InsertConversationMessage(msg); err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("failed to persist conversation message")
	}
}

// SubscribeEntries streams a panel's normalized entries. The returned cancel
// function must be called to release the subscription.
func (m *Manager) SubscribeEntries(panelID string) (<-chan parser.NormalizedEntry, func()) {
	ch := make(chan parser.NormalizedEntry, 64)

	m.mu.Lock()
	subs, ok := m.subscribers[panelID]
	if !ok {
		subs = make(map[chan parser.NormalizedEntry]struct{})
		m.subscribers[panelID] = subs
	}
	subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if subs, ok := m.subscribers[panelID]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(m.subscribers, panelID)
			}
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// broadcast fans an entry out to the panel's subscribers without blocking
// the consumer loop; slow subscribers drop entries.
func (m *Manager) broadcast(panelID string, entry parser.NormalizedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers[panelID] {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Transcript returns a session's persisted conversation messages
func (m *Manager) Transcript(sessionID string) ([]db.ConversationMessage, error) {
	return m.store.ListConversationMessages(sessionID)
}
