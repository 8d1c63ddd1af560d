package db

import (
	"database/sql"
	"fmt"
)

// InsertConversationMessage appends one normalized entry to a session's transcript
func (s *Store) InsertConversationMessage(m *ConversationMessage) error {
	if m.Timestamp == 0 {
		m.Timestamp = NowMs()
	}
	res, err := s.db.Exec(`
		INSERT INTO conversation_messages (session_id, panel_id, entry_id, entry_type,
			content, tool_name, tool_use_id, tool_status, action_type, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.SessionID, NullString(m.PanelID), m.EntryID, m.EntryType, m.Content,
		NullString(m.ToolName), NullString(m.ToolUseID), NullString(m.ToolStatus),
		NullString(m.ActionType), NullString(m.Metadata), m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert conversation message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListConversationMessages returns a session's transcript in timestamp order
func (s *Store) ListConversationMessages(sessionID string) ([]ConversationMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, panel_id, entry_id, entry_type, content, tool_name,
			tool_use_id, tool_status, action_type, metadata, timestamp
		FROM conversation_messages WHERE session_id = ? ORDER BY timestamp, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		var panelID, toolName, toolUseID, toolStatus, actionType, metadata sql.NullString
		err := rows.Scan(&m.ID, &m.SessionID, &panelID, &m.EntryID, &m.EntryType,
			&m.Content, &toolName, &toolUseID, &toolStatus, &actionType, &metadata, &m.Timestamp)
		if err != nil {
			return nil, err
		}
		m.PanelID = StringPtr(panelID)
		m.ToolName = StringPtr(toolName)
		m.ToolUseID = StringPtr(toolUseID)
		m.ToolStatus = StringPtr(toolStatus)
		m.ActionType = StringPtr(actionType)
		m.Metadata = StringPtr(metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}
