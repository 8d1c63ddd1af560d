package db

import (
	"database/sql"
	"fmt"
)

const sessionColumns = `id, project_id, folder_id, name, initial_prompt, worktree_path,
	status, active_panel_id, tool_type, agent_session_id, display_order, created_at, updated_at`

// CreateSession inserts a new session record
func (s *Store) CreateSession(sess *Session) error {
	now := NowMs()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = SessionStatusPending
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, project_id, folder_id, name, initial_prompt, worktree_path,
			status, active_panel_id, tool_type, agent_session_id, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, NullString(sess.ProjectID), NullString(sess.FolderID), sess.Name,
		sess.InitialPrompt, sess.WorktreePath, sess.Status, NullString(sess.ActivePanelID),
		sess.ToolType, NullString(sess.AgentSessionID), sess.DisplayOrder, now, now)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions ordered for display
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY display_order, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionStatus updates a session's status
func (s *Store) UpdateSessionStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, NowMs(), id)
	return err
}

// UpdateSessionActivePanel records the session's active panel reference
func (s *Store) UpdateSessionActivePanel(id string, panelID *string) error {
	_, err := s.db.Exec(`UPDATE sessions SET active_panel_id = ?, updated_at = ? WHERE id = ?`,
		NullString(panelID), NowMs(), id)
	return err
}

// UpdateSessionAgentID stores the backend-assigned agent session id used for resume
func (s *Store) UpdateSessionAgentID(id, agentSessionID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET agent_session_id = ?, updated_at = ? WHERE id = ?`,
		agentSessionID, NowMs(), id)
	return err
}

// DeleteSession removes a session. tool_panels, session_outputs,
// conversation_messages, prompt_markers and execution_diffs cascade;
// timeline_events survive by design.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var projectID, folderID, activePanelID, agentSessionID sql.NullString
	err := row.Scan(&sess.ID, &projectID, &folderID, &sess.Name, &sess.InitialPrompt,
		&sess.WorktreePath, &sess.Status, &activePanelID, &sess.ToolType,
		&agentSessionID, &sess.DisplayOrder, &sess.CreatedAt, &sess.UpdatedAt)
	sess.ProjectID = StringPtr(projectID)
	sess.FolderID = StringPtr(folderID)
	sess.ActivePanelID = StringPtr(activePanelID)
	sess.AgentSessionID = StringPtr(agentSessionID)
	return sess, err
}
