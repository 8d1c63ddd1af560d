package db

import "database/sql"

// CreatePromptMarker inserts a prompt marker for a session
func (s *Store) CreatePromptMarker(m *PromptMarker) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = NowMs()
	}
	_, err := s.db.Exec(`
		INSERT INTO prompt_markers (id, session_id, prompt, display_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.SessionID, m.Prompt, m.DisplayOrder, m.CreatedAt)
	return err
}

// GetPromptMarker retrieves a marker by id, nil if not found
func (s *Store) GetPromptMarker(id string) (*PromptMarker, error) {
	var m PromptMarker
	err := s.db.QueryRow(`
		SELECT id, session_id, prompt, display_order, created_at
		FROM prompt_markers WHERE id = ?
	`, id).Scan(&m.ID, &m.SessionID, &m.Prompt, &m.DisplayOrder, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListPromptMarkers returns a session's markers in display order
func (s *Store) ListPromptMarkers(sessionID string) ([]PromptMarker, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, prompt, display_order, created_at
		FROM prompt_markers WHERE session_id = ? ORDER BY display_order, created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromptMarker
	for rows.Next() {
		var m PromptMarker
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Prompt, &m.DisplayOrder, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeletePromptMarker removes a marker. execution_diffs referencing it get
// prompt_marker_id set to NULL by the schema.
func (s *Store) DeletePromptMarker(id string) error {
	_, err := s.db.Exec(`DELETE FROM prompt_markers WHERE id = ?`, id)
	return err
}
