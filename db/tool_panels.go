package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SavePanel upserts a tool panel row. State and metadata are stored as JSON.
func (s *Store) SavePanel(p *ToolPanel) error {
	state, err := json.Marshal(p.State)
	if err != nil {
		return fmt.Errorf("marshal panel state: %w", err)
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal panel metadata: %w", err)
	}

	now := NowMs()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO tool_panels (id, session_id, type, title, state, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, p.ID, p.SessionID, p.Type, p.Title, string(state), string(meta), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save panel: %w", err)
	}
	return nil
}

// GetPanel retrieves a panel by id, returns nil if not found
func (s *Store) GetPanel(id string) (*ToolPanel, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, type, title, state, metadata, created_at, updated_at
		FROM tool_panels WHERE id = ?
	`, id)
	p, err := scanToolPanel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPanels returns every panel in the store, oldest first
func (s *Store) ListPanels() ([]ToolPanel, error) {
	return s.queryPanels(`
		SELECT id, session_id, type, title, state, metadata, created_at, updated_at
		FROM tool_panels ORDER BY created_at
	`)
}

// ListSessionPanels returns the panels for one session, oldest first
func (s *Store) ListSessionPanels(sessionID string) ([]ToolPanel, error) {
	return s.queryPanels(`
		SELECT id, session_id, type, title, state, metadata, created_at, updated_at
		FROM tool_panels WHERE session_id = ? ORDER BY created_at
	`, sessionID)
}

// DeletePanel removes a panel row
func (s *Store) DeletePanel(id string) error {
	_, err := s.db.Exec(`DELETE FROM tool_panels WHERE id = ?`, id)
	return err
}

// DeletePanels removes a set of panel rows atomically; either every panel
// goes or none do.
func (s *Store) DeletePanels(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Transaction(func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM tool_panels WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete panel %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) queryPanels(query string, args ...any) ([]ToolPanel, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolPanel
	for rows.Next() {
		p, err := scanToolPanel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanToolPanel reads a panel row. Corrupt state/metadata JSON is recovered
// to zero values with a warning instead of failing the load; a panel with
// defaulted state is recoverable, a load error is not.
func scanToolPanel(row interface{ Scan(...any) error }) (ToolPanel, error) {
	var p ToolPanel
	var state, meta string
	err := row.Scan(&p.ID, &p.SessionID, &p.Type, &p.Title, &state, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	if err := json.Unmarshal([]byte(state), &p.State); err != nil {
		logger.Warn().Str("panel", p.ID).Err(err).Msg("corrupt panel state, resetting to defaults")
		p.State = PanelState{}
	}
	if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
		logger.Warn().Str("panel", p.ID).Err(err).Msg("corrupt panel metadata, resetting to defaults")
		p.Metadata = PanelMetadata{CreatedAt: p.CreatedAt}
	}

	return p, nil
}
