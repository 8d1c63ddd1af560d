package db

import "database/sql"

// InsertSessionOutput archives one raw output chunk for parser debugging
func (s *Store) InsertSessionOutput(o *SessionOutput) error {
	if o.Timestamp == 0 {
		o.Timestamp = NowMs()
	}
	res, err := s.db.Exec(`
		INSERT INTO session_outputs (session_id, panel_id, output, timestamp)
		VALUES (?, ?, ?, ?)
	`, o.SessionID, NullString(o.PanelID), o.Output, o.Timestamp)
	if err != nil {
		return err
	}
	o.ID, err = res.LastInsertId()
	return err
}

// ListSessionOutputs returns a session's raw output chunks in order
func (s *Store) ListSessionOutputs(sessionID string, limit int) ([]SessionOutput, error) {
	query := `
		SELECT id, session_id, panel_id, output, timestamp
		FROM session_outputs WHERE session_id = ? ORDER BY timestamp, id`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionOutput
	for rows.Next() {
		var o SessionOutput
		var panelID sql.NullString
		if err := rows.Scan(&o.ID, &o.SessionID, &panelID, &o.Output, &o.Timestamp); err != nil {
			return nil, err
		}
		o.PanelID = StringPtr(panelID)
		out = append(out, o)
	}
	return out, rows.Err()
}
