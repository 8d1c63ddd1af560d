package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// AppendTimelineEvent inserts one audit-log row, assigning the next gap-free
// per-session seq inside the insert itself. The single-writer connection
// serializes concurrent appends, so two racing writers can never observe the
// same MAX(seq).
func (s *Store) AppendTimelineEvent(ev *TimelineEvent) error {
	var meta sql.NullString
	if ev.Meta != nil {
		data, err := json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("marshal timeline meta: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = NowMs()
	}

	res, err := s.db.Exec(`
		INSERT INTO timeline_events (session_id, seq, timestamp, kind, status,
			command, cwd, duration_ms, exit_code, tool_id, meta)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM timeline_events WHERE session_id = ?1
	`, ev.SessionID, ev.Timestamp, ev.Kind, ev.Status,
		NullString(ev.Command), NullString(ev.Cwd), nullInt(ev.DurationMs),
		nullInt(ev.ExitCode), NullString(ev.ToolID), meta)
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	ev.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	return s.db.QueryRow(`SELECT seq FROM timeline_events WHERE id = ?`, ev.ID).Scan(&ev.Seq)
}

// ListTimelineEvents returns a session's events in seq order
func (s *Store) ListTimelineEvents(sessionID string) ([]TimelineEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, seq, timestamp, kind, status, command, cwd,
			duration_ms, exit_code, tool_id, meta
		FROM timeline_events WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineEvent
	for rows.Next() {
		ev, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOrphanTimelineEvents deletes timeline rows whose session no longer
// exists. Never called automatically: orphans are legal (no FK by design)
// and pruning is an explicit maintenance action.
func (s *Store) PruneOrphanTimelineEvents() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM timeline_events
		WHERE session_id NOT IN (SELECT id FROM sessions)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanTimelineEvent(row interface{ Scan(...any) error }) (TimelineEvent, error) {
	var ev TimelineEvent
	var command, cwd, toolID, meta sql.NullString
	var durationMs, exitCode sql.NullInt64
	err := row.Scan(&ev.ID, &ev.SessionID, &ev.Seq, &ev.Timestamp, &ev.Kind, &ev.Status,
		&command, &cwd, &durationMs, &exitCode, &toolID, &meta)
	if err != nil {
		return ev, err
	}
	ev.Command = StringPtr(command)
	ev.Cwd = StringPtr(cwd)
	ev.DurationMs = IntPtr(durationMs)
	ev.ExitCode = IntPtr(exitCode)
	ev.ToolID = StringPtr(toolID)
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &ev.Meta); err != nil {
			ev.Meta = nil
		}
	}
	return ev, nil
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
