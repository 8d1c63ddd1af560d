package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertExecutionDiff appends one immutable diff record and fills in its row id
func (s *Store) InsertExecutionDiff(d *ExecutionDiff) error {
	files, err := json.Marshal(d.FilesChanged)
	if err != nil {
		return fmt.Errorf("marshal files changed: %w", err)
	}
	if d.Timestamp == 0 {
		d.Timestamp = NowMs()
	}

	res, err := s.db.Exec(`
		INSERT INTO execution_diffs (session_id, prompt_marker_id, execution_sequence,
			git_diff, files_changed, stats_additions, stats_deletions, stats_files_changed,
			before_commit_hash, after_commit_hash, commit_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.SessionID, NullString(d.PromptMarkerID), d.ExecutionSequence,
		d.GitDiff, string(files), d.StatsAdditions, d.StatsDeletions, d.StatsFilesChanged,
		d.BeforeCommitHash, d.AfterCommitHash, d.CommitMessage, d.Timestamp)
	if err != nil {
		return fmt.Errorf("insert execution diff: %w", err)
	}

	d.ID, err = res.LastInsertId()
	return err
}

// ListExecutionDiffs returns a session's diffs ordered by execution sequence
func (s *Store) ListExecutionDiffs(sessionID string) ([]ExecutionDiff, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, prompt_marker_id, execution_sequence, git_diff,
			files_changed, stats_additions, stats_deletions, stats_files_changed,
			before_commit_hash, after_commit_hash, commit_message, timestamp
		FROM execution_diffs WHERE session_id = ? ORDER BY execution_sequence
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionDiff
	for rows.Next() {
		d, err := scanExecutionDiff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MaxExecutionSequence returns the highest execution sequence recorded for a
// session, 0 if none.
func (s *Store) MaxExecutionSequence(sessionID string) (int, error) {
	var seq int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(execution_sequence), 0) FROM execution_diffs WHERE session_id = ?
	`, sessionID).Scan(&seq)
	return seq, err
}

func scanExecutionDiff(row interface{ Scan(...any) error }) (ExecutionDiff, error) {
	var d ExecutionDiff
	var promptMarkerID sql.NullString
	var files string
	err := row.Scan(&d.ID, &d.SessionID, &promptMarkerID, &d.ExecutionSequence, &d.GitDiff,
		&files, &d.StatsAdditions, &d.StatsDeletions, &d.StatsFilesChanged,
		&d.BeforeCommitHash, &d.AfterCommitHash, &d.CommitMessage, &d.Timestamp)
	if err != nil {
		return d, err
	}
	d.PromptMarkerID = StringPtr(promptMarkerID)

	if err := json.Unmarshal([]byte(files), &d.FilesChanged); err != nil {
		d.FilesChanged = nil
	}
	if d.FilesChanged == nil {
		d.FilesChanged = []string{}
	}
	return d, nil
}
