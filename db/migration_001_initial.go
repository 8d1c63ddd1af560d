package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Initial schema: sessions, panels, execution diffs, timeline",
		Up:          migration001_initial,
	})
}

func migration001_initial(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS project_run_commands (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			command TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
			folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
			name TEXT NOT NULL,
			initial_prompt TEXT NOT NULL DEFAULT '',
			worktree_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			active_panel_id TEXT,
			tool_type TEXT NOT NULL DEFAULT 'claude',
			agent_session_id TEXT,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tool_panels (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_panels_session
			ON tool_panels(session_id, created_at);

		CREATE TABLE IF NOT EXISTS session_outputs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			panel_id TEXT,
			output TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_outputs_session
			ON session_outputs(session_id, timestamp);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			panel_id TEXT,
			entry_id TEXT NOT NULL DEFAULT '',
			entry_type TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT,
			tool_use_id TEXT,
			tool_status TEXT,
			action_type TEXT,
			metadata TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_messages_session
			ON conversation_messages(session_id, timestamp);

		CREATE TABLE IF NOT EXISTS prompt_markers (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			prompt TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_prompt_markers_session
			ON prompt_markers(session_id, display_order);

		CREATE TABLE IF NOT EXISTS execution_diffs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			prompt_marker_id TEXT REFERENCES prompt_markers(id) ON DELETE SET NULL,
			execution_sequence INTEGER NOT NULL,
			git_diff TEXT NOT NULL DEFAULT '',
			files_changed TEXT NOT NULL DEFAULT '[]',
			stats_additions INTEGER NOT NULL DEFAULT 0,
			stats_deletions INTEGER NOT NULL DEFAULT 0,
			stats_files_changed INTEGER NOT NULL DEFAULT 0,
			before_commit_hash TEXT NOT NULL DEFAULT '',
			after_commit_hash TEXT NOT NULL DEFAULT '',
			commit_message TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_execution_diffs_session
			ON execution_diffs(session_id, execution_sequence);

		-- timeline_events has no FK on session_id on purpose: events may be
		-- recorded for ephemeral or pre-creation operations, and they outlive
		-- session deletion (the audit log never rewrites history).
		CREATE TABLE IF NOT EXISTS timeline_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			command TEXT,
			cwd TEXT,
			duration_ms INTEGER,
			exit_code INTEGER,
			tool_id TEXT,
			meta TEXT,
			UNIQUE(session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_timeline_events_session
			ON timeline_events(session_id, seq);

		CREATE TABLE IF NOT EXISTS ui_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS app_opens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			opened_at INTEGER NOT NULL
		);
	`)
	return err
}
