package db

import "database/sql"

// SetUIState upserts a UI state value by key
func (s *Store) SetUIState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO ui_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, NowMs())
	return err
}

// GetUIState returns a UI state value, empty string if unset
func (s *Store) GetUIState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM ui_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPreference upserts a user preference by key
func (s *Store) SetPreference(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, NowMs())
	return err
}

// GetPreference returns a user preference, empty string if unset
func (s *Store) GetPreference(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM user_preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RecordAppOpen appends an app launch timestamp
func (s *Store) RecordAppOpen() error {
	_, err := s.db.Exec(`INSERT INTO app_opens (opened_at) VALUES (?)`, NowMs())
	return err
}
