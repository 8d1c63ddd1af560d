package db

import "database/sql"

// CreateProject registers a repository with the app
func (s *Store) CreateProject(p *Project) error {
	now := NowMs()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, path, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Path, p.DisplayOrder, now, now)
	return err
}

// GetProject retrieves a project by id, nil if not found
func (s *Store) GetProject(id string) (*Project, error) {
	var p Project
	err := s.db.QueryRow(`
		SELECT id, name, path, display_order, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Path, &p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all projects in display order
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, path, display_order, created_at, updated_at
		FROM projects ORDER BY display_order, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.DisplayOrder, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project; folders and run commands cascade
func (s *Store) DeleteProject(id string) error {
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

// CreateRunCommand saves a per-project command
func (s *Store) CreateRunCommand(rc *RunCommand) error {
	if rc.CreatedAt == 0 {
		rc.CreatedAt = NowMs()
	}
	_, err := s.db.Exec(`
		INSERT INTO project_run_commands (id, project_id, command, display_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rc.ID, rc.ProjectID, rc.Command, rc.DisplayOrder, rc.CreatedAt)
	return err
}

// ListRunCommands returns a project's saved commands
func (s *Store) ListRunCommands(projectID string) ([]RunCommand, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, command, display_order, created_at
		FROM project_run_commands WHERE project_id = ? ORDER BY display_order, created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunCommand
	for rows.Next() {
		var rc RunCommand
		if err := rows.Scan(&rc.ID, &rc.ProjectID, &rc.Command, &rc.DisplayOrder, &rc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CreateFolder adds a session grouping folder
func (s *Store) CreateFolder(f *Folder) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = NowMs()
	}
	_, err := s.db.Exec(`
		INSERT INTO folders (id, project_id, name, display_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, NullString(f.ProjectID), f.Name, f.DisplayOrder, f.CreatedAt)
	return err
}

// DeleteFolder removes a folder. Sessions in it survive with folder_id
// cleared by the schema.
func (s *Store) DeleteFolder(id string) error {
	_, err := s.db.Exec(`DELETE FROM folders WHERE id = ?`, id)
	return err
}

// ListFolders returns all folders in display order
func (s *Store) ListFolders() ([]Folder, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, name, display_order, created_at
		FROM folders ORDER BY display_order, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		var projectID sql.NullString
		if err := rows.Scan(&f.ID, &projectID, &f.Name, &f.DisplayOrder, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.ProjectID = StringPtr(projectID)
		out = append(out, f)
	}
	return out, rows.Err()
}
