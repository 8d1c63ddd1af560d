// Package panel owns the per-session tool panels: their lifecycle, the
// single-active-panel invariant, and recovery of persisted panel state
// across restarts. The manager is a write-through cache: every mutation
// hits the store first, then the in-memory map, so readers never observe
// cache-ahead-of-store state.
package panel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("PANEL")

// Panel types
const (
	TypeClaude = "claude"
	TypeCodex  = "codex"
	TypeGemini = "gemini"
	TypeDiff   = "diff"
	TypeLogs   = "logs"
)

// Event types emitted to subscribers
const (
	EventCreated   = "panel:created"
	EventUpdated   = "panel:updated"
	EventDeleted   = "panel:deleted"
	EventActivated = "panel:activated"
)

// Event notifies subscribers of a panel change
type Event struct {
	Type  string
	Panel db.ToolPanel
}

// CreateRequest describes a new panel
type CreateRequest struct {
	SessionID   string
	Type        string
	Title       string
	Permanent   bool
	CustomState map[string]any
}

// StatePatch is a partial update of PanelState; nil fields are left alone
// and CustomState entries are merged key by key.
type StatePatch struct {
	IsActive      *bool
	HasBeenViewed *bool
	CustomState   map[string]any
}

// MetadataPatch is a partial update of PanelMetadata
type MetadataPatch struct {
	LastActiveAt *int64
	Position     *int
	Permanent    *bool
}

// UpdateRequest is a partial panel patch
type UpdateRequest struct {
	Title    *string
	State    *StatePatch
	Metadata *MetadataPatch
}

// Manager owns the in-memory panel set backed by the store
type Manager struct {
	mu          sync.RWMutex
	panels      map[string]*db.ToolPanel
	store       *db.Store
	subscribers map[chan Event]struct{}
}

// NewManager creates an uninitialized manager; call Initialize before use
func NewManager(store *db.Store) *Manager {
	return &Manager{
		panels:      make(map[string]*db.ToolPanel),
		store:       store,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Initialize loads all panels and clears any isRunning flags left over from
// a previous crash or restart: no process can legitimately still be running
// after the app reloads. Corrections are persisted.
func (m *Manager) Initialize() error {
	panels, err := m.store.ListPanels()
	if err != nil {
		return fmt.Errorf("load panels: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range panels {
		p := panels[i]
		if running, ok := p.State.CustomState["isRunning"].(bool); ok && running {
			p.State.CustomState["isRunning"] = false
			if err := m.store.SavePanel(&p); err != nil {
				logger.Error().Err(err).Str("panel", p.ID).Msg("failed to persist stale running-flag reset")
			} else {
				logger.Info().Str("panel", p.ID).Msg("cleared stale running flag from previous run")
			}
		}
		m.panels[p.ID] = &p
	}

	logger.Info().Int("count", len(m.panels)).Msg("panel manager initialized")
	return nil
}

// Subscribe registers an event callback; the returned function unsubscribes
func (m *Manager) Subscribe(fn func(Event)) func() {
	ch := make(chan Event, 32)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()

	return func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// notify fans out an event; callers must not hold m.mu
func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber too slow; drop rather than block the pipeline
		}
	}
}

// CreatePanel creates a panel, marks it active, and deactivates every other
// panel of the same session.
func (m *Manager) CreatePanel(req CreateRequest) (*db.ToolPanel, error) {
	if req.SessionID == "" || req.Type == "" {
		return nil, fmt.Errorf("sessionId and type are required")
	}

	title := req.Title
	if title == "" {
		title = defaultTitle(req.Type)
	}

	now := db.NowMs()
	p := &db.ToolPanel{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Type:      req.Type,
		Title:     title,
		State: db.PanelState{
			IsActive:    true,
			CustomState: req.CustomState,
		},
		Metadata: db.PanelMetadata{
			CreatedAt:    now,
			LastActiveAt: &now,
			Position:     m.nextPosition(req.SessionID),
			Permanent:    req.Permanent,
		},
	}

	// The new active panel must be durable before siblings lose their
	// active flag, or a failed save strands the session with no active panel
	if err := m.store.SavePanel(p); err != nil {
		return nil, fmt.Errorf("persist panel: %w", err)
	}
	if err := m.deactivateOthers(req.SessionID, p.ID); err != nil {
		return nil, err
	}
	if err := m.store.UpdateSessionActivePanel(req.SessionID, &p.ID); err != nil {
		logger.Warn().Err(err).Str("session", req.SessionID).Msg("failed to update session active panel")
	}

	m.mu.Lock()
	m.panels[p.ID] = p
	m.mu.Unlock()

	m.notify(Event{Type: EventCreated, Panel: *p})
	return p, nil
}

// GetPanel returns a copy of the panel, nil if unknown
func (m *Manager) GetPanel(id string) *db.ToolPanel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.panels[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// ListSessionPanels returns copies of a session's panels ordered by position
func (m *Manager) ListSessionPanels(sessionID string) []db.ToolPanel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []db.ToolPanel
	for _, p := range m.panels {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sortByPosition(out)
	return out
}

// UpdatePanel merges a partial patch into the panel and persists it
func (m *Manager) UpdatePanel(id string, req UpdateRequest) (*db.ToolPanel, error) {
	m.mu.Lock()
	p, ok := m.panels[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("panel %s not found", id)
	}

	updated := *p
	if req.Title != nil {
		updated.Title = *req.Title
	}
	if req.State != nil {
		if req.State.IsActive != nil {
			updated.State.IsActive = *req.State.IsActive
		}
		if req.State.HasBeenViewed != nil {
			updated.State.HasBeenViewed = *req.State.HasBeenViewed
		}
		if len(req.State.CustomState) > 0 {
			merged := make(map[string]any, len(updated.State.CustomState)+len(req.State.CustomState))
			for k, v := range updated.State.CustomState {
				merged[k] = v
			}
			for k, v := range req.State.CustomState {
				merged[k] = v
			}
			updated.State.CustomState = merged
		}
	}
	if req.Metadata != nil {
		if req.Metadata.LastActiveAt != nil {
			updated.Metadata.LastActiveAt = req.Metadata.LastActiveAt
		}
		if req.Metadata.Position != nil {
			updated.Metadata.Position = *req.Metadata.Position
		}
		if req.Metadata.Permanent != nil {
			updated.Metadata.Permanent = *req.Metadata.Permanent
		}
	}

	if err := m.store.SavePanel(&updated); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("persist panel: %w", err)
	}
	*p = updated
	cp := updated
	m.mu.Unlock()

	m.notify(Event{Type: EventUpdated, Panel: cp})
	return &cp, nil
}

// DeletePanel removes a panel. Permanent panels are protected (no-op).
// If the deleted panel was active, an arbitrary remaining panel of the same
// session is promoted: a session never has zero active panels while panels
// remain.
func (m *Manager) DeletePanel(id string) error {
	m.mu.Lock()
	p, ok := m.panels[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if p.Metadata.Permanent {
		m.mu.Unlock()
		logger.Warn().Str("panel", id).Msg("refusing to delete permanent panel")
		return nil
	}

	sessionID := p.SessionID
	wasActive := p.State.IsActive

	if err := m.store.DeletePanel(id); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("delete panel: %w", err)
	}
	deleted := *p
	delete(m.panels, id)

	var promoted *db.ToolPanel
	if wasActive {
		for _, candidate := range m.panels {
			if candidate.SessionID == sessionID {
				promoted = candidate
				break
			}
		}
		if promoted != nil {
			promoted.State.IsActive = true
			if err := m.store.SavePanel(promoted); err != nil {
				logger.Error().Err(err).Str("panel", promoted.ID).Msg("failed to persist promoted panel")
			}
		}
		activeID := (*string)(nil)
		if promoted != nil {
			activeID = &promoted.ID
		}
		if err := m.store.UpdateSessionActivePanel(sessionID, activeID); err != nil {
			logger.Warn().Err(err).Str("session", sessionID).Msg("failed to update session active panel")
		}
	}
	var promotedCopy *db.ToolPanel
	if promoted != nil {
		cp := *promoted
		promotedCopy = &cp
	}
	m.mu.Unlock()

	m.notify(Event{Type: EventDeleted, Panel: deleted})
	if promotedCopy != nil {
		m.notify(Event{Type: EventActivated, Panel: *promotedCopy})
	}
	return nil
}

// SetActivePanel exclusively activates panelID among its session's panels.
// A nil panelID deactivates all of them.
func (m *Manager) SetActivePanel(sessionID string, panelID *string) error {
	if panelID != nil {
		m.mu.RLock()
		p, ok := m.panels[*panelID]
		valid := ok && p.SessionID == sessionID
		m.mu.RUnlock()
		if !valid {
			return fmt.Errorf("panel %s not found in session %s", *panelID, sessionID)
		}
	}

	if err := m.deactivateOthers(sessionID, deref(panelID)); err != nil {
		return err
	}

	var activated *db.ToolPanel
	if panelID != nil {
		m.mu.Lock()
		p := m.panels[*panelID]
		if !p.State.IsActive {
			p.State.IsActive = true
			now := db.NowMs()
			p.Metadata.LastActiveAt = &now
			if err := m.store.SavePanel(p); err != nil {
				m.mu.Unlock()
				return fmt.Errorf("persist panel: %w", err)
			}
		}
		cp := *p
		activated = &cp
		m.mu.Unlock()
	}

	if err := m.store.UpdateSessionActivePanel(sessionID, panelID); err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("failed to update session active panel")
	}

	if activated != nil {
		m.notify(Event{Type: EventActivated, Panel: *activated})
	}
	return nil
}

// CleanupSessionPanels deletes all non-permanent panels for a session in one
// transaction, used on session teardown. No promotion happens here: the
// session is going away with its panels.
func (m *Manager) CleanupSessionPanels(sessionID string) error {
	m.mu.Lock()
	var ids []string
	var removed []db.ToolPanel
	for _, p := range m.panels {
		if p.SessionID == sessionID && !p.Metadata.Permanent {
			ids = append(ids, p.ID)
			removed = append(removed, *p)
		}
	}
	if len(ids) == 0 {
		m.mu.Unlock()
		return nil
	}

	if err := m.store.DeletePanels(ids); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("delete session panels: %w", err)
	}
	for _, id := range ids {
		delete(m.panels, id)
	}
	m.mu.Unlock()

	for _, p := range removed {
		m.notify(Event{Type: EventDeleted, Panel: p})
	}
	return nil
}

// deactivateOthers clears isActive on every panel of the session except
// keepID, persisting each change.
func (m *Manager) deactivateOthers(sessionID, keepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.panels {
		if p.SessionID != sessionID || p.ID == keepID || !p.State.IsActive {
			continue
		}
		p.State.IsActive = false
		if err := m.store.SavePanel(p); err != nil {
			return fmt.Errorf("persist panel deactivation: %w", err)
		}
	}
	return nil
}

func (m *Manager) nextPosition(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := -1
	for _, p := range m.panels {
		if p.SessionID == sessionID && p.Metadata.Position > max {
			max = p.Metadata.Position
		}
	}
	return max + 1
}

func defaultTitle(panelType string) string {
	switch panelType {
	case TypeClaude:
		return "Claude"
	case TypeCodex:
		return "Codex"
	case TypeGemini:
		return "Gemini"
	case TypeDiff:
		return "Changes"
	case TypeLogs:
		return "Logs"
	default:
		return panelType
	}
}

func sortByPosition(panels []db.ToolPanel) {
	sort.Slice(panels, func(i, j int) bool {
		return panels[i].Metadata.Position < panels[j].Metadata.Position
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
