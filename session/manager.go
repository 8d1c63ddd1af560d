// Package session orchestrates the full lifecycle of an agent session: the
// git worktree it runs in, the panel that fronts it, the agent process that
// drives it, and the streams of normalized output flowing back out.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KKould/snowtree/agent"
	"github.com/KKould/snowtree/config"
	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/execution"
	"github.com/KKould/snowtree/gitexec"
	"github.com/KKould/snowtree/log"
	"github.com/KKould/snowtree/panel"
	"github.com/KKould/snowtree/parser"
	"github.com/KKould/snowtree/timeline"
	"github.com/KKould/snowtree/watch"
)

var logger = log.GetLogger("SESSION")

var (
	// ErrSessionNotFound marks a lookup of an unknown session id
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownToolType marks a session whose tool type has no executor
	ErrUnknownToolType = errors.New("unknown tool type")
)

// Manager owns sessions end to end. One executor per tool type is shared by
// all sessions of that type; parsers are per panel so streaming accumulation
// never crosses panels.
type Manager struct {
	mu        sync.Mutex
	store     *db.Store
	panels    *panel.Manager
	tracker   *execution.Tracker
	git       *gitexec.Git
	recorder  *timeline.Recorder
	executors map[string]agent.Executor
	parsers   map[string]parser.Parser

	// repoPaths caches the main repo path per session for worktree teardown
	repoPaths map[string]string
	// turnOps holds the open chat.assistant timeline operation per session
	turnOps map[string]*timeline.Operation

	subscribers map[string]map[chan parser.NormalizedEntry]struct{}

	watcher      *watch.Watcher
	worktreeBase string
	wg           sync.WaitGroup
}

// NewManager wires the orchestrator. Executors are constructed from the
// config's binaries and API keys.
func NewManager(store *db.Store, panels *panel.Manager, tracker *execution.Tracker,
	git *gitexec.Git, recorder *timeline.Recorder, cfg *config.Config) *Manager {
	return &Manager{
		store:    store,
		panels:   panels,
		tracker:  tracker,
		git:      git,
		recorder: recorder,
		executors: map[string]agent.Executor{
			panel.TypeClaude: agent.NewClaudeExecutor(cfg.ClaudeBinary, cfg.AnthropicAPIKey),
			panel.TypeCodex:  agent.NewCodexExecutor(cfg.CodexBinary, cfg.OpenAIAPIKey),
			panel.TypeGemini: agent.NewGeminiExecutor(cfg.GeminiBinary, cfg.GeminiAPIKey),
		},
		parsers:      make(map[string]parser.Parser),
		repoPaths:    make(map[string]string),
		turnOps:      make(map[string]*timeline.Operation),
		subscribers:  make(map[string]map[chan parser.NormalizedEntry]struct{}),
		worktreeBase: cfg.WorktreeBaseDir,
	}
}

// AttachWatcher registers a worktree watcher so sessions get filesystem
// change notifications for diff refresh. Optional.
func (m *Manager) AttachWatcher(w *watch.Watcher) {
	m.watcher = w
}

// Start launches the event consumers. Call once after construction.
func (m *Manager) Start() {
	for toolType, ex := range m.executors {
		m.wg.Add(1)
		go m.consume(toolType, ex)
	}
}

// Stop closes all agent processes and waits for the consumers to drain
func (m *Manager) Stop() {
	for _, ex := range m.executors {
		ex.Stop()
	}
	m.wg.Wait()
}

// CreateRequest describes a new session
type CreateRequest struct {
	Name           string  `json:"name"`
	Prompt         string  `json:"prompt"`
	RepoPath       string  `json:"repoPath"`
	ProjectID      *string `json:"projectId,omitempty"`
	FolderID       *string `json:"folderId,omitempty"`
	ToolType       string  `json:"toolType"`
	Model          string  `json:"model,omitempty"`
	PermissionMode string  `json:"permissionMode,omitempty"`
}

// CreateSession provisions a worktree, creates the session and its agent
// panel, and spawns the first turn with the initial prompt.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*db.Session, error) {
	if _, ok := m.executors[req.ToolType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolType, req.ToolType)
	}

	repoPath := req.RepoPath
	if req.ProjectID != nil {
		project, err := m.store.GetProject(*req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("resolve project: %w", err)
		}
		if project != nil {
			repoPath = project.Path
		}
	}
	if repoPath == "" {
		return nil, fmt.Errorf("repoPath or projectId is required")
	}

	id := uuid.NewString()
	branch := branchName(req.Name, id)
	worktreePath := filepath.Join(m.worktreeBase, id)

	sess := &db.Session{
		ID:            id,
		ProjectID:     req.ProjectID,
		FolderID:      req.FolderID,
		Name:          req.Name,
		InitialPrompt: req.Prompt,
		WorktreePath:  worktreePath,
		Status:        db.SessionStatusPending,
		ToolType:      req.ToolType,
	}
	if err := m.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := m.git.AddWorktree(ctx, id, repoPath, worktreePath, branch); err != nil {
		m.failSession(id, err)
		return nil, fmt.Errorf("provision worktree: %w", err)
	}
	m.mu.Lock()
	m.repoPaths[id] = repoPath
	m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.AddSession(id, worktreePath); err != nil {
			logger.Warn().Err(err).Str("session", id).Msg("failed to watch worktree")
		}
	}

	p, err := m.panels.CreatePanel(panel.CreateRequest{SessionID: id, Type: req.ToolType})
	if err != nil {
		m.failSession(id, err)
		return nil, fmt.Errorf("create panel: %w", err)
	}

	if err := m.startTurn(ctx, sess, p.ID, req.Prompt, agent.SpawnOptions{
		PanelID:        p.ID,
		SessionID:      id,
		WorktreePath:   worktreePath,
		Prompt:         req.Prompt,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
	}); err != nil {
		m.failSession(id, err)
		return nil, err
	}

	sess.Status = db.SessionStatusRunning
	logger.Info().Str("session", id).Str("tool", req.ToolType).
		Str("worktree", worktreePath).Msg("session created")
	return sess, nil
}

// ResumeRequest restarts an agent turn on an existing session
type ResumeRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	PermissionMode string `json:"permissionMode,omitempty"`
	Continue       bool   `json:"continue,omitempty"`
}

// ResumePanel spawns a fresh agent process on the panel, resuming the
// backend conversation when an agent session id is known.
func (m *Manager) ResumePanel(ctx context.Context, panelID string, req ResumeRequest) error {
	sess, p, err := m.panelSession(panelID)
	if err != nil {
		return err
	}

	opts := agent.SpawnOptions{
		PanelID:        panelID,
		SessionID:      sess.ID,
		WorktreePath:   sess.WorktreePath,
		Prompt:         req.Prompt,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		Continue:       req.Continue,
	}
	if sess.AgentSessionID != nil && !req.Continue {
		opts.ResumeSessionID = *sess.AgentSessionID
	}
	return m.startTurn(ctx, sess, p.ID, req.Prompt, opts)
}

// SendFollowUp delivers a message to the panel's agent, opening a new turn
// bracket unless one is already in flight. Long-lived backends keep their
// process alive across turns, so delivery to a live process is the normal
// path; a dead process is respawned with the conversation resumed.
func (m *Manager) SendFollowUp(ctx context.Context, panelID, message string) error {
	sess, p, err := m.panelSession(panelID)
	if err != nil {
		return err
	}
	ex, ok := m.executors[sess.ToolType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToolType, sess.ToolType)
	}

	inFlight := m.tracker.IsTracking(sess.ID)
	if inFlight {
		// Mid-turn steer: the message joins the open turn, so only the
		// prompt rows are recorded; no second execution bracket opens.
		m.recordUserPrompt(sess, p.ID, message)
	} else {
		if err := m.beginTurn(ctx, sess, p.ID, message); err != nil {
			return err
		}
		// Running state flips before delivery so a terminal event arriving
		// immediately cannot be overwritten by the turn-start bookkeeping
		m.markRunning(p.ID, true)
		if err := m.store.UpdateSessionStatus(sess.ID, db.SessionStatusRunning); err != nil {
			logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to update status on follow-up")
		}
	}

	rollback := func() {
		if inFlight {
			return
		}
		m.tracker.CancelExecution(sess.ID)
		m.abortTurn(sess.ID)
		m.markRunning(p.ID, false)
		if err := m.store.UpdateSessionStatus(sess.ID, db.SessionStatusWaiting); err != nil {
			logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to reset status after failed follow-up")
		}
	}

	if err := ex.SendFollowUp(panelID, message); err != nil {
		if !errors.Is(err, agent.ErrProcessNotFound) {
			rollback()
			return err
		}
		// No live process; restart it with the conversation resumed
		opts := agent.SpawnOptions{
			PanelID:      panelID,
			SessionID:    sess.ID,
			WorktreePath: sess.WorktreePath,
			Prompt:       message,
		}
		if sess.AgentSessionID != nil {
			opts.ResumeSessionID = *sess.AgentSessionID
		}
		if err := ex.Spawn(ctx, opts); err != nil {
			rollback()
			return fmt.Errorf("%w: %v", agent.ErrSpawnFailure, err)
		}
	}
	return nil
}

// Interrupt stops the panel's agent process and abandons the in-flight
// execution without recording a diff.
func (m *Manager) Interrupt(panelID string) error {
	sess, p, err := m.panelSession(panelID)
	if err != nil {
		return err
	}
	ex, ok := m.executors[sess.ToolType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToolType, sess.ToolType)
	}

	if err := ex.Interrupt(panelID); err != nil {
		return err
	}
	m.tracker.CancelExecution(sess.ID)
	m.abortTurn(sess.ID)
	m.markRunning(p.ID, false)
	if err := m.store.UpdateSessionStatus(sess.ID, db.SessionStatusWaiting); err != nil {
		logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to update status after interrupt")
	}
	return nil
}

// GetSession returns a session, ErrSessionNotFound when unknown
func (m *Manager) GetSession(id string) (*db.Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions returns all sessions
func (m *Manager) ListSessions() ([]db.Session, error) {
	return m.store.ListSessions()
}

// ArchiveSession stops the session's processes, removes its worktree, and
// marks it archived. Panels and history rows are retained.
func (m *Manager) ArchiveSession(ctx context.Context, id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}

	m.stopSessionProcesses(id)
	m.tracker.CancelExecution(id)
	m.abortTurn(id)
	m.removeWorktree(ctx, sess)

	if err := m.store.UpdateSessionStatus(id, db.SessionStatusArchived); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	logger.Info().Str("session", id).Msg("session archived")
	return nil
}

// DeleteSession removes the session and everything cascading from it.
// Timeline events survive by design; PruneOrphans cleans them on demand.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}

	m.stopSessionProcesses(id)
	m.tracker.CancelExecution(id)
	m.abortTurn(id)
	m.removeWorktree(ctx, sess)

	if err := m.store.DeleteSession(id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.repoPaths, id)
	m.mu.Unlock()

	logger.Info().Str("session", id).Msg("session deleted")
	return nil
}

// StageHunk applies a diff hunk to the session worktree's index, recorded in
// the session's timeline.
func (m *Manager) StageHunk(ctx context.Context, sessionID string, patch []byte) error {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	return m.git.StageHunk(ctx, sess.ID, sess.WorktreePath, patch)
}

// RestoreHunk reverses a diff hunk in the session worktree, discarding that
// change.
func (m *Manager) RestoreHunk(ctx context.Context, sessionID string, patch []byte) error {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	return m.git.RestoreHunk(ctx, sess.ID, sess.WorktreePath, patch)
}

// Push pushes the session's branch from its worktree
func (m *Manager) Push(ctx context.Context, sessionID string) (*gitexec.Result, error) {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return m.git.Push(ctx, sess.ID, sess.WorktreePath)
}

// startTurn spawns the agent process for a full turn with a fresh prompt
func (m *Manager) startTurn(ctx context.Context, sess *db.Session, panelID, prompt string, opts agent.SpawnOptions) error {
	ex, ok := m.executors[sess.ToolType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToolType, sess.ToolType)
	}

	if err := m.beginTurn(ctx, sess, panelID, prompt); err != nil {
		return err
	}

	// Running state flips before the spawn so a terminal event arriving
	// immediately cannot be overwritten by the turn-start bookkeeping
	m.markRunning(panelID, true)
	if err := m.store.UpdateSessionStatus(sess.ID, db.SessionStatusRunning); err != nil {
		logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to update status on turn start")
	}

	if err := ex.Spawn(ctx, opts); err != nil {
		m.tracker.CancelExecution(sess.ID)
		m.abortTurn(sess.ID)
		m.markRunning(panelID, false)
		if err2 := m.store.UpdateSessionStatus(sess.ID, db.SessionStatusError); err2 != nil {
			logger.Warn().Err(err2).Str("session", sess.ID).Msg("failed to mark session errored after spawn failure")
		}
		return fmt.Errorf("%w: %v", agent.ErrSpawnFailure, err)
	}
	return nil
}

// recordUserPrompt persists the prompt marker, the transcript entry, and the
// chat.user timeline pair. Returns the marker id for diff attribution.
func (m *Manager) recordUserPrompt(sess *db.Session, panelID, prompt string) *string {
	if prompt == "" {
		return nil
	}

	var markerID *string
	marker := &db.PromptMarker{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Prompt:    prompt,
	}
	if err := m.store.CreatePromptMarker(marker); err != nil {
		logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to persist prompt marker")
	} else {
		markerID = &marker.ID
	}

	m.persistEntry(sess.ID, panelID, &parser.NormalizedEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		EntryType: parser.EntryUserMessage,
		Content:   prompt,
	})

	userOp := m.recorder.Start(sess.ID, db.TimelineKindChatUser, uuid.NewString(), "", sess.WorktreePath,
		map[string]any{"prompt": prompt})
	userOp.Finish(0, nil)
	return markerID
}

// beginTurn records the prompt rows and opens the execution and assistant
// timeline brackets.
func (m *Manager) beginTurn(ctx context.Context, sess *db.Session, panelID, prompt string) error {
	markerID := m.recordUserPrompt(sess, panelID, prompt)

	m.tracker.SetNextExecutionOptions(sess.ID, execution.NextOptions{PromptMarkerID: markerID})
	if err := m.tracker.StartExecution(ctx, sess.ID, sess.WorktreePath); err != nil {
		return err
	}

	m.mu.Lock()
	m.turnOps[sess.ID] = m.recorder.Start(sess.ID, db.TimelineKindChatAssistant, uuid.NewString(),
		"", sess.WorktreePath, nil)
	m.mu.Unlock()
	return nil
}

// abortTurn closes the assistant timeline bracket after a failed or
// interrupted start.
func (m *Manager) abortTurn(sessionID string) {
	m.mu.Lock()
	op := m.turnOps[sessionID]
	delete(m.turnOps, sessionID)
	m.mu.Unlock()
	if op != nil {
		op.Fail(-1, "turn aborted", nil)
	}
}

func (m *Manager) failSession(id string, cause error) {
	logger.Error().Err(cause).Str("session", id).Msg("session setup failed")
	if err := m.store.UpdateSessionStatus(id, db.SessionStatusError); err != nil {
		logger.Error().Err(err).Str("session", id).Msg("failed to mark session errored")
	}
}

func (m *Manager) markRunning(panelID string, running bool) {
	if _, err := m.panels.UpdatePanel(panelID, panel.UpdateRequest{
		State: &panel.StatePatch{CustomState: map[string]any{"isRunning": running}},
	}); err != nil {
		logger.Warn().Err(err).Str("panel", panelID).Msg("failed to update panel running state")
	}
}

func (m *Manager) stopSessionProcesses(sessionID string) {
	for _, p := range m.panels.ListSessionPanels(sessionID) {
		if ex, ok := m.executors[p.Type]; ok {
			if err := ex.Interrupt(p.ID); err != nil {
				logger.Warn().Err(err).Str("panel", p.ID).Msg("interrupt on teardown failed")
			}
		}
	}
}

// removeWorktree tears down the session's worktree. Best effort: a session
// can always be archived even when git cleanup fails.
func (m *Manager) removeWorktree(ctx context.Context, sess *db.Session) {
	if m.watcher != nil {
		m.watcher.RemoveSession(sess.ID)
	}

	m.mu.Lock()
	repoPath, ok := m.repoPaths[sess.ID]
	m.mu.Unlock()
	if !ok && sess.ProjectID != nil {
		if project, err := m.store.GetProject(*sess.ProjectID); err == nil && project != nil {
			repoPath = project.Path
			ok = true
		}
	}
	if !ok {
		logger.Warn().Str("session", sess.ID).Msg("main repo unknown; leaving worktree in place")
		return
	}

	if err := m.git.RemoveWorktree(ctx, sess.ID, repoPath, sess.WorktreePath); err != nil {
		logger.Warn().Err(err).Str("session", sess.ID).Msg("worktree removal failed")
	}
	if err := m.git.PruneWorktrees(ctx, repoPath); err != nil {
		logger.Debug().Err(err).Str("session", sess.ID).Msg("worktree prune failed")
	}
}

// panelSession resolves a panel id to its panel and owning session
func (m *Manager) panelSession(panelID string) (*db.Session, *db.ToolPanel, error) {
	p := m.panels.GetPanel(panelID)
	if p == nil {
		return nil, nil, fmt.Errorf("panel %s not found", panelID)
	}
	sess, err := m.GetSession(p.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, p, nil
}

// branchName derives a worktree branch from the session name, suffixed with
// the id prefix for uniqueness.
func branchName(name, id string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "session"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return "snowtree/" + out + "-" + id[:8]
}
