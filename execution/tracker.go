// Package execution tracks one agent turn at a time per session and turns it
// into an immutable ExecutionDiff record: commit hash captured at start,
// diff computed at end. Every completed execution yields exactly one record,
// zero-change turns included, so the diff history mirrors the turn history.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/gitexec"
	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("EXECUTION")

var (
	// ErrExecutionInProgress rejects a second StartExecution for a session
	// whose previous execution has not ended.
	ErrExecutionInProgress = errors.New("execution already in progress for session")
	// ErrNotTracking marks an EndExecution with no matching start
	ErrNotTracking = errors.New("no execution in progress for session")
)

// Event types emitted to subscribers
const (
	EventStarted   = "execution:started"
	EventCompleted = "execution:completed"
	EventCancelled = "execution:cancelled"
)

// Event notifies subscribers of an execution transition
type Event struct {
	Type      string
	SessionID string
	Diff      *db.ExecutionDiff
}

// NextOptions are one-shot options consumed by the next StartExecution for
// the session, then discarded.
type NextOptions struct {
	PromptMarkerID *string
}

// active is the in-flight state of one session's execution
type active struct {
	sessionID        string
	worktreePath     string
	beforeCommitHash string
	sequence         int
	promptMarkerID   *string
	startedAt        int64
}

// Tracker owns per-session execution state
type Tracker struct {
	mu          sync.Mutex
	executions  map[string]*active
	nextOptions map[string]NextOptions

	store       *db.Store
	git         *gitexec.Git
	subscribers map[chan Event]struct{}
}

// NewTracker creates a tracker over the given store and git helper
func NewTracker(store *db.Store, git *gitexec.Git) *Tracker {
	return &Tracker{
		executions:  make(map[string]*active),
		nextOptions: make(map[string]NextOptions),
		store:       store,
		git:         git,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers an event callback; the returned function unsubscribes
func (t *Tracker) Subscribe(fn func(Event)) func() {
	ch := make(chan Event, 32)
	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()

	return func() {
		t.mu.Lock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) notify(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetNextExecutionOptions stages options for the session's next
// StartExecution. They are consumed exactly once.
func (t *Tracker) SetNextExecutionOptions(sessionID string, opts NextOptions) {
	t.mu.Lock()
	t.nextOptions[sessionID] = opts
	t.mu.Unlock()
}

// IsTracking reports whether an execution is in flight for the session
func (t *Tracker) IsTracking(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.executions[sessionID]
	return ok
}

// StartExecution snapshots the worktree's HEAD and begins tracking one turn.
// A second start while one is in flight returns ErrExecutionInProgress.
func (t *Tracker) StartExecution(ctx context.Context, sessionID, worktreePath string) error {
	t.mu.Lock()
	if _, ok := t.executions[sessionID]; ok {
		t.mu.Unlock()
		return ErrExecutionInProgress
	}
	opts, hasOpts := t.nextOptions[sessionID]
	delete(t.nextOptions, sessionID)
	// Reserve the slot before the git call so concurrent starts race on the
	// map, not on HeadCommit.
	t.executions[sessionID] = nil
	t.mu.Unlock()

	release := func() {
		t.mu.Lock()
		delete(t.executions, sessionID)
		t.mu.Unlock()
	}

	head, err := t.git.HeadCommit(ctx, worktreePath)
	if err != nil {
		release()
		return fmt.Errorf("capture before-commit hash: %w", err)
	}

	maxSeq, err := t.store.MaxExecutionSequence(sessionID)
	if err != nil {
		release()
		return fmt.Errorf("load execution sequence: %w", err)
	}

	ex := &active{
		sessionID:        sessionID,
		worktreePath:     worktreePath,
		beforeCommitHash: head,
		sequence:         maxSeq + 1,
		startedAt:        db.NowMs(),
	}
	if hasOpts {
		ex.promptMarkerID = opts.PromptMarkerID
	}

	t.mu.Lock()
	t.executions[sessionID] = ex
	t.mu.Unlock()

	logger.Info().Str("session", sessionID).Int("sequence", ex.sequence).
		Str("before", head).Msg("execution started")
	t.notify(Event{Type: EventStarted, SessionID: sessionID})
	return nil
}

// EndExecution computes the turn's diff and persists exactly one
// ExecutionDiff, even when nothing changed. Ending without a start is a
// logged no-op returning ErrNotTracking.
func (t *Tracker) EndExecution(ctx context.Context, sessionID string) (*db.ExecutionDiff, error) {
	t.mu.Lock()
	ex, ok := t.executions[sessionID]
	if !ok || ex == nil {
		t.mu.Unlock()
		logger.Warn().Str("session", sessionID).Msg("end execution without matching start")
		return nil, ErrNotTracking
	}
	delete(t.executions, sessionID)
	t.mu.Unlock()

	after, err := t.git.HeadCommit(ctx, ex.worktreePath)
	if err != nil {
		return nil, fmt.Errorf("capture after-commit hash: %w", err)
	}

	var (
		diffText      string
		stats         gitexec.DiffStats
		commitMessage string
	)
	if after == ex.beforeCommitHash {
		// No commit was made; the turn's work is whatever sits uncommitted
		diffText, err = t.git.DiffWorkingTree(ctx, ex.worktreePath)
		if err != nil {
			return nil, fmt.Errorf("working tree diff: %w", err)
		}
		stats, err = t.git.NumStatWorkingTree(ctx, ex.worktreePath)
		if err != nil {
			return nil, fmt.Errorf("working tree numstat: %w", err)
		}
	} else {
		diffText, err = t.git.DiffRange(ctx, ex.worktreePath, ex.beforeCommitHash, after)
		if err != nil {
			return nil, fmt.Errorf("range diff: %w", err)
		}
		stats, err = t.git.NumStatRange(ctx, ex.worktreePath, ex.beforeCommitHash, after)
		if err != nil {
			return nil, fmt.Errorf("range numstat: %w", err)
		}
		if subject, err := t.git.CommitSubject(ctx, ex.worktreePath, after); err != nil {
			logger.Debug().Err(err).Str("session", sessionID).Msg("commit subject lookup failed")
		} else {
			commitMessage = subject
		}
	}

	diff := &db.ExecutionDiff{
		SessionID:         sessionID,
		PromptMarkerID:    ex.promptMarkerID,
		ExecutionSequence: ex.sequence,
		GitDiff:           diffText,
		FilesChanged:      stats.Files,
		StatsAdditions:    stats.Additions,
		StatsDeletions:    stats.Deletions,
		StatsFilesChanged: len(stats.Files),
		BeforeCommitHash:  ex.beforeCommitHash,
		AfterCommitHash:   after,
		CommitMessage:     commitMessage,
	}
	if err := t.store.InsertExecutionDiff(diff); err != nil {
		return nil, fmt.Errorf("persist execution diff: %w", err)
	}

	logger.Info().Str("session", sessionID).Int("sequence", ex.sequence).
		Int("additions", stats.Additions).Int("deletions", stats.Deletions).
		Int("files", len(stats.Files)).Msg("execution completed")
	t.notify(Event{Type: EventCompleted, SessionID: sessionID, Diff: diff})
	return diff, nil
}

// CancelExecution abandons an in-flight execution without recording a diff
func (t *Tracker) CancelExecution(sessionID string) {
	t.mu.Lock()
	_, ok := t.executions[sessionID]
	delete(t.executions, sessionID)
	delete(t.nextOptions, sessionID)
	t.mu.Unlock()

	if ok {
		logger.Info().Str("session", sessionID).Msg("execution cancelled")
		t.notify(Event{Type: EventCancelled, SessionID: sessionID})
	}
}

// CombinedDiff merges several execution diffs into one view
type CombinedDiff struct {
	SessionID    string   `json:"sessionId"`
	GitDiff      string   `json:"gitDiff"`
	FilesChanged []string `json:"filesChanged"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	Executions   []int64  `json:"executions"`
}

// GetCombinedDiff concatenates a session's diffs in sequence order. A
// non-empty executionIDs filters to those record ids.
func (t *Tracker) GetCombinedDiff(sessionID string, executionIDs []int64) (*CombinedDiff, error) {
	diffs, err := t.store.ListExecutionDiffs(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load execution diffs: %w", err)
	}

	wanted := make(map[int64]bool, len(executionIDs))
	for _, id := range executionIDs {
		wanted[id] = true
	}

	combined := &CombinedDiff{SessionID: sessionID, FilesChanged: []string{}}
	var parts []string
	seen := make(map[string]bool)
	for _, d := range diffs {
		if len(wanted) > 0 && !wanted[d.ID] {
			continue
		}
		combined.Executions = append(combined.Executions, d.ID)
		combined.Additions += d.StatsAdditions
		combined.Deletions += d.StatsDeletions
		if d.GitDiff != "" {
			parts = append(parts, d.GitDiff)
		}
		for _, f := range d.FilesChanged {
			if !seen[f] {
				seen[f] = true
				combined.FilesChanged = append(combined.FilesChanged, f)
			}
		}
	}
	combined.GitDiff = strings.Join(parts, "\n")
	return combined, nil
}
