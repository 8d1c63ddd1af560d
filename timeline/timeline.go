// Package timeline records the append-only per-session audit log. Every
// logical operation (a git call, a chat turn, a shell command) is two rows:
// a "started" event and a "finished" or "failed" event, correlated by an
// operation id carried in the event metadata. Sequence numbers are assigned
// by the store at insert time and are gap-free per session.
package timeline

import (
	"time"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/log"
)

var logger = log.GetLogger("TIMELINE")

// Recorder appends timeline events for sessions. It has no foreign-key
// coupling to session existence: events may be recorded for ephemeral or
// pre-creation operations.
type Recorder struct {
	store *db.Store
}

// NewRecorder creates a timeline recorder over the given store
func NewRecorder(store *db.Store) *Recorder {
	return &Recorder{store: store}
}

// Operation is an in-flight logical operation whose started row has been
// written and whose finished/failed row is pending.
type Operation struct {
	recorder    *Recorder
	sessionID   string
	kind        string
	operationID string
	command     string
	cwd         string
	startedAt   time.Time
}

// Start writes the "started" row for an operation and returns a handle used
// to write the paired terminal row. Recording failures are logged, not
// returned: losing an audit row must never fail the operation it brackets.
func (r *Recorder) Start(sessionID, kind, operationID, command, cwd string, meta map[string]any) *Operation {
	ev := &db.TimelineEvent{
		SessionID: sessionID,
		Kind:      kind,
		Status:    db.TimelineStatusStarted,
		Command:   strPtr(command),
		Cwd:       strPtr(cwd),
		Meta:      withOperationID(meta, operationID),
	}
	if err := r.store.AppendTimelineEvent(ev); err != nil {
		logger.Error().Err(err).Str("session", sessionID).Str("kind", kind).
			Msg("failed to record started event")
	}

	return &Operation{
		recorder:    r,
		sessionID:   sessionID,
		kind:        kind,
		operationID: operationID,
		command:     command,
		cwd:         cwd,
		startedAt:   time.Now(),
	}
}

// Finish writes the "finished" row for the operation
func (op *Operation) Finish(exitCode int64, meta map[string]any) {
	op.terminal(db.TimelineStatusFinished, exitCode, meta)
}

// Fail writes the "failed" row for the operation
func (op *Operation) Fail(exitCode int64, errMsg string, meta map[string]any) {
	if errMsg != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["error"] = errMsg
	}
	op.terminal(db.TimelineStatusFailed, exitCode, meta)
}

func (op *Operation) terminal(status string, exitCode int64, meta map[string]any) {
	durationMs := time.Since(op.startedAt).Milliseconds()
	ev := &db.TimelineEvent{
		SessionID:  op.sessionID,
		Kind:       op.kind,
		Status:     status,
		Command:    strPtr(op.command),
		Cwd:        strPtr(op.cwd),
		DurationMs: &durationMs,
		ExitCode:   &exitCode,
		Meta:       withOperationID(meta, op.operationID),
	}
	if err := op.recorder.store.AppendTimelineEvent(ev); err != nil {
		logger.Error().Err(err).Str("session", op.sessionID).Str("status", status).
			Msg("failed to record terminal event")
	}
}

// Append writes a single standalone event (chat turns use this: the started
// and finished rows are written as the turn progresses by separate calls).
func (r *Recorder) Append(ev *db.TimelineEvent) error {
	return r.store.AppendTimelineEvent(ev)
}

// Events returns a session's audit log in seq order
func (r *Recorder) Events(sessionID string) ([]db.TimelineEvent, error) {
	return r.store.ListTimelineEvents(sessionID)
}

// PruneOrphans removes events whose session has been deleted. Explicit
// maintenance only; nothing calls this automatically.
func (r *Recorder) PruneOrphans() (int64, error) {
	return r.store.PruneOrphanTimelineEvents()
}

func withOperationID(meta map[string]any, operationID string) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["operationId"] = operationID
	return meta
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
