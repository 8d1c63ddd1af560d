package agent

import (
	"encoding/json"
	"sync"
)

// baseExecutor carries the panel→process bookkeeping and the event pump
// shared by all backends. Backends differ only in argv/env construction,
// process mode (pipe vs pty), follow-up encoding, and how the agent session
// id is recognized in the stream.
type baseExecutor struct {
	mu     sync.Mutex
	procs  map[string]*process
	events chan Event
	wg     sync.WaitGroup

	// extractSessionID inspects a raw line for the backend-assigned session
	// id; returns "" when the line doesn't carry one.
	extractSessionID func(line []byte) string
}

func newBaseExecutor(extract func(line []byte) string) baseExecutor {
	return baseExecutor{
		procs:            make(map[string]*process),
		events:           make(chan Event, 256),
		extractSessionID: extract,
	}
}

// track registers a process for a panel and starts pumping its output into
// the shared event channel. A previous process for the same panel is closed
// first: one live process per panel.
func (b *baseExecutor) track(panelID, sessionID string, p *process) {
	b.mu.Lock()
	if old, ok := b.procs[panelID]; ok {
		old.Close()
	}
	b.procs[panelID] = p
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(panelID, sessionID, p)
}

func (b *baseExecutor) pump(panelID, sessionID string, p *process) {
	defer b.wg.Done()

	sessionIDSeen := false
	streaming := true
	for streaming {
		select {
		case line, ok := <-p.lines:
			if !ok {
				// Line channel closes after process exit; drain any last error
				streaming = false
				continue
			}
			if !sessionIDSeen && b.extractSessionID != nil {
				if agentID := b.extractSessionID(line); agentID != "" {
					sessionIDSeen = true
					b.events <- Event{Type: EventSessionID, PanelID: panelID, SessionID: sessionID, AgentSessionID: agentID}
				}
			}
			b.events <- Event{Type: EventOutput, PanelID: panelID, SessionID: sessionID, Line: line}

		case err := <-p.errCh:
			b.events <- Event{Type: EventError, PanelID: panelID, SessionID: sessionID, Err: err}
		}
	}

	select {
	case err := <-p.errCh:
		b.events <- Event{Type: EventError, PanelID: panelID, SessionID: sessionID, Err: err}
	default:
	}

	exitCode := <-p.exitCh
	b.mu.Lock()
	if b.procs[panelID] == p {
		delete(b.procs, panelID)
	}
	b.mu.Unlock()

	b.events <- Event{Type: EventExit, PanelID: panelID, SessionID: sessionID, ExitCode: exitCode}
}

func (b *baseExecutor) proc(panelID string) (*process, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[panelID]
	return p, ok
}

// Interrupt delivers a best-effort stop signal to the panel's process;
// no-op (nil) when none is running.
func (b *baseExecutor) Interrupt(panelID string) error {
	p, ok := b.proc(panelID)
	if !ok {
		return nil
	}
	return p.Interrupt()
}

// sendRaw writes bytes to the panel's process input
func (b *baseExecutor) sendRaw(panelID string, data []byte) error {
	p, ok := b.proc(panelID)
	if !ok {
		return ErrProcessNotFound
	}
	return p.Write(data)
}

// Events returns the shared event channel
func (b *baseExecutor) Events() <-chan Event {
	return b.events
}

// Stop closes every live process, waits for the pumps to drain, and closes
// the event channel so consumer loops terminate.
func (b *baseExecutor) Stop() {
	b.mu.Lock()
	procs := make([]*process, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	b.mu.Unlock()

	for _, p := range procs {
		p.Close()
	}
	b.wg.Wait()
	close(b.events)
}

// extractJSONSessionID pulls the first session id field found in a JSON line
func extractJSONSessionID(line []byte, keys ...string) string {
	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		return ""
	}
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
