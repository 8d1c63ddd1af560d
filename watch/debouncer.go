package watch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Default delay for coalescing rapid filesystem events. Agent turns touch
// many files in quick bursts; one notification per burst is enough.
const DefaultDebounceDelay = 500 * time.Millisecond

// debouncer coalesces rapid events keyed by session. A new event for the
// same session resets its timer; the callback fires once per quiet period.
type debouncer struct {
	pending  map[string]*time.Timer
	mu       sync.Mutex
	delay    time.Duration
	onFire   func(sessionID string)
	stopping atomic.Bool
}

func newDebouncer(delay time.Duration, onFire func(sessionID string)) *debouncer {
	return &debouncer{
		pending: make(map[string]*time.Timer),
		delay:   delay,
		onFire:  onFire,
	}
}

// Queue schedules (or reschedules) the session's notification. Returns false
// when the debouncer is stopping and the event was dropped.
func (d *debouncer) Queue(sessionID string) bool {
	if d.stopping.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping.Load() {
		return false
	}

	if timer, ok := d.pending[sessionID]; ok {
		if timer.Reset(d.delay) {
			return true
		}
		// Timer already fired; fall through and arm a fresh one
	}
	d.pending[sessionID] = time.AfterFunc(d.delay, func() {
		d.fire(sessionID)
	})
	return true
}

func (d *debouncer) fire(sessionID string) {
	d.mu.Lock()
	_, ok := d.pending[sessionID]
	delete(d.pending, sessionID)
	d.mu.Unlock()

	if ok {
		d.onFire(sessionID)
	}
}

// Stop cancels all pending notifications and rejects new ones
func (d *debouncer) Stop() {
	d.stopping.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, timer := range d.pending {
		timer.Stop()
	}
	d.pending = make(map[string]*time.Timer)
}

// PendingCount returns the number of armed timers (for testing)
func (d *debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
