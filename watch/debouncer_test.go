package watch

import (
	"sync"
	"testing"
	"time"
)

type fireLog struct {
	mu    sync.Mutex
	fired []string
}

func (f *fireLog) record(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, sessionID)
}

func (f *fireLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fired...)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var fl fireLog
	d := newDebouncer(30*time.Millisecond, fl.record)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		if !d.Queue("sess-1") {
			t.Fatal("queue rejected while running")
		}
	}

	time.Sleep(150 * time.Millisecond)
	if got := fl.snapshot(); len(got) != 1 {
		t.Errorf("expected one notification for the burst, got %d", len(got))
	}
}

func TestDebouncer_SessionsFireIndependently(t *testing.T) {
	var fl fireLog
	d := newDebouncer(20*time.Millisecond, fl.record)
	defer d.Stop()

	d.Queue("sess-1")
	d.Queue("sess-2")

	time.Sleep(150 * time.Millisecond)
	got := fl.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected both sessions to fire, got %v", got)
	}
	seen := map[string]bool{got[0]: true, got[1]: true}
	if !seen["sess-1"] || !seen["sess-2"] {
		t.Errorf("expected sess-1 and sess-2, got %v", got)
	}
}

func TestDebouncer_RequeueAfterFire(t *testing.T) {
	var fl fireLog
	d := newDebouncer(20*time.Millisecond, fl.record)
	defer d.Stop()

	d.Queue("sess-1")
	time.Sleep(100 * time.Millisecond)
	d.Queue("sess-1")
	time.Sleep(100 * time.Millisecond)

	if got := fl.snapshot(); len(got) != 2 {
		t.Errorf("expected separate quiet periods to fire separately, got %d", len(got))
	}
}

func TestDebouncer_StopCancelsPendingAndRejectsNew(t *testing.T) {
	var fl fireLog
	d := newDebouncer(50*time.Millisecond, fl.record)

	d.Queue("sess-1")
	if d.PendingCount() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", d.PendingCount())
	}

	d.Stop()
	if d.PendingCount() != 0 {
		t.Errorf("expected pending timers cleared, got %d", d.PendingCount())
	}
	if d.Queue("sess-2") {
		t.Error("expected queue rejected after stop")
	}

	time.Sleep(100 * time.Millisecond)
	if got := fl.snapshot(); len(got) != 0 {
		t.Errorf("expected no notifications after stop, got %v", got)
	}
}
