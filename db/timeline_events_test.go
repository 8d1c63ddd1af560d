package db

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendTimelineEvent_SeqStartsAtOneAndIsContiguous(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 5; i++ {
		ev := &TimelineEvent{
			SessionID: "sess-1",
			Kind:      TimelineKindGitCommand,
			Status:    TimelineStatusStarted,
		}
		if err := store.AppendTimelineEvent(ev); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if ev.Seq != int64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, ev.Seq)
		}
	}
}

func TestAppendTimelineEvent_PerSessionSequences(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 3; i++ {
		for _, sessionID := range []string{"sess-a", "sess-b"} {
			ev := &TimelineEvent{SessionID: sessionID, Kind: TimelineKindCLICommand, Status: TimelineStatusStarted}
			if err := store.AppendTimelineEvent(ev); err != nil {
				t.Fatal(err)
			}
		}
	}

	for _, sessionID := range []string{"sess-a", "sess-b"} {
		events, err := store.ListTimelineEvents(sessionID)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events for %s, got %d", sessionID, len(events))
		}
		for i, ev := range events {
			if ev.Seq != int64(i+1) {
				t.Errorf("%s: expected seq %d at position %d, got %d", sessionID, i+1, i, ev.Seq)
			}
		}
	}
}

func TestAppendTimelineEvent_ConcurrentWritersStayGapFree(t *testing.T) {
	store := testStore(t)

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ev := &TimelineEvent{
					SessionID: "sess-1",
					Kind:      TimelineKindGitCommand,
					Status:    TimelineStatusStarted,
					Meta:      map[string]any{"operationId": uuid.NewString()},
				}
				if err := store.AppendTimelineEvent(ev); err != nil {
					t.Errorf("concurrent append failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	events, err := store.ListTimelineEvents("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != writers*perWriter {
		t.Fatalf("expected %d events, got %d", writers*perWriter, len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Fatalf("sequence gap or duplicate at position %d: seq %d", i, ev.Seq)
		}
	}
}

func TestAppendTimelineEvent_MetaRoundTrip(t *testing.T) {
	store := testStore(t)

	cmd := "git push"
	cwd := "/work/tree"
	ev := &TimelineEvent{
		SessionID: "sess-1",
		Kind:      TimelineKindGitCommand,
		Status:    TimelineStatusFinished,
		Command:   &cmd,
		Cwd:       &cwd,
		Meta:      map[string]any{"operationId": "op-1", "note": "hello"},
	}
	if err := store.AppendTimelineEvent(ev); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListTimelineEvents("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.Meta["operationId"] != "op-1" || got.Meta["note"] != "hello" {
		t.Errorf("meta did not round-trip: %+v", got.Meta)
	}
	if got.Command == nil || *got.Command != cmd {
		t.Errorf("command did not round-trip: %v", got.Command)
	}
}

func TestPruneOrphanTimelineEvents(t *testing.T) {
	store := testStore(t)

	sess := &Session{ID: "sess-live", Name: "live", WorktreePath: "/wt", Status: SessionStatusPending, ToolType: "claude"}
	if err := store.CreateSession(sess); err != nil {
		t.Fatal(err)
	}

	for _, sessionID := range []string{"sess-live", "sess-gone"} {
		ev := &TimelineEvent{SessionID: sessionID, Kind: TimelineKindGitCommand, Status: TimelineStatusStarted}
		if err := store.AppendTimelineEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	pruned, err := store.PruneOrphanTimelineEvents()
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned row, got %d", pruned)
	}

	live, err := store.ListTimelineEvents("sess-live")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 {
		t.Errorf("expected live session's event retained, got %d", len(live))
	}

	gone, err := store.ListTimelineEvents("sess-gone")
	if err != nil {
		t.Fatal(err)
	}
	if len(gone) != 0 {
		t.Errorf("expected orphan events removed, got %d", len(gone))
	}
}

func TestTimelineEvents_SurviveSessionDeletion(t *testing.T) {
	store := testStore(t)

	sess := &Session{ID: "sess-1", Name: "s", WorktreePath: "/wt", Status: SessionStatusPending, ToolType: "claude"}
	if err := store.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
	ev := &TimelineEvent{SessionID: "sess-1", Kind: TimelineKindWorktreeCommand, Status: TimelineStatusStarted}
	if err := store.AppendTimelineEvent(ev); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteSession("sess-1"); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListTimelineEvents("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("expected timeline rows retained after session deletion, got %d", len(events))
	}
}
