package panel

import (
	"path/filepath"
	"testing"

	"github.com/KKould/snowtree/db"
)

func testManager(t *testing.T) (*Manager, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := NewManager(store)
	if err := m.Initialize(); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	return m, store
}

func createSession(t *testing.T, store *db.Store, id string) {
	t.Helper()
	sess := &db.Session{ID: id, Name: id, WorktreePath: "/wt/" + id, Status: db.SessionStatusPending, ToolType: TypeClaude}
	if err := store.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
}

func activeCount(panels []db.ToolPanel) int {
	n := 0
	for _, p := range panels {
		if p.State.IsActive {
			n++
		}
	}
	return n
}

func TestCreatePanel_ActivatesExclusively(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	first, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	if err != nil {
		t.Fatal(err)
	}
	if !first.State.IsActive {
		t.Error("expected first panel active")
	}

	second, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeDiff})
	if err != nil {
		t.Fatal(err)
	}
	if !second.State.IsActive {
		t.Error("expected new panel active")
	}

	panels := m.ListSessionPanels("sess-1")
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(panels))
	}
	if activeCount(panels) != 1 {
		t.Errorf("expected exactly one active panel, got %d", activeCount(panels))
	}
	if got := m.GetPanel(first.ID); got.State.IsActive {
		t.Error("expected first panel deactivated")
	}
}

func TestCreatePanel_DoesNotAffectOtherSessions(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")
	createSession(t, store, "sess-2")

	p1, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreatePanel(CreateRequest{SessionID: "sess-2", Type: TypeClaude}); err != nil {
		t.Fatal(err)
	}

	if got := m.GetPanel(p1.ID); !got.State.IsActive {
		t.Error("activation in another session must not deactivate this one")
	}
}

func TestCreatePanel_FailedSaveKeepsSiblingActive(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	first, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	if err != nil {
		t.Fatal(err)
	}

	// Deleting the session row makes the next panel insert fail its foreign
	// key; the cached sibling must keep its active flag.
	if _, err := store.DB().Exec(`DELETE FROM sessions WHERE id = ?`, "sess-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeDiff}); err == nil {
		t.Fatal("expected create to fail after session deletion")
	}

	if got := m.GetPanel(first.ID); got == nil || !got.State.IsActive {
		t.Error("expected existing panel still active after failed create")
	}
}

func TestCreatePanel_DefaultTitles(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	p, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeGemini})
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Gemini" {
		t.Errorf("expected default title 'Gemini', got %q", p.Title)
	}
}

func TestDeletePanel_PromotesAnotherPanel(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	first, _ := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	second, _ := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeDiff})

	// second is active; deleting it must promote first
	if err := m.DeletePanel(second.ID); err != nil {
		t.Fatal(err)
	}

	if m.GetPanel(second.ID) != nil {
		t.Error("expected deleted panel gone")
	}
	promoted := m.GetPanel(first.ID)
	if promoted == nil || !promoted.State.IsActive {
		t.Error("expected remaining panel promoted to active")
	}
}

func TestDeletePanel_PermanentIsProtected(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	p, err := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeLogs, Permanent: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.DeletePanel(p.ID); err != nil {
		t.Fatal(err)
	}
	if m.GetPanel(p.ID) == nil {
		t.Error("expected permanent panel to survive delete")
	}
}

func TestUpdatePanel_MergesCustomState(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	p, _ := m.CreatePanel(CreateRequest{
		SessionID:   "sess-1",
		Type:        TypeClaude,
		CustomState: map[string]any{"model": "opus", "isRunning": true},
	})

	updated, err := m.UpdatePanel(p.ID, UpdateRequest{
		State: &StatePatch{CustomState: map[string]any{"isRunning": false}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.State.CustomState["isRunning"] != false {
		t.Error("expected isRunning overwritten")
	}
	if updated.State.CustomState["model"] != "opus" {
		t.Error("expected untouched keys preserved in merge")
	}
}

func TestSetActivePanel_NilDeactivatesAll(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeDiff})

	if err := m.SetActivePanel("sess-1", nil); err != nil {
		t.Fatal(err)
	}
	if activeCount(m.ListSessionPanels("sess-1")) != 0 {
		t.Error("expected no active panels after nil activation")
	}
}

func TestSetActivePanel_RejectsForeignPanel(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")
	createSession(t, store, "sess-2")

	p, _ := m.CreatePanel(CreateRequest{SessionID: "sess-2", Type: TypeClaude})

	if err := m.SetActivePanel("sess-1", &p.ID); err == nil {
		t.Error("expected error activating a panel from another session")
	}
}

func TestInitialize_ClearsStaleRunningFlags(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	createSession(t, store, "sess-1")

	p := &db.ToolPanel{
		ID:        "panel-1",
		SessionID: "sess-1",
		Type:      TypeClaude,
		Title:     "Claude",
		State:     db.PanelState{CustomState: map[string]any{"isRunning": true}},
	}
	if err := store.SavePanel(p); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store)
	if err := m.Initialize(); err != nil {
		t.Fatal(err)
	}

	got := m.GetPanel("panel-1")
	if got.State.CustomState["isRunning"] != false {
		t.Error("expected stale running flag cleared on initialize")
	}

	// The correction must be persisted, not just cached
	persisted, err := store.GetPanel("panel-1")
	if err != nil {
		t.Fatal(err)
	}
	if persisted.State.CustomState["isRunning"] != false {
		t.Error("expected cleared flag persisted")
	}
}

func TestCleanupSessionPanels_KeepsPermanent(t *testing.T) {
	m, store := testManager(t)
	createSession(t, store, "sess-1")

	m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeClaude})
	keep, _ := m.CreatePanel(CreateRequest{SessionID: "sess-1", Type: TypeLogs, Permanent: true})

	if err := m.CleanupSessionPanels("sess-1"); err != nil {
		t.Fatal(err)
	}

	panels := m.ListSessionPanels("sess-1")
	if len(panels) != 1 || panels[0].ID != keep.ID {
		t.Errorf("expected only the permanent panel to remain, got %d panels", len(panels))
	}
}
