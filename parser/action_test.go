package parser

import "testing"

func TestDeriveAction_Classification(t *testing.T) {
	cases := []struct {
		name     string
		tool     string
		input    map[string]any
		wantKind string
	}{
		{"claude read", "Read", map[string]any{"file_path": "/a"}, ActionFileRead},
		{"generic cat", "cat_file", map[string]any{"path": "/a"}, ActionFileRead},
		{"claude edit", "Edit", map[string]any{"file_path": "/a"}, ActionFileEdit},
		{"str replace", "str_replace_editor", map[string]any{"path": "/a"}, ActionFileEdit},
		{"write", "Write", map[string]any{"file_path": "/a"}, ActionFileWrite},
		{"create file", "create_file", nil, ActionFileWrite},
		{"bash", "Bash", map[string]any{"command": "ls"}, ActionCommandRun},
		{"shell", "run_shell_command", map[string]any{"command": "ls"}, ActionCommandRun},
		{"web fetch", "WebFetch", map[string]any{"url": "https://x"}, ActionWebFetch},
		{"grep", "Grep", map[string]any{"pattern": "foo"}, ActionSearch},
		{"glob", "Glob", map[string]any{"pattern": "*.go"}, ActionSearch},
		{"unknown with command input", "mystery", map[string]any{"command": "make"}, ActionCommandRun},
		{"unknown with url input", "mystery", map[string]any{"url": "https://x"}, ActionWebFetch},
		{"fully unknown", "mystery", map[string]any{"blob": 1}, ActionOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action := DeriveAction(tc.tool, tc.input)
			if action == nil {
				t.Fatal("expected action, got nil")
			}
			if action.Kind != tc.wantKind {
				t.Errorf("tool %q: expected kind %s, got %s", tc.tool, tc.wantKind, action.Kind)
			}
		})
	}
}

func TestDeriveAction_PayloadFields(t *testing.T) {
	read := DeriveAction("Read", map[string]any{"file_path": "/tmp/x.go"})
	if read.Path != "/tmp/x.go" {
		t.Errorf("expected path carried through, got '%s'", read.Path)
	}

	run := DeriveAction("Bash", map[string]any{"command": "go vet ./..."})
	if run.Command != "go vet ./..." {
		t.Errorf("expected command carried through, got '%s'", run.Command)
	}

	search := DeriveAction("Grep", map[string]any{"pattern": "TODO"})
	if search.Query != "TODO" {
		t.Errorf("expected query carried through, got '%s'", search.Query)
	}
}

func TestAccumulator_FinalizeEvicts(t *testing.T) {
	a := newAccumulator()
	a.append("k", EntryAssistantMessage, "abc")
	if !a.pending("k") {
		t.Fatal("expected pending state after append")
	}

	final := a.finalize("k")
	if final == nil || final.Content != "abc" {
		t.Fatalf("expected finalized 'abc', got %+v", final)
	}
	if a.pending("k") {
		t.Error("expected key evicted after finalize")
	}
	if again := a.finalize("k"); again != nil {
		t.Errorf("expected nil on double finalize, got %+v", again)
	}
}

func TestAccumulator_SnapshotIsolation(t *testing.T) {
	a := newAccumulator()
	snap1 := a.append("k", EntryAssistantMessage, "a")
	a.append("k", EntryAssistantMessage, "b")

	if snap1.Content != "a" {
		t.Errorf("expected earlier snapshot unchanged, got '%s'", snap1.Content)
	}
}
