package parser

import "testing"

func TestCodexParser_MessageDeltasThenComplete(t *testing.T) {
	p := NewCodexParser()

	first := parseOne(t, p, "agent_message_delta", map[string]any{"item_id": "item-1", "delta": "foo"}, "panel-1")
	if first == nil || !first.Streaming {
		t.Fatalf("expected streaming snapshot, got %+v", first)
	}

	second := parseOne(t, p, "agent_message_delta", map[string]any{"item_id": "item-1", "delta": "bar"}, "panel-1")
	if second.Content != "foobar" {
		t.Errorf("expected 'foobar', got '%s'", second.Content)
	}

	final := parseOne(t, p, "agent_message", map[string]any{"item_id": "item-1", "message": "foobar"}, "panel-1")
	if final == nil {
		t.Fatal("expected finalized entry")
	}
	if final.Streaming {
		t.Error("expected Streaming=false after agent_message")
	}
	if final.Content != "foobar" {
		t.Errorf("expected 'foobar', got '%s'", final.Content)
	}
}

func TestCodexParser_MessageWithoutDeltas(t *testing.T) {
	p := NewCodexParser()
	entry := parseOne(t, p, "agent_message", map[string]any{"item_id": "item-9", "message": "direct"}, "panel-1")
	if entry == nil {
		t.Fatal("expected entry")
	}
	if entry.Content != "direct" {
		t.Errorf("expected 'direct', got '%s'", entry.Content)
	}
	if entry.EntryType != EntryAssistantMessage {
		t.Errorf("expected assistant_message, got %s", entry.EntryType)
	}
}

func TestCodexParser_ExecCommandLifecycle(t *testing.T) {
	p := NewCodexParser()

	begin := parseOne(t, p, "exec_command_begin", map[string]any{
		"call_id": "call-1",
		"command": []any{"ls", "-la"},
	}, "panel-1")
	if begin == nil {
		t.Fatal("expected tool_use entry")
	}
	if begin.Content != "ls -la" {
		t.Errorf("expected joined argv 'ls -la', got '%s'", begin.Content)
	}
	if begin.Action == nil || begin.Action.Kind != ActionCommandRun {
		t.Errorf("expected command_run action, got %+v", begin.Action)
	}

	end := parseOne(t, p, "exec_command_end", map[string]any{
		"call_id":           "call-1",
		"exit_code":         float64(1),
		"aggregated_output": "permission denied",
	}, "panel-1")
	if end == nil {
		t.Fatal("expected tool_result entry")
	}
	if end.ToolStatus != ToolStatusFailed {
		t.Errorf("expected failed status for exit 1, got %s", end.ToolStatus)
	}
}

func TestCodexParser_DeniedMethods(t *testing.T) {
	p := NewCodexParser()
	for _, method := range []string{"token_count", "task_started", "turn_context", "session_meta", "raw_output"} {
		if entries := p.Parse(method, map[string]any{}, "panel-1"); len(entries) != 0 {
			t.Errorf("expected nothing for denied method %s, got %d entries", method, len(entries))
		}
	}
}

func TestCodexParser_TaskCompleteMarksTurnComplete(t *testing.T) {
	p := NewCodexParser()
	entry := parseOne(t, p, "task_complete", map[string]any{}, "panel-1")
	if entry == nil || entry.EntryType != EntrySystemMessage {
		t.Fatalf("expected system_message, got %+v", entry)
	}
	if !entry.TurnComplete {
		t.Error("expected TurnComplete on task_complete")
	}
}

func TestCodexParser_TaskCompleteFlushesDanglingStream(t *testing.T) {
	// Deltas keyed on the panel fallback with no agent_message close must
	// still surface when the turn ends.
	p := NewCodexParser()
	p.Parse("agent_message_delta", map[string]any{"delta": "half an answer"}, "panel-1")

	entries := p.Parse("task_complete", map[string]any{}, "panel-1")
	if len(entries) != 2 {
		t.Fatalf("expected flushed entry plus terminal entry, got %d", len(entries))
	}
	if entries[0].Content != "half an answer" {
		t.Errorf("expected flushed 'half an answer', got '%s'", entries[0].Content)
	}
	if entries[0].Streaming {
		t.Error("expected flushed entry finalized")
	}
	if !entries[1].TurnComplete {
		t.Error("expected terminal entry to mark turn complete")
	}
}

func TestCodexParser_ErrorEvent(t *testing.T) {
	p := NewCodexParser()
	entry := parseOne(t, p, "error", map[string]any{"message": "rate limited"}, "panel-1")
	if entry == nil || entry.EntryType != EntryErrorMessage {
		t.Fatalf("expected error_message, got %+v", entry)
	}
	if entry.Content != "rate limited" {
		t.Errorf("expected 'rate limited', got '%s'", entry.Content)
	}
}

func TestCodexParser_UnknownMethodWraps(t *testing.T) {
	p := NewCodexParser()
	entry := parseOne(t, p, "future_notification", map[string]any{}, "panel-1")
	if entry == nil || entry.EntryType != EntrySystemMessage {
		t.Fatalf("expected system_message wrap, got %+v", entry)
	}
}
