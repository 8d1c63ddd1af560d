package parser

import "testing"

func TestGeminiParser_ContentAccumulatesPerPanel(t *testing.T) {
	p := NewGeminiParser()

	p.Parse("content", map[string]any{"text": "part one "}, "panel-1")
	snap := parseOne(t, p, "content", map[string]any{"text": "part two"}, "panel-1")
	if snap == nil || !snap.Streaming {
		t.Fatalf("expected streaming snapshot, got %+v", snap)
	}
	if snap.Content != "part one part two" {
		t.Errorf("expected accumulated text, got '%s'", snap.Content)
	}

	final := parseOne(t, p, "assistant", map[string]any{}, "panel-1")
	if final == nil || final.Streaming {
		t.Fatalf("expected finalized entry, got %+v", final)
	}
	if final.Content != "part one part two" {
		t.Errorf("expected finalized accumulation, got '%s'", final.Content)
	}
}

func TestGeminiParser_ToolCallAndResult(t *testing.T) {
	p := NewGeminiParser()

	call := parseOne(t, p, "tool_call", map[string]any{
		"callId": "c-1",
		"name":   "write_file",
		"args":   map[string]any{"file_path": "/tmp/out.txt"},
	}, "panel-1")
	if call == nil {
		t.Fatal("expected tool_use entry")
	}
	if call.Action == nil || call.Action.Kind != ActionFileWrite {
		t.Errorf("expected file_write action, got %+v", call.Action)
	}

	result := parseOne(t, p, "tool_result", map[string]any{
		"callId": "c-1",
		"status": "error",
		"output": "disk full",
	}, "panel-1")
	if result == nil {
		t.Fatal("expected tool_result entry")
	}
	if result.ToolStatus != ToolStatusFailed {
		t.Errorf("expected failed status, got %s", result.ToolStatus)
	}
	if result.Content != "disk full" {
		t.Errorf("expected 'disk full', got '%s'", result.Content)
	}
}

func TestGeminiParser_DeniedEvents(t *testing.T) {
	p := NewGeminiParser()
	for _, denied := range []string{"loading", "stats", "quota", "usage", "init"} {
		if entries := p.Parse(denied, map[string]any{}, "panel-1"); len(entries) != 0 {
			t.Errorf("expected nothing for denied event %s, got %d entries", denied, len(entries))
		}
	}
}

func TestGeminiParser_TurnCompleteFlushesStream(t *testing.T) {
	p := NewGeminiParser()
	p.Parse("content", map[string]any{"text": "dangling"}, "panel-1")

	entries := p.Parse("turn_complete", map[string]any{}, "panel-1")
	if len(entries) != 2 {
		t.Fatalf("expected flushed entry plus terminal entry, got %d", len(entries))
	}
	if entries[0].Content != "dangling" {
		t.Errorf("expected flushed 'dangling', got '%s'", entries[0].Content)
	}
	done := entries[1]
	if done.EntryType != EntrySystemMessage {
		t.Fatalf("expected system_message, got %+v", done)
	}
	if !done.TurnComplete {
		t.Error("expected TurnComplete on turn_complete")
	}

	// Stream state was evicted: a fresh content event starts from scratch
	next := parseOne(t, p, "content", map[string]any{"text": "new"}, "panel-1")
	if next.Content != "new" {
		t.Errorf("expected fresh accumulation 'new', got '%s'", next.Content)
	}
}
