package agent

import (
	"os"
	"testing"
	"time"
)

func TestSplitConcatenatedJSON(t *testing.T) {
	objs := splitConcatenatedJSON([]byte(`{"a":1}{"b":2}{"c":3}`))
	if len(objs) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objs))
	}
	if string(objs[1]) != `{"b":2}` {
		t.Errorf("expected second object '{\"b\":2}', got %q", objs[1])
	}
}

func TestSplitConcatenatedJSON_SingleObject(t *testing.T) {
	objs := splitConcatenatedJSON([]byte(`{"type":"assistant"}`))
	if len(objs) != 1 || string(objs[0]) != `{"type":"assistant"}` {
		t.Errorf("expected single object passthrough, got %q", objs)
	}
}

func TestSplitConcatenatedJSON_NonJSONDeliveredWhole(t *testing.T) {
	objs := splitConcatenatedJSON([]byte("Warning: something happened"))
	if len(objs) != 1 || string(objs[0]) != "Warning: something happened" {
		t.Errorf("expected raw line passthrough, got %q", objs)
	}
}

func TestExtractJSONSessionID(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init","session_id":"abc-123"}`)
	if got := extractJSONSessionID(line, "session_id", "sessionId"); got != "abc-123" {
		t.Errorf("expected 'abc-123', got %q", got)
	}

	if got := extractJSONSessionID([]byte(`{"type":"ping"}`), "session_id"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}
	if got := extractJSONSessionID([]byte("not json"), "session_id"); got != "" {
		t.Errorf("expected empty for non-JSON, got %q", got)
	}
}

func TestPipeProcess_StreamsLinesAndExitCode(t *testing.T) {
	p, err := startPipeProcess(
		[]string{"sh", "-c", `printf '{"n":1}\n{"n":2}\n'; exit 7`},
		t.TempDir(), os.Environ())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	var got []string
	for line := range p.lines {
		got = append(got, string(line))
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(got), got)
	}
	if got[0] != `{"n":1}` {
		t.Errorf("unexpected first line %q", got[0])
	}

	select {
	case code := <-p.exitCh:
		if code != 7 {
			t.Errorf("expected exit code 7, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit code")
	}
}

func TestPipeProcess_ConcatenatedObjectsOnOneLine(t *testing.T) {
	p, err := startPipeProcess(
		[]string{"sh", "-c", `printf '{"a":1}{"b":2}\n'`},
		t.TempDir(), os.Environ())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	var got []string
	for line := range p.lines {
		got = append(got, string(line))
	}
	if len(got) != 2 {
		t.Fatalf("expected concatenated objects split into 2 lines, got %v", got)
	}
	<-p.exitCh
}

func TestPipeProcess_WriteReachesStdin(t *testing.T) {
	p, err := startPipeProcess(
		[]string{"sh", "-c", "read line; echo got:$line"},
		t.TempDir(), os.Environ())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	if err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case line := <-p.lines:
		if string(line) != "got:hello" {
			t.Errorf("expected echoed input, got %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed line")
	}
	p.Close()
}

func TestBaseExecutor_PumpEmitsOutputAndExit(t *testing.T) {
	b := newBaseExecutor(func(line []byte) string {
		return extractJSONSessionID(line, "session_id")
	})

	p, err := startPipeProcess(
		[]string{"sh", "-c", `printf '{"session_id":"agent-9"}\n{"msg":"hi"}\n'`},
		t.TempDir(), os.Environ())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	b.track("panel-1", "sess-1", p)

	var sawSessionID, sawOutput, sawExit bool
	deadline := time.After(10 * time.Second)
	for !sawExit {
		select {
		case ev := <-b.Events():
			switch ev.Type {
			case EventSessionID:
				if ev.AgentSessionID != "agent-9" {
					t.Errorf("expected agent session id 'agent-9', got %q", ev.AgentSessionID)
				}
				sawSessionID = true
			case EventOutput:
				sawOutput = true
			case EventExit:
				if ev.ExitCode != 0 {
					t.Errorf("expected exit 0, got %d", ev.ExitCode)
				}
				sawExit = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
	if !sawSessionID {
		t.Error("expected a session id event")
	}
	if !sawOutput {
		t.Error("expected output events")
	}

	if _, ok := b.proc("panel-1"); ok {
		t.Error("expected process unregistered after exit")
	}
}

func TestBaseExecutor_StopClosesEvents(t *testing.T) {
	b := newBaseExecutor(nil)

	p, err := startPipeProcess(
		[]string{"sh", "-c", "read line"},
		t.TempDir(), os.Environ())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	b.track("panel-1", "sess-1", p)

	done := make(chan struct{})
	go func() {
		// Consumer loop must terminate when Stop closes the channel
		for range b.Events() {
		}
		close(done)
	}()

	b.Stop()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer still blocked after Stop; event channel not closed")
	}
}

func TestBaseExecutor_InterruptWithoutProcessIsNoop(t *testing.T) {
	b := newBaseExecutor(nil)
	if err := b.Interrupt("nope"); err != nil {
		t.Errorf("expected nil for missing process, got %v", err)
	}
	if err := b.sendRaw("nope", []byte("x")); err != ErrProcessNotFound {
		t.Errorf("expected ErrProcessNotFound, got %v", err)
	}
}
