package gitexec

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRun_EmptyArgvRejected(t *testing.T) {
	e := NewExecutor(nil, 0)
	_, err := e.Run(context.Background(), Request{Cwd: t.TempDir()})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	e := NewExecutor(nil, 0)
	res, err := e.Run(context.Background(), Request{
		Cwd:  t.TempDir(),
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if res.Stdout != "out\n" {
		t.Errorf("expected stdout 'out', got %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Errorf("expected stderr 'err', got %q", res.Stderr)
	}
}

func TestRun_NonZeroExitReturnsTypedError(t *testing.T) {
	e := NewExecutor(nil, 0)
	res, err := e.Run(context.Background(), Request{
		Cwd:  t.TempDir(),
		Argv: []string{"sh", "-c", "echo broken >&2; exit 3"},
	})

	var exitErr *NonZeroExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected NonZeroExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", exitErr.ExitCode)
	}
	if res == nil || res.Stderr != "broken\n" {
		t.Errorf("expected partial output on failure, got %+v", res)
	}
}

func TestRun_TreatAsSuccessExcusesExit(t *testing.T) {
	e := NewExecutor(nil, 0)
	res, err := e.Run(context.Background(), Request{
		Cwd:                            t.TempDir(),
		Argv:                           []string{"sh", "-c", "echo 'Everything up-to-date' >&2; exit 1"},
		TreatAsSuccessIfOutputIncludes: []string{"Everything up-to-date"},
	})
	if err != nil {
		t.Fatalf("expected excused success, got %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected excused exit code 0, got %d", res.ExitCode)
	}
}

func TestRun_TreatAsSuccessRequiresMatch(t *testing.T) {
	e := NewExecutor(nil, 0)
	_, err := e.Run(context.Background(), Request{
		Cwd:                            t.TempDir(),
		Argv:                           []string{"sh", "-c", "echo other >&2; exit 1"},
		TreatAsSuccessIfOutputIncludes: []string{"Everything up-to-date"},
	})
	var exitErr *NonZeroExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected NonZeroExitError without matching output, got %v", err)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	e := NewExecutor(nil, 0)
	start := time.Now()
	res, err := e.Run(context.Background(), Request{
		Cwd:       t.TempDir(),
		Argv:      []string{"sleep", "10"},
		TimeoutMs: 100,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if res.ExitCode != -1 {
		t.Errorf("expected exit code -1 on timeout, got %d", res.ExitCode)
	}
	if elapsed > 5*time.Second {
		t.Errorf("process not killed promptly, took %s", elapsed)
	}
}

func TestShellQuote(t *testing.T) {
	cases := []struct {
		argv []string
		want string
	}{
		{[]string{"git", "status"}, "git status"},
		{[]string{"git", "commit", "-m", "two words"}, "git commit -m 'two words'"},
		{[]string{"echo", ""}, "echo ''"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
	}
	for _, tc := range cases {
		if got := shellQuote(tc.argv); got != tc.want {
			t.Errorf("shellQuote(%v) = %q, want %q", tc.argv, got, tc.want)
		}
	}
}

func TestParseNumStat(t *testing.T) {
	out := "10\t2\tmain.go\n-\t-\timage.png\n0\t5\tREADME.md\n"
	stats := parseNumStat(out)

	if stats.Additions != 10 {
		t.Errorf("expected 10 additions, got %d", stats.Additions)
	}
	if stats.Deletions != 7 {
		t.Errorf("expected 7 deletions, got %d", stats.Deletions)
	}
	if len(stats.Files) != 3 {
		t.Errorf("expected 3 files (binary included), got %d", len(stats.Files))
	}
}

func TestParseNumStat_Empty(t *testing.T) {
	stats := parseNumStat("")
	if stats.Additions != 0 || stats.Deletions != 0 || len(stats.Files) != 0 {
		t.Errorf("expected zero stats for empty diff, got %+v", stats)
	}
}
