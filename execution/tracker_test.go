package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/gitexec"
)

func testTracker(t *testing.T) (*Tracker, *db.Store, *gitexec.Executor) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := gitexec.NewExecutor(nil, 0)
	git := gitexec.NewGit(e, "git")
	return NewTracker(store, git), store, e
}

func mustRun(t *testing.T, e *gitexec.Executor, dir string, argv ...string) {
	t.Helper()
	if _, err := e.Run(context.Background(), gitexec.Request{Cwd: dir, Argv: argv}); err != nil {
		t.Fatalf("command %v failed: %v", argv, err)
	}
}

func initRepo(t *testing.T, e *gitexec.Executor) string {
	t.Helper()
	dir := t.TempDir()
	mustRun(t, e, dir, "git", "init", "-q")
	mustRun(t, e, dir, "git", "config", "user.email", "test@example.com")
	mustRun(t, e, dir, "git", "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, e, dir, "git", "add", "-A")
	mustRun(t, e, dir, "git", "commit", "-q", "-m", "initial commit")
	return dir
}

func TestStartExecution_RejectsDoubleStart(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := tracker.StartExecution(ctx, "sess-1", dir); !errors.Is(err, ErrExecutionInProgress) {
		t.Fatalf("expected ErrExecutionInProgress, got %v", err)
	}
	if !tracker.IsTracking("sess-1") {
		t.Error("rejected start must not clobber the in-flight execution")
	}
}

func TestEndExecution_WithoutStart(t *testing.T) {
	tracker, store, _ := testTracker(t)

	_, err := tracker.EndExecution(context.Background(), "sess-1")
	if !errors.Is(err, ErrNotTracking) {
		t.Fatalf("expected ErrNotTracking, got %v", err)
	}

	diffs, err := store.ListExecutionDiffs("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 0 {
		t.Errorf("expected no diff records, got %d", len(diffs))
	}
}

func TestEndExecution_ZeroChangeStillRecordsOneDiff(t *testing.T) {
	tracker, store, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	diff, err := tracker.EndExecution(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	if diff.GitDiff != "" {
		t.Errorf("expected empty diff text, got %q", diff.GitDiff)
	}
	if diff.BeforeCommitHash != diff.AfterCommitHash {
		t.Error("expected identical hashes for unchanged worktree")
	}
	if diff.ExecutionSequence != 1 {
		t.Errorf("expected sequence 1, got %d", diff.ExecutionSequence)
	}

	diffs, err := store.ListExecutionDiffs("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 1 {
		t.Fatalf("expected exactly one diff record, got %d", len(diffs))
	}
}

func TestEndExecution_UncommittedChangesUseWorkingTreeDiff(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	diff, err := tracker.EndExecution(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff.BeforeCommitHash != diff.AfterCommitHash {
		t.Error("expected hashes equal with nothing committed")
	}
	if diff.GitDiff == "" {
		t.Error("expected working tree diff captured")
	}
	if diff.StatsAdditions != 1 {
		t.Errorf("expected 1 addition, got %d", diff.StatsAdditions)
	}
	if diff.StatsFilesChanged != 1 {
		t.Errorf("expected 1 file changed, got %d", diff.StatsFilesChanged)
	}
}

func TestEndExecution_CommittedChangesUseRangeDiff(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("fresh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, e, dir, "git", "add", "-A")
	mustRun(t, e, dir, "git", "commit", "-q", "-m", "agent work")

	diff, err := tracker.EndExecution(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff.BeforeCommitHash == diff.AfterCommitHash {
		t.Error("expected hashes to differ after commit")
	}
	if diff.CommitMessage != "agent work" {
		t.Errorf("expected commit subject captured, got %q", diff.CommitMessage)
	}
	if diff.GitDiff == "" {
		t.Error("expected range diff captured")
	}
}

func TestExecutionSequence_Increments(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
			t.Fatal(err)
		}
		diff, err := tracker.EndExecution(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if diff.ExecutionSequence != want {
			t.Errorf("expected sequence %d, got %d", want, diff.ExecutionSequence)
		}
	}
}

func TestCancelExecution_DiscardsWithoutDiff(t *testing.T) {
	tracker, store, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	tracker.CancelExecution("sess-1")

	if tracker.IsTracking("sess-1") {
		t.Error("expected tracking cleared after cancel")
	}
	diffs, err := store.ListExecutionDiffs("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 0 {
		t.Errorf("expected no diff records after cancel, got %d", len(diffs))
	}

	// A fresh start must now succeed
	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Errorf("expected start after cancel to succeed, got %v", err)
	}
}

func TestNextOptions_ConsumedOnce(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	markerID := "marker-1"
	tracker.SetNextExecutionOptions("sess-1", NextOptions{PromptMarkerID: &markerID})

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	first, err := tracker.EndExecution(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.PromptMarkerID == nil || *first.PromptMarkerID != markerID {
		t.Errorf("expected prompt marker on first execution, got %v", first.PromptMarkerID)
	}

	if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
		t.Fatal(err)
	}
	second, err := tracker.EndExecution(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.PromptMarkerID != nil {
		t.Errorf("expected one-shot options consumed, got %v", second.PromptMarkerID)
	}
}

func TestGetCombinedDiff_AggregatesAndFilters(t *testing.T) {
	tracker, _, e := testTracker(t)
	dir := initRepo(t, e)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 2; i++ {
		if err := tracker.StartExecution(ctx, "sess-1", dir); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "a.txt"), append([]byte("one\n"), byte('a'+i), '\n'), 0o644); err != nil {
			t.Fatal(err)
		}
		diff, err := tracker.EndExecution(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, diff.ID)
	}

	all, err := tracker.GetCombinedDiff("sess-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Executions) != 2 {
		t.Errorf("expected 2 executions combined, got %d", len(all.Executions))
	}
	if len(all.FilesChanged) != 1 || all.FilesChanged[0] != "a.txt" {
		t.Errorf("expected deduplicated file list [a.txt], got %v", all.FilesChanged)
	}

	one, err := tracker.GetCombinedDiff("sess-1", ids[:1])
	if err != nil {
		t.Fatal(err)
	}
	if len(one.Executions) != 1 || one.Executions[0] != ids[0] {
		t.Errorf("expected filter to select first execution only, got %v", one.Executions)
	}
}
