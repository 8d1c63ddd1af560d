package gitexec

import (
	"context"
	"strconv"
	"strings"

	"github.com/KKould/snowtree/db"
)

// Git wraps the executor with typed git operations. Reads are not recorded
// in the timeline; writes are, bracketed with started/finished rows.
type Git struct {
	exec   *Executor
	binary string
}

// NewGit creates a git helper; binary defaults to "git"
func NewGit(exec *Executor, binary string) *Git {
	if binary == "" {
		binary = "git"
	}
	return &Git{exec: exec, binary: binary}
}

// DiffStats aggregates numstat output for one diff
type DiffStats struct {
	Files     []string `json:"files"`
	Additions int      `json:"additions"`
	Deletions int      `json:"deletions"`
}

// HeadCommit returns the current HEAD hash, or "" for a repo with no commits
func (g *Git) HeadCommit(ctx context.Context, cwd string) (string, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "rev-parse", "HEAD"},
		Op:   OpRead,
		// A repo with no commits yet exits non-zero; treat the unknown
		// revision message as success with empty output.
		TreatAsSuccessIfOutputIncludes: []string{"unknown revision", "ambiguous argument 'HEAD'"},
	})
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(res.Stdout)
	if strings.Contains(hash, " ") {
		// Output was the excused error text, not a hash
		return "", nil
	}
	return hash, nil
}

// DiffRange returns the unified diff between two commits
func (g *Git) DiffRange(ctx context.Context, cwd, before, after string) (string, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "diff", before + ".." + after},
		Op:   OpRead,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// DiffWorkingTree returns the unified diff of uncommitted changes against HEAD
func (g *Git) DiffWorkingTree(ctx context.Context, cwd string) (string, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "diff", "HEAD"},
		Op:   OpRead,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// NumStatRange returns aggregated diff stats between two commits
func (g *Git) NumStatRange(ctx context.Context, cwd, before, after string) (DiffStats, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "diff", "--numstat", before + ".." + after},
		Op:   OpRead,
	})
	if err != nil {
		return DiffStats{}, err
	}
	return parseNumStat(res.Stdout), nil
}

// NumStatWorkingTree returns aggregated diff stats for uncommitted changes
func (g *Git) NumStatWorkingTree(ctx context.Context, cwd string) (DiffStats, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "diff", "--numstat", "HEAD"},
		Op:   OpRead,
	})
	if err != nil {
		return DiffStats{}, err
	}
	return parseNumStat(res.Stdout), nil
}

// CommitSubject returns the subject line of a commit. Callers treat failure
// as cosmetic (empty message), not fatal.
func (g *Git) CommitSubject(ctx context.Context, cwd, hash string) (string, error) {
	res, err := g.exec.Run(ctx, Request{
		Cwd:  cwd,
		Argv: []string{g.binary, "log", "-1", "--format=%s", hash},
		Op:   OpRead,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// AddWorktree checks out a new worktree on its own branch. Recorded in the
// session's timeline.
func (g *Git) AddWorktree(ctx context.Context, sessionID, repoPath, worktreePath, branch string) error {
	_, err := g.exec.Run(ctx, Request{
		Cwd:       repoPath,
		Argv:      []string{g.binary, "worktree", "add", "-b", branch, worktreePath},
		SessionID: sessionID,
		Op:        OpWrite,
		Kind:      db.TimelineKindWorktreeCommand,
	})
	return err
}

// RemoveWorktree removes a session's worktree, discarding local changes
func (g *Git) RemoveWorktree(ctx context.Context, sessionID, repoPath, worktreePath string) error {
	_, err := g.exec.Run(ctx, Request{
		Cwd:       repoPath,
		Argv:      []string{g.binary, "worktree", "remove", "--force", worktreePath},
		SessionID: sessionID,
		Op:        OpWrite,
		Kind:      db.TimelineKindWorktreeCommand,
	})
	return err
}

// PruneWorktrees cleans up stale worktree registrations
func (g *Git) PruneWorktrees(ctx context.Context, repoPath string) error {
	_, err := g.exec.Run(ctx, Request{
		Cwd:  repoPath,
		Argv: []string{g.binary, "worktree", "prune"},
		Op:   OpRead,
	})
	return err
}

// Push pushes the current branch. git push exits 1 with "Everything
// up-to-date" on stderr when there is nothing to push; that is success.
func (g *Git) Push(ctx context.Context, sessionID, cwd string) (*Result, error) {
	return g.exec.Run(ctx, Request{
		Cwd:                            cwd,
		Argv:                           []string{g.binary, "push"},
		SessionID:                      sessionID,
		Op:                             OpWrite,
		TreatAsSuccessIfOutputIncludes: []string{"Everything up-to-date"},
	})
}

// StageHunk applies a diff hunk to the index only, leaving the working tree
// untouched. The patch is fed on stdin.
func (g *Git) StageHunk(ctx context.Context, sessionID, cwd string, patch []byte) error {
	_, err := g.exec.Run(ctx, Request{
		Cwd:       cwd,
		Argv:      []string{g.binary, "apply", "--cached", "--whitespace=nowarn", "-"},
		Stdin:     patch,
		SessionID: sessionID,
		Op:        OpWrite,
	})
	return err
}

// RestoreHunk reverses a diff hunk in the working tree, discarding that
// change while leaving the rest of the file alone.
func (g *Git) RestoreHunk(ctx context.Context, sessionID, cwd string, patch []byte) error {
	_, err := g.exec.Run(ctx, Request{
		Cwd:       cwd,
		Argv:      []string{g.binary, "apply", "--reverse", "--whitespace=nowarn", "-"},
		Stdin:     patch,
		SessionID: sessionID,
		Op:        OpWrite,
	})
	return err
}

// parseNumStat parses `git diff --numstat` output. Binary files report "-"
// for both counts and contribute only to the file list.
func parseNumStat(output string) DiffStats {
	stats := DiffStats{Files: []string{}}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		if add, err := strconv.Atoi(fields[0]); err == nil {
			stats.Additions += add
		}
		if del, err := strconv.Atoi(fields[1]); err == nil {
			stats.Deletions += del
		}
		stats.Files = append(stats.Files, fields[2])
	}
	return stats
}
