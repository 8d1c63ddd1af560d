// Package gitexec runs git (and git-adjacent) subprocesses with timeouts,
// deterministic output, and audit-log bracketing. It shells out to the git
// binary and parses textual output; it never reimplements git internals.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/log"
	"github.com/KKould/snowtree/timeline"
)

var logger = log.GetLogger("GITEXEC")

// DefaultTimeout bounds a subprocess that the caller didn't set a timeout for
const DefaultTimeout = 120 * time.Second

var (
	// ErrInvalidArgument is returned before any process is spawned
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout means the process was force-killed after the deadline
	ErrTimeout = errors.New("command timed out")
)

// NonZeroExitError reports a subprocess exit code outside the success set
type NonZeroExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Op classifies a request for timeline recording purposes
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Request describes one subprocess invocation
type Request struct {
	Cwd       string
	Argv      []string // non-empty; Argv[0] is the binary
	Stdin     []byte   // fed to the process when non-nil (patches, etc.)
	TimeoutMs int      // 0 means DefaultTimeout

	// TreatAsSuccessIfOutputIncludes excuses a non-zero exit when stdout or
	// stderr contains any of these substrings (e.g. git push exiting 1 with
	// "Everything up-to-date").
	TreatAsSuccessIfOutputIncludes []string

	// Timeline recording. Writes are recorded whenever SessionID is set;
	// reads only when RecordTimeline is also set, to keep the audit log
	// signal-dense.
	SessionID      string
	Op             Op     // defaults to OpWrite
	Kind           string // timeline kind, defaults to db.TimelineKindGitCommand
	RecordTimeline bool
	Meta           map[string]any
}

// Result is the outcome of a Run call. On timeout or non-zero exit the
// partial output captured so far is still populated.
type Result struct {
	CommandDisplay string `json:"commandDisplay"`
	CommandCopy    string `json:"commandCopy"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	ExitCode       int    `json:"exitCode"`
	DurationMs     int64  `json:"durationMs"`
	OperationID    string `json:"operationId"`
}

// Executor runs subprocesses. A nil recorder disables timeline recording.
type Executor struct {
	recorder       *timeline.Recorder
	defaultTimeout time.Duration
}

// NewExecutor creates an executor; timeout <= 0 selects DefaultTimeout
func NewExecutor(recorder *timeline.Recorder, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{recorder: recorder, defaultTimeout: timeout}
}

// Run executes the request and returns the result, or an error for spawn
// failures, timeouts, and unexcused non-zero exits. Every call gets a fresh
// operation id; partial output accompanies timeout and exit errors via the
// returned Result.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", ErrInvalidArgument)
	}

	operationID := uuid.NewString()
	display := strings.Join(req.Argv, " ")

	timeout := e.defaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	var op *timeline.Operation
	if e.shouldRecord(req) {
		kind := req.Kind
		if kind == "" {
			kind = db.TimelineKindGitCommand
		}
		op = e.recorder.Start(req.SessionID, kind, operationID, display, req.Cwd, req.Meta)
	}

	res, err := e.execute(ctx, req, operationID, display, timeout)

	if op != nil {
		exitCode := int64(res.ExitCode)
		if err != nil {
			op.Fail(exitCode, err.Error(), nil)
		} else {
			op.Finish(exitCode, nil)
		}
	}

	return res, err
}

func (e *Executor) execute(ctx context.Context, req Request, operationID, display string, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Cwd

	// Deterministic parsing of subprocess output
	env := os.Environ()
	env = append(env, "NO_COLOR=1", "FORCE_COLOR=0")
	cmd.Env = env

	if req.Stdin != nil {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	durationMs := time.Since(start).Milliseconds()

	res := &Result{
		CommandDisplay: display,
		CommandCopy:    shellQuote(req.Argv),
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		DurationMs:     durationMs,
		OperationID:    operationID,
	}

	if runErr == nil {
		res.ExitCode = 0
		return res, nil
	}

	// Force-killed after deadline: CommandContext delivers SIGKILL on cancel
	if runCtx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		logger.Warn().Str("command", display).Dur("timeout", timeout).Msg("command timed out, process killed")
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, display)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if e.excusedByOutput(req, res) {
			// Known benign non-zero exit; report as success
			res.ExitCode = 0
			return res, nil
		}
		return res, &NonZeroExitError{Command: display, ExitCode: exitErr.ExitCode(), Stderr: res.Stderr}
	}

	// OS-level spawn failure (binary missing, permission denied, ...)
	res.ExitCode = -1
	return res, fmt.Errorf("failed to spawn %q: %w", req.Argv[0], runErr)
}

func (e *Executor) excusedByOutput(req Request, res *Result) bool {
	for _, marker := range req.TreatAsSuccessIfOutputIncludes {
		if marker == "" {
			continue
		}
		if strings.Contains(res.Stdout, marker) || strings.Contains(res.Stderr, marker) {
			return true
		}
	}
	return false
}

func (e *Executor) shouldRecord(req Request) bool {
	if e.recorder == nil || req.SessionID == "" {
		return false
	}
	if req.RecordTimeline {
		return true
	}
	op := req.Op
	if op == "" {
		op = OpWrite
	}
	return op == OpWrite
}

// shellQuote renders argv as a copy-pasteable shell command, single-quoting
// any argument with characters the shell would interpret.
func shellQuote(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		parts[i] = quoteArg(arg)
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]#~`!{}") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
