package agent

import (
	"context"
	"os"
)

// GeminiExecutor supervises the Gemini CLI under a pseudo-terminal: the CLI
// requires a tty, emits line-delimited JSON in stream mode, and takes its
// interrupt as a Ctrl+C keystroke on the pty.
type GeminiExecutor struct {
	baseExecutor
	binary string
	apiKey string
}

// NewGeminiExecutor creates an executor for the given gemini binary
func NewGeminiExecutor(binary, apiKey string) *GeminiExecutor {
	if binary == "" {
		binary = "gemini"
	}
	e := &GeminiExecutor{binary: binary, apiKey: apiKey}
	e.baseExecutor = newBaseExecutor(func(line []byte) string {
		return extractJSONSessionID(line, "sessionId", "session_id")
	})
	return e
}

// Spawn launches one Gemini turn in the session's worktree
func (e *GeminiExecutor) Spawn(ctx context.Context, opts SpawnOptions) error {
	argv := []string{e.binary, "--output-format", "stream-json"}
	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	if opts.PermissionMode == "bypassPermissions" {
		argv = append(argv, "--yolo")
	}
	if opts.ResumeSessionID != "" {
		argv = append(argv, "--resume", opts.ResumeSessionID)
	}
	if opts.Prompt != "" {
		argv = append(argv, "--prompt-interactive", opts.Prompt)
	}

	env := os.Environ()
	env = append(env, "NO_COLOR=1", "TERM=dumb")
	if e.apiKey != "" {
		env = append(env, "GEMINI_API_KEY="+e.apiKey)
	}
	for key, value := range opts.Env {
		env = append(env, key+"="+value)
	}

	p, err := startPtyProcess(argv, opts.WorktreePath, env)
	if err != nil {
		return err
	}
	e.track(opts.PanelID, opts.SessionID, p)
	return nil
}

// SendFollowUp types the message into the pty followed by a newline
func (e *GeminiExecutor) SendFollowUp(panelID, message string) error {
	return e.sendRaw(panelID, append([]byte(message), '\n'))
}
