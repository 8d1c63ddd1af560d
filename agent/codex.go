package agent

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
)

// CodexExecutor supervises the Codex CLI's proto mode: JSON-RPC-style
// notifications on stdout, submission ops on stdin.
type CodexExecutor struct {
	baseExecutor
	binary string
	apiKey string
}

// NewCodexExecutor creates an executor for the given codex binary
func NewCodexExecutor(binary, apiKey string) *CodexExecutor {
	if binary == "" {
		binary = "codex"
	}
	e := &CodexExecutor{binary: binary, apiKey: apiKey}
	e.baseExecutor = newBaseExecutor(func(line []byte) string {
		// session_configured notifications carry the rollout session id
		return extractJSONSessionID(line, "session_id", "rollout_id")
	})
	return e
}

// Spawn launches the codex proto stream in the session's worktree
func (e *CodexExecutor) Spawn(ctx context.Context, opts SpawnOptions) error {
	argv := []string{e.binary, "proto"}
	if opts.Model != "" {
		argv = append(argv, "-c", "model="+opts.Model)
	}
	if opts.PermissionMode != "" {
		argv = append(argv, "-c", "approval_policy="+opts.PermissionMode)
	}
	if opts.ResumeSessionID != "" {
		argv = append(argv, "-c", "experimental_resume="+opts.ResumeSessionID)
	}

	env := os.Environ()
	env = append(env, "NO_COLOR=1")
	if e.apiKey != "" {
		env = append(env, "OPENAI_API_KEY="+e.apiKey)
	}
	for key, value := range opts.Env {
		env = append(env, key+"="+value)
	}

	p, err := startPipeProcess(argv, opts.WorktreePath, env)
	if err != nil {
		return err
	}
	e.track(opts.PanelID, opts.SessionID, p)

	if opts.Prompt != "" {
		return e.SendFollowUp(opts.PanelID, opts.Prompt)
	}
	return nil
}

// codexSubmission is one op submitted on stdin
type codexSubmission struct {
	ID string         `json:"id"`
	Op map[string]any `json:"op"`
}

// SendFollowUp submits a user_input op to the running process
func (e *CodexExecutor) SendFollowUp(panelID, message string) error {
	sub := codexSubmission{
		ID: uuid.NewString(),
		Op: map[string]any{
			"type": "user_input",
			"items": []map[string]any{
				{"type": "text", "text": message},
			},
		},
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return e.sendRaw(panelID, append(data, '\n'))
}

// Interrupt submits an interrupt op; falls back to SIGINT if the write fails
func (e *CodexExecutor) Interrupt(panelID string) error {
	sub := codexSubmission{
		ID: uuid.NewString(),
		Op: map[string]any{"type": "interrupt"},
	}
	data, err := json.Marshal(sub)
	if err == nil {
		if err := e.sendRaw(panelID, append(data, '\n')); err == nil {
			return nil
		}
	}
	return e.baseExecutor.Interrupt(panelID)
}
