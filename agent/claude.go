package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ClaudeExecutor supervises the Claude CLI in stream-json mode over pipes.
type ClaudeExecutor struct {
	baseExecutor
	binary string
	apiKey string
}

// NewClaudeExecutor creates an executor for the given claude binary
func NewClaudeExecutor(binary, apiKey string) *ClaudeExecutor {
	if binary == "" {
		binary = "claude"
	}
	e := &ClaudeExecutor{binary: binary, apiKey: apiKey}
	e.baseExecutor = newBaseExecutor(func(line []byte) string {
		// The system init event carries the session id
		return extractJSONSessionID(line, "session_id", "sessionId")
	})
	return e
}

// Spawn launches one Claude turn in the session's worktree
func (e *ClaudeExecutor) Spawn(ctx context.Context, opts SpawnOptions) error {
	argv := e.buildArgs(opts)

	env := os.Environ()
	env = append(env, "CLAUDE_CODE_ENTRYPOINT=snowtree", "NO_COLOR=1")
	if e.apiKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+e.apiKey)
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
		if err := e.SendFollowUp(opts.PanelID, opts.Prompt); err != nil {
			return fmt.Errorf("failed to deliver prompt: %w", err)
		}
	}
	return nil
}

func (e *ClaudeExecutor) buildArgs(opts SpawnOptions) []string {
	argv := []string{e.binary,
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}

	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}

	permissionMode := opts.PermissionMode
	if permissionMode == "" {
		permissionMode = "default"
	}
	argv = append(argv, "--permission-mode", permissionMode)

	switch {
	case opts.ResumeSessionID != "":
		argv = append(argv, "--resume", opts.ResumeSessionID)
	case opts.Continue:
		argv = append(argv, "--continue")
	}

	return argv
}

// claudeInputMessage is the stream-json stdin format
type claudeInputMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// SendFollowUp writes a user message to the running process's stdin
func (e *ClaudeExecutor) SendFollowUp(panelID, message string) error {
	var msg claudeInputMessage
	msg.Type = "user"
	msg.Message.Role = "user"
	msg.Message.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{{Type: "text", Text: message}}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.sendRaw(panelID, append(data, '\n'))
}
