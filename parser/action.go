package parser

import (
	"fmt"
	"strings"
)

// DeriveAction classifies a tool invocation by pattern-matching the tool
// name and its input keys. Deliberately substring-based rather than a
// hardcoded table: backends rename tools (Edit vs edit_file vs str_replace)
// faster than a lookup table would keep up. Unmatched tools yield "other".
func DeriveAction(toolName string, input map[string]any) *Action {
	name := strings.ToLower(toolName)

	path := firstString(input, "file_path", "path", "filePath", "absolute_path", "file")
	command := firstString(input, "command", "cmd", "script")
	url := firstString(input, "url", "uri")
	query := firstString(input, "query", "pattern", "prompt")

	switch {
	case containsAny(name, "read", "cat", "view", "open_file"):
		return &Action{Kind: ActionFileRead, Path: path}
	case containsAny(name, "edit", "replace", "patch", "apply_diff"):
		return &Action{Kind: ActionFileEdit, Path: path}
	case containsAny(name, "write", "create_file", "save"):
		return &Action{Kind: ActionFileWrite, Path: path}
	case containsAny(name, "bash", "shell", "exec", "terminal", "run_command"):
		return &Action{Kind: ActionCommandRun, Command: command}
	case containsAny(name, "fetch", "browse", "web_"), url != "" && containsAny(name, "web", "http"):
		return &Action{Kind: ActionWebFetch, URL: url}
	case containsAny(name, "search", "grep", "glob", "find"):
		return &Action{Kind: ActionSearch, Query: query}
	}

	// Name was inconclusive; fall back to input shape
	switch {
	case command != "":
		return &Action{Kind: ActionCommandRun, Command: command}
	case url != "":
		return &Action{Kind: ActionWebFetch, URL: url}
	}

	return &Action{Kind: ActionOther, Description: describeTool(toolName, input)}
}

func containsAny(s string, fragments ...string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func firstString(input map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func describeTool(toolName string, input map[string]any) string {
	if len(input) == 0 {
		return toolName
	}
	return fmt.Sprintf("%s (%d inputs)", toolName, len(input))
}
