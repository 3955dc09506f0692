package dispatcher

import "strings"

// Request is one inbound tool request.
type Request struct {
	ToolName   string         `json:"toolName,omitempty"`
	ToolParams map[string]any `json:"toolParams,omitempty"`
	Language   string         `json:"language,omitempty"`
	Script     string         `json:"script,omitempty"`
	Token      string         `json:"token,omitempty"`
	Context    any            `json:"context,omitempty"`
}

// IsAdHoc reports whether the request carries script text
func (r *Request) IsAdHoc() bool {
	return strings.TrimSpace(r.Script) != ""
}

// ExtractToolName returns the text before the first "(", trimmed. It is a
// lexical heuristic: scripts are expected to be one top-level call.
func ExtractToolName(script string) string {
	if idx := strings.Index(script, "("); idx >= 0 {
		script = script[:idx]
	}
	return strings.TrimSpace(script)
}
