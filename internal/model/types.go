// Package model provides the reasoning-service client used by the
// conversation orchestrator and the advanced classifier.
package model

// Role is the speaker of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request represents a chat completion request.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSON        bool      `json:"json,omitempty"` // Request JSON output
	Tools       []Tool    `json:"tools,omitempty"`
}

// Response represents a chat completion response.
type Response struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	TokensUsed   int        `json:"tokens_used"`
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
}

// Tool represents a tool definition for function calling.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall represents a tool call proposed by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Status represents the status of the reasoning service.
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Circuit   string `json:"circuit"`
}
