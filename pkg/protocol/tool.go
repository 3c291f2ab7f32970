package protocol

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ErrorKind classifies a failed tool execution.
type ErrorKind string

const (
	KindValidationFailed           ErrorKind = "validation_failed"
	KindRecordNotFound             ErrorKind = "record_not_found"
	KindPersistenceFailure         ErrorKind = "persistence_failure"
	KindToolNotFound               ErrorKind = "tool_not_found"
	KindExternalServiceUnavailable ErrorKind = "external_service_unavailable"
	KindMalformedModelOutput       ErrorKind = "malformed_model_output"
)

// ToolResult is the outcome of one ToolCall. Exactly one is produced for
// every call, in call order.
type ToolResult struct {
	ToolCallID string    `json:"tool_call_id"`
	Name       string    `json:"name"`
	Success    bool      `json:"success"`
	Payload    any       `json:"payload,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// ToolDefinition describes a tool's parameter contract.
type ToolDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters"`
}

// Parameter describes a tool parameter.
type Parameter struct {
	Type        string   `json:"type"` // string, number, integer, boolean, array, object
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}
