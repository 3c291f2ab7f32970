// Package executor provides the tool execution interface and the tools that
// act on the entity store.
package executor

import (
	"context"
	"slices"
	"time"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Tool represents a callable tool.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Execute runs the tool with the given input. Failures are reported
	// in the Result; a non-nil error means the tool itself misbehaved.
	Execute(ctx context.Context, input map[string]any) (*Result, error)
}

// Result represents the result of a tool execution.
type Result struct {
	Success    bool               `json:"success"`
	Data       any                `json:"data,omitempty"`
	Error      string             `json:"error,omitempty"`
	Kind       protocol.ErrorKind `json:"kind,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

// NewSuccessResult creates a successful result.
func NewSuccessResult(data any) *Result {
	return &Result{
		Success: true,
		Data:    data,
	}
}

// NewErrorResult creates an error result classified by the error's code.
func NewErrorResult(err error) *Result {
	return &Result{
		Success: false,
		Error:   apperrors.MessageOf(err),
		Kind:    apperrors.KindOf(err),
	}
}

// TimedResult wraps a result with duration.
func TimedResult(result *Result, start time.Time) *Result {
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

type channelKey struct{}

// WithChannel records which surface invoked the tools run under ctx.
// Mutating tools log it on the activity they write.
func WithChannel(ctx context.Context, ch protocol.Channel) context.Context {
	return context.WithValue(ctx, channelKey{}, ch)
}

// ChannelFrom returns the channel set by WithChannel, or direct_command.
func ChannelFrom(ctx context.Context) protocol.Channel {
	if ch, ok := ctx.Value(channelKey{}).(protocol.Channel); ok && ch != "" {
		return ch
	}
	return protocol.ChannelDirect
}

// Registry manages available tools for execution, in registration order.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	return slices.Clone(r.order)
}

// Execute runs a tool by name with the given input.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, apperrors.New(apperrors.CodeToolNotFound, "tool not found: "+name, apperrors.CategoryUser)
	}
	return tool.Execute(ctx, input)
}
