// Package tools provides a unified tool registry with schemas and executors.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/internal/stats"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/internal/tools/schemas"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Registry combines schemas and executors for complete tool management.
// It is read-only after Initialize and safe for concurrent use.
type Registry struct {
	schemas   *schemas.Registry
	executors *executor.Registry
	stats     *stats.Collector
}

// NewRegistry creates a new unified tool registry.
func NewRegistry(collector *stats.Collector) *Registry {
	return &Registry{
		schemas:   schemas.NewRegistry(),
		executors: executor.NewRegistry(),
		stats:     collector,
	}
}

// Schemas returns the schema registry.
func (r *Registry) Schemas() *schemas.Registry {
	return r.schemas
}

// Register registers both a schema and executor for a tool.
func (r *Registry) Register(tool executor.Tool, schema *schemas.Schema) {
	r.executors.Register(tool)
	r.schemas.Register(schema)
}

// Initialize registers the record, metric and workload tools over st.
func (r *Registry) Initialize(st store.Store) error {
	schemas.RegisterEntityTools(r.schemas)
	schemas.RegisterMetricTools(r.schemas)

	for _, tool := range []executor.Tool{
		&executor.CreateEntity{Store: st},
		&executor.UpdateEntity{Store: st},
		&executor.DeleteEntity{Store: st},
		&executor.GetEntity{Store: st},
		&executor.ListEntities{Store: st},
		&executor.SearchEntities{Store: st},
		&executor.CreateMetric{Store: st},
		&executor.GetMetrics{Store: st},
		&executor.MetricHistory{Store: st},
		&executor.TasksDue{Store: st},
		&executor.TeamWorkload{Store: st},
	} {
		if _, ok := r.schemas.Get(tool.Name()); !ok {
			return fmt.Errorf("tool %s has no schema", tool.Name())
		}
		r.executors.Register(tool)
	}
	return nil
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return r.executors.List()
}

// ModelTools returns the catalogue in the reasoning client's format.
func (r *Registry) ModelTools() []model.Tool {
	all := r.schemas.All()
	out := make([]model.Tool, 0, len(all))
	for _, s := range all {
		out = append(out, model.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters(),
		})
	}
	return out
}

// Definitions returns the catalogue as protocol definitions.
func (r *Registry) Definitions() []protocol.ToolDefinition {
	all := r.schemas.All()
	out := make([]protocol.ToolDefinition, 0, len(all))
	for _, s := range all {
		out = append(out, s.Definition())
	}
	return out
}

// ToOpenAIFormat returns all schemas in OpenAI function calling format.
func (r *Registry) ToOpenAIFormat() []map[string]any {
	return r.schemas.ToOpenAIFormat()
}

// Execute runs one call and always returns its result. Unknown tools,
// invalid arguments, executor errors and panics all become failed results.
func (r *Registry) Execute(ctx context.Context, call protocol.ToolCall) (result protocol.ToolResult) {
	start := time.Now()
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()[:8]
	}
	result = protocol.ToolResult{ToolCallID: call.ID, Name: call.Name}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("tool", call.Name).Msg("tool panicked")
			result = failed(result, apperrors.New(apperrors.CodeToolExecutionFailed,
				fmt.Sprintf("tool %s failed unexpectedly", call.Name), apperrors.CategorySystem))
		}
		elapsed := time.Since(start)
		result.DurationMs = elapsed.Milliseconds()
		r.stats.RecordTool(call.Name, executor.ChannelFrom(ctx), result.Success, elapsed)
		log.Debug().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Bool("success", result.Success).
			Str("kind", string(result.ErrorKind)).
			Dur("elapsed", elapsed).
			Msg("tool executed")
	}()

	schema, ok := r.schemas.Get(call.Name)
	if !ok {
		return failed(result, apperrors.New(apperrors.CodeToolNotFound, "tool not found: "+call.Name, apperrors.CategoryUser))
	}

	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		args[k] = v
	}
	if err := schema.Validate(args); err != nil {
		return failed(result, apperrors.Validation(err.Error()))
	}

	res, err := r.executors.Execute(ctx, call.Name, args)
	switch {
	case err != nil:
		return failed(result, err)
	case res == nil:
		return failed(result, apperrors.New(apperrors.CodeToolExecutionFailed, "tool returned no result", apperrors.CategorySystem))
	case !res.Success:
		result.ErrorKind = res.Kind
		if result.ErrorKind == "" {
			result.ErrorKind = protocol.KindPersistenceFailure
		}
		result.Error = res.Error
		return result
	}

	result.Success = true
	result.Payload = res.Data
	return result
}

// ExecuteAll runs calls sequentially in order and returns one result per
// call, in the same order.
func (r *Registry) ExecuteAll(ctx context.Context, calls []protocol.ToolCall) []protocol.ToolResult {
	results := make([]protocol.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.Execute(ctx, call))
	}
	return results
}

func failed(result protocol.ToolResult, err error) protocol.ToolResult {
	result.Success = false
	result.Payload = nil
	result.ErrorKind = apperrors.KindOf(err)
	result.Error = apperrors.MessageOf(err)
	return result
}
