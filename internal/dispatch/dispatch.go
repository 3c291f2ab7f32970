// Package dispatch turns a parsed intent into tool calls and a
// CommandResult with a user-facing message.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/audit"
	"github.com/flynn-ai/opsconsole/internal/classifier"
	"github.com/flynn-ai/opsconsole/internal/logging"
	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/internal/stats"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/internal/tools"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Store     store.Store
	Tools     *tools.Registry
	Publisher audit.Publisher
	Stats     *stats.Collector

	// Model backs single-shot classification. Nil disables it.
	Model            model.Model
	AdvancedClassify bool
}

// Dispatcher executes direct commands.
type Dispatcher struct {
	deps Deps
	now  func() time.Time
}

// New creates a Dispatcher. A nil Publisher discards events.
func New(deps Deps) *Dispatcher {
	if deps.Publisher == nil {
		deps.Publisher = audit.Discard{}
	}
	return &Dispatcher{deps: deps, now: time.Now}
}

// Handle classifies req.Input and dispatches the intent.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.CommandRequest) *protocol.CommandResult {
	var intent protocol.ParsedIntent
	if req.UseAdvanced && d.deps.AdvancedClassify && d.deps.Model != nil {
		intent = classifier.Advanced(ctx, d.deps.Model, req.Input)
	} else {
		intent = classifier.Classify(req.Input)
	}
	return d.Dispatch(ctx, intent, req.Input)
}

// Dispatch runs intent and returns its result. The result message is never
// empty and failures are reported in it rather than as an error. Every
// command is written to the command log and published.
func (d *Dispatcher) Dispatch(ctx context.Context, intent protocol.ParsedIntent, input string) *protocol.CommandResult {
	start := time.Now()
	ctx = executor.WithChannel(ctx, protocol.ChannelDirect)

	res, outcome := d.run(ctx, intent)
	res.Intent = intent

	d.deps.Stats.RecordCommand(intent.Action, outcome)
	log.Info().
		Str("action", string(intent.Action)).
		Str("rule", intent.Rule).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(start)).
		Msg("command dispatched")

	d.record(ctx, intent, input, res)
	return res
}

// Outcome labels.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeUnknown = "unknown"
)

func (d *Dispatcher) run(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	switch intent.Action {
	case protocol.ActionCreate:
		return d.create(ctx, intent)
	case protocol.ActionList:
		return d.list(ctx, intent)
	case protocol.ActionSearch:
		return d.search(ctx, intent)
	case protocol.ActionMetrics:
		return d.metrics(ctx, intent)
	case protocol.ActionReport:
		return d.report(ctx, intent)
	case protocol.ActionUpdate:
		return d.update(ctx, intent)
	case protocol.ActionDelete:
		return d.delete(ctx, intent)
	case protocol.ActionSync:
		return d.sync(ctx, intent)
	case protocol.ActionCompliance:
		return d.compliance(ctx, intent)
	case protocol.ActionForecast:
		return d.forecast(ctx, intent)
	default:
		return unknown(), outcomeUnknown
	}
}

// Suggestions offered for commands that could not be classified.
var Suggestions = []string{
	`Try: "Create project: My Project"`,
	`Try: "Show all tasks"`,
	`Try: "Search customer revenue"`,
	`Try: "Show metrics"`,
}

func unknown() *protocol.CommandResult {
	return &protocol.CommandResult{
		Message:     "I didn't understand that command.",
		Suggestions: Suggestions,
	}
}

// call runs one tool through the registry.
func (d *Dispatcher) call(ctx context.Context, name string, args map[string]any) protocol.ToolResult {
	return d.deps.Tools.Execute(ctx, protocol.ToolCall{
		ID:        "cmd_" + uuid.NewString()[:8],
		Name:      name,
		Arguments: args,
	})
}

// failure turns a failed tool result into a result message. Persistence
// failures get a generic message so engine text never reaches the user.
func failure(res protocol.ToolResult, verb, noun string) (*protocol.CommandResult, string) {
	msg := res.Error
	if res.ErrorKind == protocol.KindPersistenceFailure || msg == "" {
		msg = fmt.Sprintf("Something went wrong while %s the %s. Please try again.", verb, noun)
	}
	return &protocol.CommandResult{Message: msg}, outcomeFailed
}

// recordTimeout bounds the command log write and event publish once they
// are detached from the request.
const recordTimeout = 5 * time.Second

// record writes the command log and publishes the command event. Both are
// best effort and survive a cancelled request, since the command has
// already run.
func (d *Dispatcher) record(ctx context.Context, intent protocol.ParsedIntent, input string, res *protocol.CommandResult) {
	ctx, cancel := logging.DetachContextWithTimeout(ctx, recordTimeout)
	defer cancel()

	rec := store.CommandRecord{
		ID:        uuid.NewString(),
		Input:     input,
		Intent:    intent,
		Message:   res.Message,
		CreatedAt: d.now().UTC(),
	}
	if d.deps.Store != nil {
		if err := d.deps.Store.LogCommand(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("failed to log command")
		}
	}

	event := audit.NewEvent(audit.KindCommand, map[string]any{
		"command_id": rec.ID,
		"input":      input,
		"action":     string(intent.Action),
		"rule":       intent.Rule,
		"message":    res.Message,
	})
	if err := d.deps.Publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("failed to publish command event")
	}
}
