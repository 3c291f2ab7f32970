// Package agent runs reasoning-augmented chat: one call to the reasoning
// service, the tools it asks for, one follow-up call, and a word-chunked
// stream of the answer. Any failure falls back to the rule-based responder.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/audit"
	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/fallback"
	"github.com/flynn-ai/opsconsole/internal/logging"
	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/internal/prompt"
	"github.com/flynn-ai/opsconsole/internal/stats"
	"github.com/flynn-ai/opsconsole/internal/tools"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Defaults for zero Deps fields.
const (
	DefaultMaxHistory      = 10
	DefaultSnapshotTimeout = 2 * time.Second
	auditTimeout           = 5 * time.Second
	auditTextLimit         = 500
	toolResultLimit        = 16000
)

// Fallback reasons, also used as metric labels.
const (
	reasonUnconfigured = "unconfigured"
	reasonUnavailable  = "unavailable"
	reasonModelError   = "model_error"
	reasonEmpty        = "empty_response"
	reasonFollowup     = "followup_error"
)

// Deps are the orchestrator's collaborators. Model may be nil, in which case
// every exchange is answered by the fallback responder.
type Deps struct {
	Store     prompt.Source
	Tools     *tools.Registry
	Model     model.Model
	Publisher audit.Publisher
	Stats     *stats.Collector
	Prompt    *prompt.Builder
	Limits    prompt.Limits

	// MaxHistory caps the prior turns sent to the reasoning service.
	MaxHistory int
	// Timeout bounds each reasoning call. Zero leaves it to the model.
	Timeout time.Duration
	// ChunkDelay paces the stream. Zero sends as fast as the reader takes.
	ChunkDelay time.Duration
}

// Orchestrator runs chat exchanges. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Publisher == nil {
		deps.Publisher = audit.Discard{}
	}
	if deps.Prompt == nil {
		deps.Prompt = prompt.NewBuilder()
	}
	if deps.MaxHistory <= 0 {
		deps.MaxHistory = DefaultMaxHistory
	}
	return &Orchestrator{deps: deps}
}

// Respond runs an exchange without streaming. The only error is an empty
// message; every other failure is answered by the fallback responder.
func (o *Orchestrator) Respond(ctx context.Context, req protocol.ChatRequest) (*Exchange, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.Validation("message is required")
	}
	x := o.converse(ctx, req)
	o.moveTo(x, StateStreaming)
	o.moveTo(x, StateDone)
	o.finish(ctx, x)
	return x, nil
}

// Run runs an exchange and streams the answer. The channel yields word
// chunks, then a Done chunk, and is closed. If ctx is cancelled the stream
// stops early and the channel is closed without a Done chunk.
func (o *Orchestrator) Run(ctx context.Context, req protocol.ChatRequest) <-chan protocol.StreamChunk {
	out := make(chan protocol.StreamChunk)
	s := &streamer{out: out, delay: o.deps.ChunkDelay}

	go func() {
		defer close(out)
		o.deps.Stats.StreamOpened()
		defer o.deps.Stats.StreamClosed()

		if strings.TrimSpace(req.Message) == "" {
			if s.send(ctx, protocol.StreamChunk{Error: "message is required"}) {
				s.send(ctx, protocol.StreamChunk{Done: true})
			}
			return
		}

		x := o.converse(ctx, req)
		o.moveTo(x, StateStreaming)

		n, complete := s.words(ctx, x.Text)
		x.Chunks = n
		if complete {
			complete = s.send(ctx, protocol.StreamChunk{Done: true})
		}
		x.Cancelled = !complete
		o.deps.Stats.RecordChunks(n)

		o.moveTo(x, StateDone)
		o.finish(ctx, x)
	}()

	return out
}

// converse drives the exchange up to the point where its text is known.
func (o *Orchestrator) converse(ctx context.Context, req protocol.ChatRequest) *Exchange {
	x := newExchange(uuid.NewString(), req.Message)
	snap := o.snapshot(ctx)

	m := o.deps.Model
	switch {
	case m == nil:
		return o.fallback(x, snap, reasonUnconfigured, nil)
	case !m.IsAvailable():
		return o.fallback(x, snap, reasonUnavailable, nil)
	}

	o.moveTo(x, StateAwaitingModel)
	system := o.deps.Prompt.BuildSystemPrompt(prompt.SystemContext{
		Tooling:  o.tooling(),
		Snapshot: snap,
	})
	transcript := o.transcript(req)

	var catalogue []model.Tool
	if o.deps.Tools != nil {
		catalogue = o.deps.Tools.ModelTools()
	}
	resp, err := o.generate(ctx, &model.Request{
		System:   system,
		Messages: transcript,
		Tools:    catalogue,
	})
	if err != nil {
		return o.fallback(x, snap, reasonModelError, err)
	}
	x.TokensUsed += resp.TokensUsed

	if len(resp.ToolCalls) == 0 || o.deps.Tools == nil {
		if text := strings.TrimSpace(resp.Text); text != "" {
			x.Text = text
			return x
		}
		return o.fallback(x, snap, reasonEmpty, nil)
	}

	// Tool calls run one at a time, in the order proposed.
	o.moveTo(x, StateExecutingTools)
	for _, tc := range resp.ToolCalls {
		x.Calls = append(x.Calls, protocol.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	x.Results = o.deps.Tools.ExecuteAll(executor.WithChannel(ctx, protocol.ChannelChat), x.Calls)

	// One hop: the follow-up carries no tools, and any calls it proposes
	// are ignored.
	o.moveTo(x, StateAwaitingFollowup)
	transcript = append(transcript,
		model.Message{Role: model.RoleAssistant, Content: assistantTurn(resp.Text, x.Calls)},
		model.Message{Role: model.RoleUser, Content: resultsTurn(x.Results)},
	)
	final, err := o.generate(ctx, &model.Request{System: system, Messages: transcript})
	if err != nil {
		return o.fallback(x, snap, reasonFollowup, err)
	}
	x.TokensUsed += final.TokensUsed
	if len(final.ToolCalls) > 0 {
		log.Debug().Int("ignored", len(final.ToolCalls)).Str("exchange_id", x.ID).Msg("follow-up proposed tool calls")
	}

	text := strings.TrimSpace(final.Text)
	if text == "" {
		return o.fallback(x, snap, reasonEmpty, nil)
	}
	x.Text = text
	return x
}

func (o *Orchestrator) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	if o.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.Timeout)
		defer cancel()
	}
	resp, err := o.deps.Model.Generate(ctx, req)
	if err != nil {
		if apperrors.Is(ctx.Err(), context.DeadlineExceeded) && !apperrors.HasCode(err, apperrors.CodeModelTimeout) {
			err = apperrors.NewBuilder(apperrors.CodeModelTimeout, "reasoning service timed out").
				Temporary().
				Wrap(err).
				Build()
		}
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) fallback(x *Exchange, snap *prompt.Snapshot, reason string, err error) *Exchange {
	o.moveTo(x, StateError)
	x.Fallback = true
	x.FallbackReason = reason
	x.Err = err
	x.Text = fallback.Respond(x.Input, snap)
	o.deps.Stats.RecordFallback(reason)

	var ev *zerolog.Event
	if err != nil {
		ev = log.Warn().Err(err).Str("code", apperrors.CodeOf(err))
	} else {
		ev = log.Info()
	}
	ev.Str("exchange_id", x.ID).Str("reason", reason).Msg("answering with fallback")
	return x
}

// snapshot reads the context snapshot. A failure leaves it nil; the prompt
// and the fallback responder both cope with that.
func (o *Orchestrator) snapshot(ctx context.Context) *prompt.Snapshot {
	if o.deps.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultSnapshotTimeout)
	defer cancel()

	snap, err := prompt.Build(ctx, o.deps.Store, o.deps.Limits)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build context snapshot")
		return nil
	}
	return snap
}

func (o *Orchestrator) tooling() string {
	if o.deps.Tools == nil {
		return ""
	}
	defs := o.deps.Tools.Definitions()
	names := make([]string, len(defs))
	descs := make([]string, len(defs))
	for i, d := range defs {
		names[i], descs[i] = d.Name, d.Description
	}
	return prompt.Tooling(names, descs)
}

// transcript maps the caller's history, newest MaxHistory turns only, and
// appends the new message.
func (o *Orchestrator) transcript(req protocol.ChatRequest) []model.Message {
	history := req.History
	if len(history) > o.deps.MaxHistory {
		history = history[len(history)-o.deps.MaxHistory:]
	}
	msgs := make([]model.Message, 0, len(history)+1)
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		role := model.RoleUser
		if h.Role == protocol.RoleAssistant {
			role = model.RoleAssistant
		}
		msgs = append(msgs, model.Message{Role: role, Content: h.Content})
	}
	return append(msgs, model.Message{Role: model.RoleUser, Content: req.Message})
}

func assistantTurn(text string, calls []protocol.ToolCall) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	turn := "Calling tools: " + strings.Join(names, ", ")
	if t := strings.TrimSpace(text); t != "" {
		turn = t + "\n\n" + turn
	}
	return turn
}

func resultsTurn(results []protocol.ToolResult) string {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%d tool results could not be encoded: %v", len(results), err))
	}
	body := string(data)
	if len(body) > toolResultLimit {
		body = truncate(body, toolResultLimit) + "\n[truncated]"
	}
	return "Tool results:\n" + body +
		"\n\nAnswer my original request using these results. Do not call any tools."
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// moveTo advances x. An invalid transition is a bug; it is logged and the
// state is forced so the exchange still completes.
func (o *Orchestrator) moveTo(x *Exchange, to State) {
	if err := x.transition(to); err != nil {
		log.Error().Err(err).Str("exchange_id", x.ID).Msg("state machine violation")
		x.Trail = append(x.Trail, to)
	}
}

// finish writes the audit record exactly once per exchange, on a context
// detached from the request so a disconnect does not lose it.
func (o *Orchestrator) finish(ctx context.Context, x *Exchange) {
	x.Duration = time.Since(x.Started)

	auditCtx, cancel := logging.DetachContextWithTimeout(ctx, auditTimeout)
	defer cancel()

	text := truncate(x.Text, auditTextLimit)
	event := audit.NewEvent(audit.KindChatExchange, map[string]any{
		"exchange_id": x.ID,
		"input":       x.Input,
		"tools":       x.ToolNames(),
		"text":        text,
		"fallback":    x.Fallback,
		"reason":      x.FallbackReason,
		"states":      x.States(),
		"cancelled":   x.Cancelled,
		"duration_ms": x.Duration.Milliseconds(),
	})
	if err := o.deps.Publisher.Publish(auditCtx, event); err != nil {
		log.Warn().Err(err).Str("exchange_id", x.ID).Msg("failed to publish chat exchange")
	}

	log.Info().
		Str("exchange_id", x.ID).
		Strs("tools", x.ToolNames()).
		Bool("fallback", x.Fallback).
		Bool("cancelled", x.Cancelled).
		Int("chunks", x.Chunks).
		Dur("elapsed", x.Duration).
		Msg("chat exchange finished")
}
