package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/opsconsole/internal/audit"
	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/internal/tools"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays responses in order and records every request.
type scripted struct {
	responses []*model.Response
	errs      []error
	requests  []*model.Request
}

func (s *scripted) Generate(_ context.Context, req *model.Request) (*model.Response, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &model.Response{Text: "ok"}, nil
}

func (s *scripted) IsAvailable() bool { return true }
func (s *scripted) Name() string      { return "scripted" }

// blackhole never answers; it waits for the context to end.
type blackhole struct{}

func (blackhole) Generate(ctx context.Context, _ *model.Request) (*model.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blackhole) IsAvailable() bool { return true }
func (blackhole) Name() string      { return "blackhole" }

type fixture struct {
	st  *store.SQLite
	reg *tools.Registry
	rec *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Initialize(st))
	return &fixture{st: st, reg: reg, rec: &audit.Recorder{}}
}

func (f *fixture) orchestrator(m model.Model, mutate ...func(*Deps)) *Orchestrator {
	deps := Deps{Store: f.st, Tools: f.reg, Model: m, Publisher: f.rec}
	for _, fn := range mutate {
		fn(&deps)
	}
	return New(deps)
}

func collect(t *testing.T, ch <-chan protocol.StreamChunk) ([]protocol.StreamChunk, string) {
	t.Helper()
	var chunks []protocol.StreamChunk
	var text strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return chunks, text.String()
			}
			chunks = append(chunks, c)
			text.WriteString(c.Content)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestFallbackWhenUnconfigured(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(nil)

	x, err := o.Respond(context.Background(), protocol.ChatRequest{Message: "How is revenue?"})
	require.NoError(t, err)
	assert.True(t, x.Fallback)
	assert.Equal(t, reasonUnconfigured, x.FallbackReason)
	assert.Contains(t, x.Text, "MRR")
	assert.Equal(t, []string{"idle", "error", "streaming", "done"}, x.States())

	events := f.rec.Of(audit.KindChatExchange)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Payload["fallback"])
}

func TestTimeoutFallsBackWithoutTools(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.RecordMetric(context.Background(), &protocol.Metric{Category: protocol.MetricFinance, Key: "mrr", Value: 125000})
	require.NoError(t, err)

	o := f.orchestrator(blackhole{}, func(d *Deps) { d.Timeout = 50 * time.Millisecond })
	x, err := o.Respond(context.Background(), protocol.ChatRequest{Message: "What's our revenue looking like?"})
	require.NoError(t, err)

	assert.True(t, x.Fallback)
	assert.Equal(t, reasonModelError, x.FallbackReason)
	assert.True(t, apperrors.HasCode(x.Err, apperrors.CodeModelTimeout))
	assert.Contains(t, x.Text, "MRR")
	assert.Contains(t, x.Text, "$125,000")
	assert.Empty(t, x.Calls)
	assert.Equal(t, []string{"idle", "awaiting_model", "error", "streaming", "done"}, x.States())
}

func TestToolLoop(t *testing.T) {
	f := newFixture(t)
	m := &scripted{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{
			{ID: "a", Name: "create_entity", Arguments: map[string]any{"type": "project", "title": "Mobile App v2"}},
			{ID: "b", Name: "no_such_tool"},
			{ID: "c", Name: "list_entities", Arguments: map[string]any{"type": "project"}},
		}},
		{Text: "I created the Mobile App v2 project."},
	}}
	o := f.orchestrator(m)

	x, err := o.Respond(context.Background(), protocol.ChatRequest{Message: "Set up a project for the new mobile app"})
	require.NoError(t, err)
	assert.False(t, x.Fallback)
	assert.Equal(t, "I created the Mobile App v2 project.", x.Text)
	assert.Equal(t, []string{"idle", "awaiting_model", "executing_tools", "awaiting_followup", "streaming", "done"}, x.States())

	require.Len(t, x.Results, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, x.Results[i].ToolCallID)
	}
	assert.True(t, x.Results[0].Success)
	assert.Equal(t, protocol.KindToolNotFound, x.Results[1].ErrorKind)
	listed := x.Results[2].Payload.(map[string]any)["entities"].([]protocol.Entity)
	require.Len(t, listed, 1)
	assert.Equal(t, "Mobile App v2", listed[0].Title)

	require.Len(t, m.requests, 2)
	assert.NotEmpty(t, m.requests[0].Tools)
	assert.Contains(t, m.requests[0].System, "create_entity")
	assert.Empty(t, m.requests[1].Tools)
	followup := m.requests[1].Messages
	require.Len(t, followup, 3)
	assert.Equal(t, model.RoleAssistant, followup[1].Role)
	assert.Contains(t, followup[1].Content, "create_entity, no_such_tool, list_entities")
	assert.Contains(t, followup[2].Content, "Tool results:")

	acts, err := f.st.Activities(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, protocol.ChannelChat, acts[0].Channel)

	events := f.rec.Of(audit.KindChatExchange)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"create_entity", "no_such_tool", "list_entities"}, events[0].Payload["tools"])
}

func TestFollowupToolCallsAreIgnored(t *testing.T) {
	f := newFixture(t)
	m := &scripted{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "a", Name: "get_metrics"}}},
		{Text: "Metrics look fine.", ToolCalls: []model.ToolCall{{ID: "z", Name: "delete_entity", Arguments: map[string]any{"id": "x"}}}},
	}}
	o := f.orchestrator(m)

	x, err := o.Respond(context.Background(), protocol.ChatRequest{Message: "check metrics"})
	require.NoError(t, err)
	assert.Equal(t, "Metrics look fine.", x.Text)
	assert.Equal(t, []string{"get_metrics"}, x.ToolNames())
	assert.Len(t, m.requests, 2)
}

func TestUnusableResponsesFallBack(t *testing.T) {
	tests := []struct {
		name   string
		model  *scripted
		reason string
	}{
		{"empty text", &scripted{responses: []*model.Response{{Text: "  "}}}, reasonEmpty},
		{"service error", &scripted{errs: []error{apperrors.New(apperrors.CodeExternalServiceUnavailable, "reasoning service returned 503", apperrors.CategoryTemporary)}}, reasonModelError},
		{"follow-up error", &scripted{
			responses: []*model.Response{{ToolCalls: []model.ToolCall{{ID: "a", Name: "get_metrics"}}}},
			errs:      []error{nil, apperrors.Malformed(nil, "no choices")},
		}, reasonFollowup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			x, err := f.orchestrator(tt.model).Respond(context.Background(), protocol.ChatRequest{Message: "how are we doing"})
			require.NoError(t, err)
			assert.True(t, x.Fallback)
			assert.Equal(t, tt.reason, x.FallbackReason)
			assert.NotEmpty(t, x.Text)
		})
	}
}

func TestStreamMatchesRespond(t *testing.T) {
	f := newFixture(t)
	text := "Revenue is up 4% this month.\n\nBurn is flat and runway is 14 months."
	newModel := func() *scripted { return &scripted{responses: []*model.Response{{Text: text}}} }

	x, err := f.orchestrator(newModel()).Respond(context.Background(), protocol.ChatRequest{Message: "status?"})
	require.NoError(t, err)

	chunks, streamed := collect(t, f.orchestrator(newModel()).Run(context.Background(), protocol.ChatRequest{Message: "status?"}))
	assert.Equal(t, x.Text, streamed)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[len(chunks)-1].Done)
	for _, c := range chunks[:len(chunks)-1] {
		assert.False(t, c.Done)
		assert.NotEmpty(t, c.Content)
	}
	assert.Equal(t, len(Chunks(text))+1, len(chunks))
}

func TestStreamFallbackText(t *testing.T) {
	f := newFixture(t)
	_, streamed := collect(t, f.orchestrator(nil).Run(context.Background(), protocol.ChatRequest{Message: "how is revenue"}))
	assert.Contains(t, streamed, "MRR")
}

func TestStreamEmptyMessage(t *testing.T) {
	f := newFixture(t)
	chunks, _ := collect(t, f.orchestrator(nil).Run(context.Background(), protocol.ChatRequest{Message: " "}))
	require.Len(t, chunks, 2)
	assert.Equal(t, "message is required", chunks[0].Error)
	assert.True(t, chunks[1].Done)
	assert.Empty(t, f.rec.Events)

	_, err := f.orchestrator(nil).Respond(context.Background(), protocol.ChatRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	text := strings.Repeat("word ", 200)
	m := &scripted{responses: []*model.Response{{Text: text}}}
	o := f.orchestrator(m, func(d *Deps) { d.ChunkDelay = 5 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	ch := o.Run(ctx, protocol.ChatRequest{Message: "go"})
	first := <-ch
	assert.Equal(t, "word ", first.Content)
	cancel()

	chunks, _ := collect(t, ch)
	for _, c := range chunks {
		assert.False(t, c.Done)
	}
	assert.Less(t, len(chunks), 199)

	events := f.rec.Of(audit.KindChatExchange)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Payload["cancelled"])
	assert.Len(t, events[0].Payload["text"], auditTextLimit)
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	m := &scripted{}
	o := f.orchestrator(m)

	var history []protocol.Message
	for i := range 15 {
		role := protocol.RoleUser
		if i%2 == 1 {
			role = protocol.RoleAssistant
		}
		history = append(history, protocol.Message{Role: role, Content: "turn"})
	}
	_, err := o.Respond(context.Background(), protocol.ChatRequest{Message: "latest", History: history})
	require.NoError(t, err)

	msgs := m.requests[0].Messages
	require.Len(t, msgs, DefaultMaxHistory+1)
	assert.Equal(t, "latest", msgs[len(msgs)-1].Content)
	assert.Equal(t, model.RoleUser, msgs[len(msgs)-1].Role)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// "é" is two bytes; a cut through it backs off to the rune start.
	assert.Equal(t, "ab", truncate("abé", 3))
	assert.Equal(t, "", truncate("日本", 2))
	assert.Equal(t, "日", truncate("日本", 4))
}

func TestResultsTurnTruncatesOnRuneBoundary(t *testing.T) {
	results := []protocol.ToolResult{{
		ToolCallID: "a",
		Name:       "search_entities",
		Success:    true,
		Payload:    strings.Repeat("€", toolResultLimit),
	}}

	turn := resultsTurn(results)
	assert.True(t, utf8.ValidString(turn))
	assert.Contains(t, turn, "\n[truncated]")
	assert.True(t, strings.HasPrefix(turn, "Tool results:\n"))
	assert.LessOrEqual(t, len(turn), toolResultLimit+200)
}
