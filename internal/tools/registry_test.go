package tools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/internal/tools/schemas"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

func newTestRegistry(t *testing.T) (*Registry, *store.SQLite) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := NewRegistry(nil)
	require.NoError(t, r.Initialize(st))
	return r, st
}

func call(name string, args map[string]any) protocol.ToolCall {
	return protocol.ToolCall{ID: "c-" + name, Name: name, Arguments: args}
}

func TestCatalogue(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.Equal(t, []string{
		"create_entity", "update_entity", "delete_entity", "get_entity", "list_entities",
		"search_entities", "create_metric", "get_metrics", "get_metric_history",
		"get_tasks_due", "get_team_workload",
	}, r.Names())

	tools := r.ModelTools()
	require.Len(t, tools, 11)
	assert.Equal(t, "create_entity", tools[0].Name)
	assert.Equal(t, []string{"type", "title"}, tools[0].Parameters["required"])

	assert.Len(t, r.ToOpenAIFormat(), 11)
	assert.Len(t, r.Definitions(), 11)
}

func TestCreateThenList(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created := r.Execute(ctx, call("create_entity", map[string]any{"type": "project", "title": "Mobile App v2"}))
	require.True(t, created.Success, created.Error)
	assert.Equal(t, "c-create_entity", created.ToolCallID)

	listed := r.Execute(ctx, call("list_entities", map[string]any{"type": "project"}))
	require.True(t, listed.Success)

	payload := listed.Payload.(map[string]any)
	entities := payload["entities"].([]protocol.Entity)
	require.Len(t, entities, 1)
	assert.Equal(t, "Mobile App v2", entities[0].Title)
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	r, _ := newTestRegistry(t)

	calls := []protocol.ToolCall{
		call("get_metrics", nil),
		{ID: "x", Name: "no_such_tool"},
		call("create_entity", map[string]any{"type": "task"}),
		call("delete_entity", map[string]any{"id": "abc123"}),
		call("search_entities", map[string]any{"query": "acme"}),
	}

	results := r.ExecuteAll(context.Background(), calls)
	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.ToolCallID)
		assert.Equal(t, calls[i].Name, res.Name)
	}

	assert.True(t, results[0].Success)
	assert.Equal(t, protocol.KindToolNotFound, results[1].ErrorKind)
	assert.Equal(t, protocol.KindValidationFailed, results[2].ErrorKind)
	assert.Contains(t, results[2].Error, "title is required")
	assert.Equal(t, protocol.KindRecordNotFound, results[3].ErrorKind)
	assert.Equal(t, "Entity abc123 was not found", results[3].Error)
	assert.True(t, results[4].Success)
}

func TestValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call protocol.ToolCall
	}{
		{"bad enum", call("create_entity", map[string]any{"type": "spaceship", "title": "x"})},
		{"wrong type", call("create_metric", map[string]any{"category": "finance", "key": "mrr", "value": "lots"})},
		{"fractional integer", call("list_entities", map[string]any{"limit": 2.5})},
		{"bad status", call("update_entity", map[string]any{"id": "x", "status": "sleeping"})},
		{"bad date", call("create_entity", map[string]any{"type": "task", "title": "x", "due_date": "someday"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(ctx, tt.call)
			assert.False(t, res.Success)
			assert.Equal(t, protocol.KindValidationFailed, res.ErrorKind)
		})
	}
}

func TestMutationsLogActivityWithChannel(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := executor.WithChannel(context.Background(), protocol.ChannelChat)

	created := r.Execute(ctx, call("create_entity", map[string]any{"type": "task", "title": "Call Acme"}))
	require.True(t, created.Success)
	id := created.Payload.(*protocol.Entity).ID

	updated := r.Execute(ctx, call("update_entity", map[string]any{"id": id, "status": "completed", "priority": "high"}))
	require.True(t, updated.Success, updated.Error)
	assert.Equal(t, protocol.StatusCompleted, updated.Payload.(*protocol.Entity).Status)

	deleted := r.Execute(ctx, call("delete_entity", map[string]any{"id": id}))
	require.True(t, deleted.Success)

	acts, err := st.Activities(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	for _, a := range acts {
		assert.Equal(t, protocol.ChannelChat, a.Channel)
	}

	var update protocol.Activity
	for _, a := range acts {
		if a.Action == "updated" {
			update = a
		}
	}
	assert.Equal(t, "completed", update.Details["status"])
	assert.Equal(t, "high", update.Details["priority"])
}

func TestMetricsTools(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	res := r.Execute(ctx, call("create_metric", map[string]any{"category": "finance", "key": "mrr", "value": 125000.0, "unit": "USD"}))
	require.True(t, res.Success, res.Error)

	got := r.Execute(ctx, call("get_metrics", map[string]any{"category": "finance"}))
	require.True(t, got.Success)
	metrics := got.Payload.(map[string]any)["metrics"].(map[string]float64)
	assert.Equal(t, 125000.0, metrics["mrr"])

	history := r.Execute(ctx, call("get_metric_history", map[string]any{"key": "mrr"}))
	require.True(t, history.Success, history.Error)
	points := history.Payload.(map[string]any)["history"].([]protocol.Metric)
	require.Len(t, points, 1)
	assert.Equal(t, 125000.0, points[0].Value)

	missing := r.Execute(ctx, call("get_metric_history", nil))
	assert.False(t, missing.Success)
	assert.Equal(t, protocol.KindValidationFailed, missing.ErrorKind)
}

func TestTasksDueAndWorkload(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	soon := time.Now().Add(48 * time.Hour)
	late := time.Now().Add(20 * 24 * time.Hour)
	for _, e := range []protocol.Entity{
		{Type: protocol.EntityTask, Title: "soon", Owner: "ana", DueDate: &soon},
		{Type: protocol.EntityTask, Title: "late", Owner: "ana", DueDate: &late},
		{Type: protocol.EntityTask, Title: "done", Owner: "bo", DueDate: &soon, Status: protocol.StatusCompleted},
		{Type: protocol.EntityTask, Title: "bo open", Owner: "bo"},
		{Type: protocol.EntityTeamMember, Title: "ana", Metadata: map[string]any{"utilizationActual": 80.0}},
		{Type: protocol.EntityTeamMember, Title: "bo", Metadata: map[string]any{"utilizationActual": 60.0}},
	} {
		_, err := st.Create(ctx, &e)
		require.NoError(t, err)
	}

	due := r.Execute(ctx, call("get_tasks_due", nil))
	require.True(t, due.Success, due.Error)
	payload := due.Payload.(map[string]any)
	assert.Equal(t, 7, payload["days"])
	tasks := payload["tasks"].([]protocol.Entity)
	require.Len(t, tasks, 1)
	assert.Equal(t, "soon", tasks[0].Title)

	load := r.Execute(ctx, call("get_team_workload", nil))
	require.True(t, load.Success, load.Error)
	wp := load.Payload.(map[string]any)
	assert.Equal(t, 70.0, wp["utilization"])
	assert.Equal(t, "team_members", wp["utilization_source"])
	owners := wp["owners"].([]executor.OwnerLoad)
	require.Len(t, owners, 2)
	assert.Equal(t, "ana", owners[0].Owner)
	assert.Equal(t, 2, owners[0].OpenTasks)
}

type panicky struct{}

func (panicky) Name() string        { return "explode" }
func (panicky) Description() string { return "panics" }
func (panicky) Execute(context.Context, map[string]any) (*executor.Result, error) {
	panic("boom")
}

func TestPanicBecomesFailedResult(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(panicky{}, schemas.NewSchema("explode", "panics").Build())

	res := r.Execute(context.Background(), protocol.ToolCall{Name: "explode"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ToolCallID)
	assert.Contains(t, res.Error, "failed unexpectedly")
}
