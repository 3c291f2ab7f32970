package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return NewSchema("create_thing", "Create a thing").
		AddParamWithEnum("kind", "string", "Kind", []string{"a", "b"}, true).
		AddParam("title", "string", "Title", true).
		AddParam("score", "number", "Score", false).
		AddParamWithDefault("limit", "integer", "Limit", 20).
		AddParam("tags", "array", "Tags", false).
		AddParam("meta", "object", "Metadata", false).
		AddParam("pinned", "boolean", "Pinned", false).
		Build()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"valid", map[string]any{"kind": "a", "title": "x"}, ""},
		{"json numbers", map[string]any{"kind": "a", "title": "x", "score": 1.5, "limit": 10.0}, ""},
		{"go values", map[string]any{"kind": "b", "title": "x", "tags": []string{"t"}, "meta": map[string]any{}, "pinned": true}, ""},
		{"unknown args ignored", map[string]any{"kind": "a", "title": "x", "extra": 1}, ""},
		{"missing required", map[string]any{"kind": "a"}, "title is required"},
		{"empty required", map[string]any{"kind": "a", "title": ""}, "title is required"},
		{"bad enum", map[string]any{"kind": "c", "title": "x"}, "kind must be one of a, b"},
		{"fractional integer", map[string]any{"kind": "a", "title": "x", "limit": 2.5}, "limit must be an integer"},
		{"wrong type", map[string]any{"kind": "a", "title": 7}, "title must be a string"},
		{"array type", map[string]any{"kind": "a", "title": "x", "tags": "t"}, "tags must be an array"},
		{"object type", map[string]any{"kind": "a", "title": "x", "meta": "m"}, "meta must be an object"},
		{"boolean type", map[string]any{"kind": "a", "title": "x", "pinned": "yes"}, "pinned must be a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testSchema().Validate(tt.args)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid arguments for create_thing")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	err := testSchema().Validate(map[string]any{"kind": "z"})
	require.Error(t, err)
	assert.Equal(t, "invalid arguments for create_thing: kind must be one of a, b; title is required", err.Error())
}

func TestValidateFillsDefaults(t *testing.T) {
	args := map[string]any{"kind": "a", "title": "x"}
	require.NoError(t, testSchema().Validate(args))
	assert.Equal(t, 20, args["limit"])
	assert.NotContains(t, args, "score")

	args = map[string]any{"kind": "a", "title": "x", "limit": 5}
	require.NoError(t, testSchema().Validate(args))
	assert.Equal(t, 5, args["limit"])
}

func TestParameters(t *testing.T) {
	params := testSchema().Parameters()
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"kind", "title"}, params["required"])

	props := params["properties"].(map[string]any)
	require.Len(t, props, 7)
	assert.Equal(t, []string{"a", "b"}, props["kind"].(map[string]any)["enum"])
	assert.Equal(t, 20, props["limit"].(map[string]any)["default"])
	assert.Equal(t, map[string]any{"type": "string"}, props["tags"].(map[string]any)["items"])
}

func TestRegistryKeepsOrder(t *testing.T) {
	r := NewRegistry()
	RegisterEntityTools(r)
	RegisterMetricTools(r)

	assert.Equal(t, []string{
		"create_entity", "update_entity", "delete_entity", "get_entity", "list_entities", "search_entities",
		"create_metric", "get_metrics", "get_metric_history", "get_tasks_due", "get_team_workload",
	}, r.List())

	r.Register(NewSchema("get_entity", "replaced").Build())
	assert.Len(t, r.List(), 11)
	s, ok := r.Get("get_entity")
	require.True(t, ok)
	assert.Equal(t, "replaced", s.Description)

	_, ok = r.Get("nope")
	assert.False(t, ok)

	openai := r.ToOpenAIFormat()
	require.Len(t, openai, 11)
	assert.Equal(t, "function", openai[0]["type"])
	assert.Equal(t, "create_entity", openai[0]["function"].(map[string]any)["name"])
}

func TestDefinition(t *testing.T) {
	def := testSchema().Definition()
	assert.Equal(t, "create_thing", def.Name)
	require.Contains(t, def.Parameters, "kind")
	assert.True(t, def.Parameters["kind"].Required)
	assert.False(t, def.Parameters["score"].Required)
}
