package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  protocol.ParsedIntent
	}{
		{
			"create project: Mobile App v2",
			protocol.ParsedIntent{Action: protocol.ActionCreate, EntityType: protocol.EntityProject, Data: map[string]string{"title": "Mobile App v2"}, Rule: "create-entity"},
		},
		{
			`Create task: "Call Acme"`,
			protocol.ParsedIntent{Action: protocol.ActionCreate, EntityType: protocol.EntityTask, Data: map[string]string{"title": "Call Acme"}, Rule: "create-entity"},
		},
		{
			"add new customer",
			protocol.ParsedIntent{Action: protocol.ActionCreate, EntityType: protocol.EntityCustomer, Data: map[string]string{"title": "Untitled"}, Rule: "create-entity"},
		},
		{
			"create team member: Ana",
			protocol.ParsedIntent{Action: protocol.ActionCreate, EntityType: protocol.EntityTeamMember, Data: map[string]string{"title": "Ana"}, Rule: "create-entity"},
		},
		{
			"create metric: mrr",
			protocol.ParsedIntent{Action: protocol.ActionCreate, EntityType: protocol.EntityMetric, Data: map[string]string{"title": "mrr"}, Rule: "create-entity"},
		},
		{
			"show all tasks",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityTask, Rule: "list-entity"},
		},
		{
			"list opportunities",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityOpportunity, Rule: "list-entity"},
		},
		{
			"show open tasks for ana",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityTask, Filters: map[string]string{"status": "active", "owner": "ana"}, Rule: "list-entity"},
		},
		{
			"pull latest opportunities",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityOpportunity, Filters: map[string]string{"source": "salesforce"}, Rule: "pull-opportunities"},
		},
		{
			"pull sfdc opps",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityOpportunity, Filters: map[string]string{"source": "salesforce"}, Rule: "pull-opportunities"},
		},
		{
			"index docs",
			protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityDocument, Rule: "index-docs"},
		},
		{
			"finance summary",
			protocol.ParsedIntent{Action: protocol.ActionReport, Category: "finance", Query: "finance summary", Rule: "finance-summary"},
		},
		{
			"team utilization",
			protocol.ParsedIntent{Action: protocol.ActionReport, Category: "team", Query: "team utilization", Rule: "team-utilization"},
		},
		{
			"check compliance",
			protocol.ParsedIntent{Action: protocol.ActionCompliance, EntityType: protocol.EntityCompliance, Query: "check compliance", Rule: "compliance"},
		},
		{
			"forecast MRR for the next 6 months",
			protocol.ParsedIntent{Action: protocol.ActionForecast, Category: "finance", Period: "month", Query: "forecast mrr for the next 6 months", Data: map[string]string{"key": "mrr", "horizon": "6"}, Rule: "forecast"},
		},
		{
			"search customer revenue",
			protocol.ParsedIntent{Action: protocol.ActionSearch, Query: "customer revenue", Rule: "search"},
		},
		{
			"look for Acme",
			protocol.ParsedIntent{Action: protocol.ActionSearch, Query: "acme", Rule: "search"},
		},
		{
			"search for",
			protocol.ParsedIntent{Action: protocol.ActionSearch, Query: "", Rule: "search"},
		},
		{
			"search for Acme",
			protocol.ParsedIntent{Action: protocol.ActionSearch, Query: "acme", Rule: "search"},
		},
		{
			"search format",
			protocol.ParsedIntent{Action: protocol.ActionSearch, Query: "format", Rule: "search"},
		},
		{
			"what's the burn rate",
			protocol.ParsedIntent{Action: protocol.ActionReport, Category: "finance", Query: "what's the burn rate", Rule: "finance-summary"},
		},
		{
			"delete project",
			protocol.ParsedIntent{Action: protocol.ActionDelete, EntityType: protocol.EntityProject, Rule: "delete"},
		},
		{
			"remove the entity",
			protocol.ParsedIntent{Action: protocol.ActionDelete, Rule: "delete"},
		},
		{
			"delete entity abc123",
			protocol.ParsedIntent{Action: protocol.ActionDelete, Filters: map[string]string{"id": "abc123"}, Rule: "delete"},
		},
		{
			"remove task t-42",
			protocol.ParsedIntent{Action: protocol.ActionDelete, EntityType: protocol.EntityTask, Filters: map[string]string{"id": "t-42"}, Rule: "delete"},
		},
		{
			"sync hubspot",
			protocol.ParsedIntent{Action: protocol.ActionSync, Data: map[string]string{"target": "hubspot"}, Rule: "sync"},
		},
		{
			"Tell me a joke",
			protocol.ParsedIntent{Action: protocol.ActionUnknown, Query: "tell me a joke"},
		},
		{
			"   ",
			protocol.ParsedIntent{Action: protocol.ActionUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.input))
		})
	}
}

func TestClassifyUpdate(t *testing.T) {
	tests := []struct {
		input      string
		id         string
		entityType protocol.EntityType
		data       map[string]string
	}{
		{"mark task abc123 as done", "abc123", protocol.EntityTask, map[string]string{"status": "completed"}},
		{"complete abc123", "abc123", "", map[string]string{"status": "completed"}},
		{"archive project p1", "p1", protocol.EntityProject, map[string]string{"status": "archived"}},
		{"update entity e9 status to blocked", "e9", "", map[string]string{"status": "blocked"}},
		{"set e9 priority to HIGH", "e9", "", map[string]string{"priority": "high"}},
		{"update e9 owner to ana", "e9", "", map[string]string{"owner": "ana"}},
		{`update e9 title to "Launch plan"`, "e9", "", map[string]string{"title": "Launch plan"}},
		{"update task", "", protocol.EntityTask, nil},
		{"complete project", "", protocol.EntityProject, map[string]string{"status": "completed"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Classify(tt.input)
			assert.Equal(t, protocol.ActionUpdate, got.Action)
			assert.Equal(t, tt.id, got.Filters["id"])
			assert.Equal(t, tt.entityType, got.EntityType)
			assert.Equal(t, tt.data, got.Data)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{
		"Create SaaS project: Billing revamp",
		"Show weekly MRR vs burn",
		"show metrics for the sales team",
		"garbage input !!",
	}
	for _, input := range inputs {
		first := Classify(input)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(input))
		}
		// whitespace and case do not change the action
		assert.Equal(t, first.Action, Classify("  "+input+"  ").Action)
	}
}

func TestRuleOrdering(t *testing.T) {
	// both rules match this input; the SaaS rule sits first
	saas := Classify("create SaaS project: Billing revamp")
	assert.Equal(t, "create-saas-project", saas.Rule)
	assert.Equal(t, protocol.EntityProject, saas.EntityType)
	assert.Equal(t, "SaaS", saas.Category)
	assert.Equal(t, "Billing revamp", saas.Data["title"])

	plain := Classify("create project: Billing revamp")
	assert.Equal(t, "create-entity", plain.Rule)
	assert.Empty(t, plain.Category)

	ids := New().Rules()
	assert.Less(t, indexOf(ids, "create-saas-project"), indexOf(ids, "create-entity"))
	assert.Less(t, indexOf(ids, "pull-opportunities"), indexOf(ids, "sync"))
	assert.Less(t, indexOf(ids, "weekly-kpi"), indexOf(ids, "metrics"))
	assert.Less(t, indexOf(ids, "finance-summary"), indexOf(ids, "metrics"))
	assert.Less(t, indexOf(ids, "finance-summary"), indexOf(ids, "sales-summary"))
}

func TestOverlappingKeywords(t *testing.T) {
	tests := []struct {
		input    string
		action   protocol.Action
		category string
		period   string
	}{
		// no category keyword: all categories
		{"show burn and pipeline", protocol.ActionMetrics, "", ""},
		// finance rule precedes the sales rule
		{"pipeline summary and burn rate", protocol.ActionReport, "finance", ""},
		// sales precedes team in keyword order
		{"show metrics for the sales team", protocol.ActionMetrics, "sales", ""},
		{"Show weekly MRR vs burn", protocol.ActionMetrics, "", "weekly"},
		{"what's the mrr", protocol.ActionMetrics, "", ""},
		// burn alone is a metric; burn rate is the finance report
		{"what's the burn", protocol.ActionMetrics, "", ""},
		{"show burn rate", protocol.ActionReport, "finance", ""},
		{"weekly burn rate", protocol.ActionMetrics, "", "weekly"},
		{"show finance metrics", protocol.ActionMetrics, "finance", ""},
		{"win rate", protocol.ActionReport, "sales", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Classify(tt.input)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.period, got.Period)
		})
	}
}

func TestCustomRules(t *testing.T) {
	c := NewWithRules(nil)
	got := c.Classify("create project: X")
	assert.Equal(t, protocol.ActionUnknown, got.Action)
	assert.Equal(t, "create project: x", got.Query)
}

type fakeModel struct {
	text      string
	err       error
	available bool
	calls     int
}

func (f *fakeModel) Generate(_ context.Context, _ *model.Request) (*model.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Text: f.text}, nil
}

func (f *fakeModel) IsAvailable() bool { return f.available }
func (f *fakeModel) Name() string      { return "fake" }

func TestAdvanced(t *testing.T) {
	ctx := context.Background()

	t.Run("uses model intent", func(t *testing.T) {
		m := &fakeModel{available: true, text: "Sure! {\"action\":\"create\",\"entityType\":\"tasks\",\"data\":{\"title\":\"Call Acme\",\"priority\":\"high\"}} done"}
		got := Advanced(ctx, m, "I need to remember to call Acme")
		assert.Equal(t, protocol.ActionCreate, got.Action)
		assert.Equal(t, protocol.EntityTask, got.EntityType)
		assert.Equal(t, "Call Acme", got.Data["title"])
		assert.Equal(t, "advanced", got.Rule)
	})

	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"unavailable", &fakeModel{available: false}},
		{"transport error", &fakeModel{available: true, err: errors.New("boom")}},
		{"not json", &fakeModel{available: true, text: "I cannot help"}},
		{"unknown action", &fakeModel{available: true, text: `{"action":"launch"}`}},
		{"unknown type", &fakeModel{available: true, text: `{"action":"list","entityType":"spaceship"}`}},
		{"create without title", &fakeModel{available: true, text: `{"action":"create","entityType":"task"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advanced(ctx, tt.model, "show all tasks")
			require.Equal(t, Classify("show all tasks"), got)
		})
	}

	t.Run("nil model", func(t *testing.T) {
		assert.Equal(t, Classify("show all tasks"), Advanced(ctx, nil, "show all tasks"))
	})
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
