package schemas

import "github.com/flynn-ai/opsconsole/pkg/protocol"

func enum[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// RegisterEntityTools registers the record tool schemas.
func RegisterEntityTools(registry *Registry) {
	types := enum(protocol.EntityTypes)
	statuses := enum(protocol.Statuses)
	priorities := enum(protocol.Priorities)

	registry.Register(NewSchema("create_entity", "Create a record (project, task, customer, ...) in the shared store").
		AddParamWithEnum("type", "string", "Entity type", types, true).
		AddParam("title", "string", "Record title", true).
		AddParam("description", "string", "Longer description", false).
		AddParamWithEnum("status", "string", "Lifecycle status (default active)", statuses, false).
		AddParamWithEnum("priority", "string", "Priority (default medium)", priorities, false).
		AddParam("category", "string", "Free-form category, e.g. SaaS", false).
		AddParam("owner", "string", "Responsible person", false).
		AddParam("due_date", "string", "Due date, YYYY-MM-DD or RFC 3339", false).
		AddParam("parent_id", "string", "Id of the parent record", false).
		AddParam("tags", "array", "Tags", false).
		AddParam("metadata", "object", "Type-specific attributes", false).
		Build())

	registry.Register(NewSchema("update_entity", "Update fields of an existing record").
		AddParam("id", "string", "Record id", true).
		AddParam("title", "string", "New title", false).
		AddParam("description", "string", "New description", false).
		AddParamWithEnum("status", "string", "New status", statuses, false).
		AddParamWithEnum("priority", "string", "New priority", priorities, false).
		AddParam("category", "string", "New category", false).
		AddParam("owner", "string", "New owner", false).
		AddParam("due_date", "string", "New due date, YYYY-MM-DD or RFC 3339", false).
		AddParam("tags", "array", "Replacement tags", false).
		AddParam("metadata", "object", "Attributes merged into the existing metadata", false).
		Build())

	registry.Register(NewSchema("delete_entity", "Delete a record").
		AddParam("id", "string", "Record id", true).
		Build())

	registry.Register(NewSchema("get_entity", "Fetch one record by id").
		AddParam("id", "string", "Record id", true).
		Build())

	registry.Register(NewSchema("list_entities", "List records, most recently updated first").
		AddParamWithEnum("type", "string", "Entity type", types, false).
		AddParamWithEnum("status", "string", "Status", statuses, false).
		AddParam("owner", "string", "Owner", false).
		AddParam("category", "string", "Category", false).
		AddParam("source", "string", "Originating integration, e.g. salesforce", false).
		AddParamWithDefault("limit", "integer", "Maximum number of records", 50).
		Build())

	registry.Register(NewSchema("search_entities", "Full-text search over titles, descriptions and tags").
		AddParam("query", "string", "Search text", true).
		AddParamWithDefault("limit", "integer", "Maximum number of results", 20).
		Build())
}

// RegisterMetricTools registers the KPI and workload tool schemas.
func RegisterMetricTools(registry *Registry) {
	categories := enum(protocol.MetricCategories)

	registry.Register(NewSchema("create_metric", "Record a KPI value").
		AddParamWithEnum("category", "string", "Metric category", categories, true).
		AddParam("key", "string", "Metric key, e.g. mrr, burn, runway, pipeline", true).
		AddParam("value", "number", "Metric value", true).
		AddParam("unit", "string", "Unit, e.g. USD, months, %", false).
		AddParam("period", "string", "Period the value covers, e.g. 2024-05", false).
		Build())

	registry.Register(NewSchema("get_metrics", "Latest value of every KPI, optionally for one category").
		AddParamWithEnum("category", "string", "Metric category", categories, false).
		Build())

	registry.Register(NewSchema("get_metric_history", "Recorded values of one KPI, oldest first").
		AddParam("key", "string", "Metric key, e.g. mrr", true).
		AddParamWithDefault("limit", "integer", "Maximum number of points", 12).
		Build())

	registry.Register(NewSchema("get_tasks_due", "Open tasks due within the next N days").
		AddParamWithDefault("days", "integer", "Horizon in days", 7).
		AddParam("owner", "string", "Only tasks owned by this person", false).
		Build())

	registry.Register(NewSchema("get_team_workload", "Open task counts per owner and team utilization").
		AddParam("owner", "string", "Only this person", false).
		Build())
}
