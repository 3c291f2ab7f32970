package protocol

// Action is the verb of a parsed command.
type Action string

const (
	ActionCreate     Action = "create"
	ActionList       Action = "list"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionSearch     Action = "search"
	ActionMetrics    Action = "metrics"
	ActionReport     Action = "report"
	ActionSync       Action = "sync"
	ActionCompliance Action = "compliance"
	ActionForecast   Action = "forecast"
	ActionUnknown    Action = "unknown"
)

var Actions = []Action{
	ActionCreate, ActionList, ActionUpdate, ActionDelete, ActionSearch, ActionMetrics,
	ActionReport, ActionSync, ActionCompliance, ActionForecast, ActionUnknown,
}

func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ParsedIntent is the structured reading of one free-text command.
type ParsedIntent struct {
	Action     Action            `json:"action"`
	EntityType EntityType        `json:"entityType,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Query      string            `json:"query,omitempty"`
	Category   string            `json:"category,omitempty"`
	Period     string            `json:"period,omitempty"`

	// Rule is the id of the cascade rule that produced the intent.
	Rule string `json:"rule,omitempty"`
}
