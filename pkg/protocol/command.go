package protocol

// CommandRequest is the body of a direct command.
type CommandRequest struct {
	Input       string `json:"input"`
	UseAdvanced bool   `json:"useAdvanced,omitempty"`
}

// CommandResult is the response to a direct command. Message is never empty.
type CommandResult struct {
	Intent        ParsedIntent       `json:"intent"`
	Action        string             `json:"action,omitempty"`
	Entities      []Entity           `json:"entities,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	Message       string             `json:"message"`
	Data          any                `json:"data,omitempty"`
	Suggestions   []string           `json:"suggestions,omitempty"`
	Visualization *VisualizationSpec `json:"visualization,omitempty"`
}

// VisualizationType is a rendering hint for the dashboard.
type VisualizationType string

const (
	VisualChart    VisualizationType = "chart"
	VisualTable    VisualizationType = "table"
	VisualKPICards VisualizationType = "kpi_cards"
	VisualTimeline VisualizationType = "timeline"
)

// VisualizationSpec is an optional rendering hint attached to a result.
type VisualizationSpec struct {
	Type   VisualizationType `json:"type"`
	Data   any               `json:"data"`
	Title  string            `json:"title"`
	Config map[string]any    `json:"config,omitempty"`
}
