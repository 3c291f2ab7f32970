package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// modelIntent is the JSON shape the reasoning service is asked to return.
type modelIntent struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	Data       map[string]any `json:"data"`
	Filters    map[string]any `json:"filters"`
	Query      string         `json:"query"`
	Category   string         `json:"category"`
	Period     string         `json:"period"`
}

// Advanced classifies text with one reasoning call. Any failure (no model,
// transport error, unparsable or invalid JSON) yields the cascade result.
func (c *Classifier) Advanced(ctx context.Context, m model.Model, text string) protocol.ParsedIntent {
	local := c.Classify(text)
	if m == nil || !m.IsAvailable() || local.Query == "" && local.Action == protocol.ActionUnknown {
		return local
	}

	resp, err := m.Generate(ctx, &model.Request{
		System:    classificationPrompt,
		Messages:  []model.Message{{Role: model.RoleUser, Content: normalize(text)}},
		MaxTokens: 300,
		JSON:      true,
	})
	if err != nil {
		log.Debug().Err(err).Msg("advanced classification failed, using rule cascade")
		return local
	}

	intent, err := parseModelIntent(resp.Text)
	if err != nil {
		log.Debug().Err(err).Str("rule", local.Rule).Msg("advanced classification unusable, using rule cascade")
		return local
	}
	return intent
}

// Advanced classifies text with the default cascade as fallback.
func Advanced(ctx context.Context, m model.Model, text string) protocol.ParsedIntent {
	return std.Advanced(ctx, m, text)
}

// parseModelIntent extracts the JSON object from text and validates it.
func parseModelIntent(text string) (protocol.ParsedIntent, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return protocol.ParsedIntent{}, fmt.Errorf("no JSON object in response")
	}

	var raw modelIntent
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return protocol.ParsedIntent{}, fmt.Errorf("decode intent: %w", err)
	}

	action := protocol.Action(strings.ToLower(strings.TrimSpace(raw.Action)))
	if !action.Valid() {
		return protocol.ParsedIntent{}, fmt.Errorf("unknown action %q", raw.Action)
	}

	intent := protocol.ParsedIntent{
		Action:   action,
		Query:    raw.Query,
		Category: strings.ToLower(raw.Category),
		Period:   strings.ToLower(raw.Period),
		Data:     stringify(raw.Data),
		Filters:  stringify(raw.Filters),
		Rule:     "advanced",
	}
	if raw.EntityType != "" {
		t := entityTypeOf(raw.EntityType)
		if t == "" {
			return protocol.ParsedIntent{}, fmt.Errorf("unknown entity type %q", raw.EntityType)
		}
		intent.EntityType = t
	}
	if action == protocol.ActionCreate && intent.Data["title"] == "" {
		return protocol.ParsedIntent{}, fmt.Errorf("create intent without title")
	}
	return intent, nil
}

func stringify(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

const classificationPrompt = `You classify commands for a business operations console. Return ONLY a JSON object with this exact format:
{"action": "create|list|update|delete|search|metrics|report|sync|compliance|forecast|unknown", "entityType": "project|task|customer|opportunity|document|note|team_member|lead|deal|okr|investor|...", "data": {}, "filters": {}, "query": "", "category": "finance|sales|marketing|team|", "period": ""}

Rules:
- create: data.title is required
- update/delete: filters.id is the record id, data holds changed fields (status, priority, owner, category, title)
- list: filters may hold status, owner, source
- metrics/report/forecast: category names the KPI area; forecast puts the KPI in data.key
- sync: data.target names the integration

Respond with ONLY the JSON object, no other text.`
