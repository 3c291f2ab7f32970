package dispatch

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/audit"
	"github.com/flynn-ai/opsconsole/internal/logging"
	"github.com/flynn-ai/opsconsole/internal/tools/executor"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// KPICard is one tile of a kpi_cards visualization.
type KPICard struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

func (d *Dispatcher) latest(ctx context.Context, category string) (map[string]float64, protocol.ToolResult) {
	args := map[string]any{}
	if category != "" {
		args["category"] = category
	}
	res := d.call(ctx, "get_metrics", args)
	if !res.Success {
		return nil, res
	}
	return res.Payload.(map[string]any)["metrics"].(map[string]float64), res
}

func (d *Dispatcher) metrics(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	metrics, res := d.latest(ctx, intent.Category)
	if !res.Success {
		return failure(res, "loading", "metrics")
	}
	if len(metrics) == 0 {
		return &protocol.CommandResult{Metrics: metrics, Message: "No metrics found"}, outcomeOK
	}

	keys := sortedKeys(metrics)
	parts := make([]string, 0, len(keys))
	cards := make([]KPICard, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+protocol.FormatNumber(metrics[k]))
		cards = append(cards, KPICard{Key: k, Label: k, Value: metrics[k]})
	}

	title := "Current metrics"
	if intent.Period != "" {
		title = capitalize(intent.Period) + " metrics"
	}
	return &protocol.CommandResult{
		Metrics: metrics,
		Data:    metrics,
		Message: "Current metrics: " + strings.Join(parts, ", "),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualKPICards,
			Title: title,
			Data:  cards,
		},
	}, outcomeOK
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func (d *Dispatcher) report(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	switch protocol.MetricCategory(intent.Category) {
	case protocol.MetricSales:
		return d.salesReport(ctx)
	case protocol.MetricTeam:
		return d.teamReport(ctx)
	case protocol.MetricFinance:
		return d.financeReport(ctx)
	default:
		return d.metrics(ctx, intent)
	}
}

func (d *Dispatcher) financeReport(ctx context.Context) (*protocol.CommandResult, string) {
	metrics, res := d.latest(ctx, string(protocol.MetricFinance))
	if !res.Success {
		return failure(res, "loading", "finance summary")
	}
	mrr := protocol.KPIOr(metrics, "mrr")
	burn := protocol.KPIOr(metrics, "burn")
	runway := protocol.KPIOr(metrics, "runway")

	summary := map[string]float64{"mrr": mrr, "burn": burn, "runway": runway}
	return &protocol.CommandResult{
		Metrics: summary,
		Data:    summary,
		Message: fmt.Sprintf("Finance summary: MRR %s, burn %s/month, runway %s months", protocol.FormatMoney(mrr), protocol.FormatMoney(burn), protocol.FormatNumber(runway)),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualKPICards,
			Title: "Finance",
			Data: []KPICard{
				{Key: "mrr", Label: "MRR", Value: mrr, Unit: "USD"},
				{Key: "burn", Label: "Burn", Value: burn, Unit: "USD"},
				{Key: "runway", Label: "Runway", Value: runway, Unit: "months"},
			},
		},
	}, outcomeOK
}

func (d *Dispatcher) salesReport(ctx context.Context) (*protocol.CommandResult, string) {
	metrics, res := d.latest(ctx, string(protocol.MetricSales))
	if !res.Success {
		return failure(res, "loading", "sales summary")
	}
	opps := d.call(ctx, "list_entities", map[string]any{
		"type":   string(protocol.EntityOpportunity),
		"status": string(protocol.StatusActive),
	})
	if !opps.Success {
		return failure(opps, "loading", "opportunities")
	}
	open := opps.Payload.(map[string]any)["entities"].([]protocol.Entity)

	pipeline := protocol.KPIOr(metrics, "pipeline")
	winRate := protocol.KPIOr(metrics, "win_rate")
	summary := map[string]float64{
		"pipeline":           pipeline,
		"win_rate":           winRate,
		"open_opportunities": float64(len(open)),
	}
	return &protocol.CommandResult{
		Entities: open,
		Metrics:  summary,
		Data:     summary,
		Message: fmt.Sprintf("Sales summary: pipeline %s, win rate %s%%, %d open opportunities",
			protocol.FormatMoney(pipeline), protocol.FormatNumber(winRate), len(open)),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualKPICards,
			Title: "Sales",
			Data: []KPICard{
				{Key: "pipeline", Label: "Pipeline", Value: pipeline, Unit: "USD"},
				{Key: "win_rate", Label: "Win rate", Value: winRate, Unit: "%"},
				{Key: "open_opportunities", Label: "Open opportunities", Value: float64(len(open))},
			},
		},
	}, outcomeOK
}

func (d *Dispatcher) teamReport(ctx context.Context) (*protocol.CommandResult, string) {
	res := d.call(ctx, "get_team_workload", nil)
	if !res.Success {
		return failure(res, "loading", "team workload")
	}
	payload := res.Payload.(map[string]any)
	utilization := payload["utilization"].(float64)
	owners := payload["owners"].([]executor.OwnerLoad)

	return &protocol.CommandResult{
		Metrics: map[string]float64{"utilization": utilization},
		Data:    payload,
		Message: fmt.Sprintf("Team utilization: %s%% across %d people with open tasks", protocol.FormatNumber(utilization), len(owners)),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualTable,
			Title: "Team workload",
			Data:  owners,
		},
	}, outcomeOK
}

func (d *Dispatcher) compliance(ctx context.Context, _ protocol.ParsedIntent) (*protocol.CommandResult, string) {
	res := d.call(ctx, "list_entities", map[string]any{
		"type":  string(protocol.EntityCompliance),
		"limit": 500,
	})
	if !res.Success {
		return failure(res, "loading", "compliance items")
	}
	items := res.Payload.(map[string]any)["entities"].([]protocol.Entity)
	if len(items) == 0 {
		return &protocol.CommandResult{Message: "No compliance items found"}, outcomeOK
	}

	counts := map[string]int{}
	for _, e := range items {
		counts[string(e.Status)]++
	}
	parts := []string{}
	for _, s := range protocol.Statuses {
		if n := counts[string(s)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return &protocol.CommandResult{
		Entities: items,
		Data:     counts,
		Message:  fmt.Sprintf("Compliance: %d items (%s)", len(items), strings.Join(parts, ", ")),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualTable,
			Title: "Compliance",
			Data:  items,
		},
	}, outcomeOK
}

// DefaultHorizon is the forecast length when the command names none.
const DefaultHorizon = 3

// historyWindow bounds the points a forecast is fitted on.
const historyWindow = 12

// Projection is a forecast result.
type Projection struct {
	Key       string    `json:"key"`
	Period    string    `json:"period"`
	History   []float64 `json:"history"`
	Projected []float64 `json:"projected"`
	Slope     float64   `json:"slope"`
}

func (d *Dispatcher) forecast(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	key := intent.Data["key"]
	if key == "" {
		key = "mrr"
	}
	horizon := DefaultHorizon
	if n, err := strconv.Atoi(intent.Data["horizon"]); err == nil && n > 0 {
		horizon = n
	}
	period := intent.Period
	if period == "" {
		period = "period"
	}

	res := d.call(ctx, "get_metric_history", map[string]any{"key": key, "limit": historyWindow})
	if !res.Success {
		return failure(res, "loading", key+" history")
	}
	history, _ := res.Payload.(map[string]any)["history"].([]protocol.Metric)
	if len(history) == 0 {
		return &protocol.CommandResult{
			Message: fmt.Sprintf("No %s history recorded yet, so there is nothing to forecast", key),
		}, outcomeOK
	}

	values := make([]float64, len(history))
	for i, m := range history {
		values[i] = m.Value
	}
	p := Project(values, horizon)
	p.Key = key
	p.Period = period

	parts := make([]string, len(p.Projected))
	for i, v := range p.Projected {
		parts[i] = protocol.FormatNumber(v)
	}
	unit := period
	if horizon != 1 {
		unit += "s"
	}
	return &protocol.CommandResult{
		Data:    p,
		Message: fmt.Sprintf("Forecast for %s over the next %d %s: %s", key, horizon, unit, strings.Join(parts, ", ")),
		Visualization: &protocol.VisualizationSpec{
			Type:   protocol.VisualChart,
			Title:  "Forecast: " + key,
			Data:   p,
			Config: map[string]any{"kind": "line"},
		},
	}, outcomeOK
}

// Project fits a least-squares line through values (x = 0..n-1) and
// extends it horizon steps. A single value projects flat.
func Project(values []float64, horizon int) Projection {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	var slope float64
	if denom := n*sumXX - sumX*sumX; denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept := (sumY - slope*sumX) / n

	projected := make([]float64, horizon)
	for i := range projected {
		x := n + float64(i)
		projected[i] = round2(intercept + slope*x)
	}
	return Projection{History: values, Projected: projected, Slope: round2(slope)}
}

func (d *Dispatcher) sync(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	target := intent.Data["target"]
	if target == "" {
		return &protocol.CommandResult{Message: `Could not determine what to sync. Try: "Sync hubspot"`}, outcomeFailed
	}

	event := audit.NewEvent(audit.KindSync, map[string]any{
		"target":    target,
		"channel":   string(protocol.ChannelDirect),
		"queued_at": d.now().UTC(),
		"rule":      intent.Rule,
	})
	pctx, cancel := logging.DetachContextWithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := d.deps.Publisher.Publish(pctx, event); err != nil {
		log.Warn().Err(err).Str("target", target).Msg("failed to queue sync")
		return &protocol.CommandResult{
			Message: fmt.Sprintf("Could not queue sync for %s. Please try again.", target),
		}, outcomeFailed
	}
	return &protocol.CommandResult{
		Action:  "queued",
		Data:    map[string]any{"target": target, "event_id": event.ID},
		Message: "Sync queued for " + target,
	}, outcomeOK
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
