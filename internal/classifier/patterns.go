package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Rule is one step of the classification cascade.
type Rule struct {
	ID    string
	Regex *regexp.Regexp

	// Extract builds the intent from the normalized text and the regex
	// submatches. lower is the normalized text lowercased.
	Extract func(text, lower string, m []string) protocol.ParsedIntent
}

// Match returns the submatches of text, or nil if the rule does not apply.
func (r *Rule) Match(text string) []string {
	return r.Regex.FindStringSubmatch(text)
}

// defaultRules returns the cascade. Order is significant: the first rule that
// matches wins, so specific phrasings sit above the generic ones they overlap.
func defaultRules() []*Rule {
	return []*Rule{
		// ============================================================
		// CREATE
		// ============================================================
		{
			ID:    "create-saas-project",
			Regex: regexp.MustCompile(`(?i)^(?:create|new|add)\s+saas\s+project\b\s*:?\s*(.*)$`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:     protocol.ActionCreate,
					EntityType: protocol.EntityProject,
					Category:   "SaaS",
					Data:       map[string]string{"title": titleOrUntitled(m[1]), "category": "SaaS"},
				}
			},
		},
		{
			// One qualifier word may sit between verb and type ("create new task").
			ID:    "create-entity",
			Regex: regexp.MustCompile(`(?i)^(?:create|add|new)\s+(?:\w+\s+)?(` + createTypes + `)\b\s*:?\s*(.*)$`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:     protocol.ActionCreate,
					EntityType: entityTypeOf(m[1]),
					Data:       map[string]string{"title": titleOrUntitled(m[2])},
				}
			},
		},

		// ============================================================
		// INTEGRATIONS
		// ============================================================
		{
			ID:    "pull-opportunities",
			Regex: regexp.MustCompile(`(?i)^(?:pull|sync|fetch)\s+(?:latest\s+)?(?:opportunities|opportunity|opps?|sfdc|salesforce)\b`),
			Extract: func(_, _ string, _ []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:     protocol.ActionList,
					EntityType: protocol.EntityOpportunity,
					Filters:    map[string]string{"source": "salesforce"},
				}
			},
		},
		{
			ID:    "index-docs",
			Regex: regexp.MustCompile(`(?i)^(?:index|sync)\s+(?:documents?|docs?)\b`),
			Extract: func(_, _ string, _ []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{Action: protocol.ActionList, EntityType: protocol.EntityDocument}
			},
		},

		// ============================================================
		// LIST
		// ============================================================
		{
			ID: "list-entity",
			Regex: regexp.MustCompile(`(?i)^(?:show|list|get|view)\s+(?:me\s+)?(?:all\s+)?(?:(active|completed|archived|blocked|pending|draft|open|done)\s+)?(` +
				listTypes + `)\b(?:.*?\bfor\s+(\S+))?`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				intent := protocol.ParsedIntent{
					Action:     protocol.ActionList,
					EntityType: entityTypeOf(m[2]),
				}
				filters := map[string]string{}
				if m[1] != "" {
					filters["status"] = statusOf(m[1])
				}
				if m[3] != "" {
					filters["owner"] = m[3]
				}
				if len(filters) > 0 {
					intent.Filters = filters
				}
				return intent
			},
		},

		// ============================================================
		// METRICS & REPORTS
		// ============================================================
		{
			ID:    "weekly-kpi",
			Regex: regexp.MustCompile(`(?i)\b(weekly|monthly|daily)\s+(?:mrr|burn|metrics)\b`),
			Extract: func(_, lower string, m []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:   protocol.ActionMetrics,
					Query:    lower,
					Category: resolveCategory(lower),
					Period:   strings.ToLower(m[1]),
				}
			},
		},
		{
			// Above the metrics rule so "what's the burn rate" is a report.
			ID:      "finance-summary",
			Regex:   regexp.MustCompile(`(?i)\b(?:finance|financial)\s+summary\b|\bburn\s+rate\b`),
			Extract: report(protocol.MetricFinance),
		},
		{
			ID:    "metrics",
			Regex: regexp.MustCompile(`(?i)^(?:show|get|what'?s?)\s+(?:the\s+)?(?:current\s+)?(?:(?:finance|financial|sales|marketing|team|key)\s+)?(?:mrr|burn|runway|metrics|kpis?)\b`),
			Extract: func(_, lower string, _ []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:   protocol.ActionMetrics,
					Query:    lower,
					Category: resolveCategory(lower),
				}
			},
		},
		{
			ID:      "sales-summary",
			Regex:   regexp.MustCompile(`(?i)\b(?:sales|pipeline)\s+summary\b|\bwin\s+rate\b`),
			Extract: report(protocol.MetricSales),
		},
		{
			ID:      "team-utilization",
			Regex:   regexp.MustCompile(`(?i)\bteam\s+(?:utilization|workload|capacity)\b|\butilization\b`),
			Extract: report(protocol.MetricTeam),
		},
		{
			ID:    "compliance",
			Regex: regexp.MustCompile(`(?i)^(?:(?:show|list|check|get|view|run)\s+)?(?:the\s+|my\s+)?compliance\b`),
			Extract: func(_, lower string, _ []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action:     protocol.ActionCompliance,
					EntityType: protocol.EntityCompliance,
					Query:      lower,
				}
			},
		},
		{
			ID: "forecast",
			Regex: regexp.MustCompile(`(?i)^(?:forecast|predict|project)\s+(?:the\s+)?(mrr|burn|runway|revenue|pipeline|cash)\b` +
				`(?:.*?\b(\d+)\s+(months?|weeks?|quarters?|periods?)\b)?`),
			Extract: func(_, lower string, m []string) protocol.ParsedIntent {
				key := kpiKeys[strings.ToLower(m[1])]
				category := protocol.MetricFinance
				if key == "pipeline" {
					category = protocol.MetricSales
				}
				data := map[string]string{"key": key}
				if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
					data["horizon"] = m[2]
				}
				return protocol.ParsedIntent{
					Action:   protocol.ActionForecast,
					Query:    lower,
					Category: string(category),
					Period:   periodUnit(m[3]),
					Data:     data,
				}
			},
		},

		// ============================================================
		// SEARCH / UPDATE / DELETE
		// ============================================================
		{
			ID:    "search",
			Regex: regexp.MustCompile(`(?i)^(?:search|find|look\s+for)\b\s*(?:for\b\s*)?(.*)$`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action: protocol.ActionSearch,
					Query:  cleanTitle(strings.ToLower(m[1])),
				}
			},
		},
		{
			ID:    "update",
			Regex: regexp.MustCompile(`(?i)^(update|mark|set|complete|archive)\s+(.+)$`),
			Extract: func(_, lower string, m []string) protocol.ParsedIntent {
				entityType, id, data := extractUpdate(m[1], m[2])
				intent := protocol.ParsedIntent{
					Action:     protocol.ActionUpdate,
					EntityType: entityType,
					Query:      lower,
				}
				if id != "" {
					intent.Filters = map[string]string{"id": id}
				}
				if len(data) > 0 {
					intent.Data = data
				}
				return intent
			},
		},
		{
			ID:    "delete",
			Regex: regexp.MustCompile(`(?i)^(?:delete|remove)\s+(?:the\s+)?(?:(entity|` + createTypes + `)\s+)?(\S+)$`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				intent := protocol.ParsedIntent{Action: protocol.ActionDelete}
				id := cleanTitle(m[2])
				if m[1] == "" {
					// "delete project" names a type and no record.
					if t, ok := typeWord(id); ok {
						intent.EntityType = t
						return intent
					}
				}
				intent.Filters = map[string]string{"id": id}
				if m[1] != "" && !strings.EqualFold(m[1], "entity") {
					intent.EntityType = entityTypeOf(m[1])
				}
				return intent
			},
		},

		// ============================================================
		// GENERIC SYNC (after the specific integration rules)
		// ============================================================
		{
			ID:    "sync",
			Regex: regexp.MustCompile(`(?i)^(?:pull|sync|fetch)\s+(?:latest\s+)?(.+)$`),
			Extract: func(_, _ string, m []string) protocol.ParsedIntent {
				return protocol.ParsedIntent{
					Action: protocol.ActionSync,
					Data:   map[string]string{"target": strings.ToLower(m[1])},
				}
			},
		},
	}
}

func report(category protocol.MetricCategory) func(string, string, []string) protocol.ParsedIntent {
	return func(_, lower string, _ []string) protocol.ParsedIntent {
		return protocol.ParsedIntent{
			Action:   protocol.ActionReport,
			Query:    lower,
			Category: string(category),
		}
	}
}

func titleOrUntitled(s string) string {
	if t := cleanTitle(s); t != "" {
		return t
	}
	return "Untitled"
}
