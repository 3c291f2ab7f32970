package classifier

import (
	"regexp"
	"strings"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Entity-type alternations shared by the create, list, update and delete rules.
// Longer spellings come first so the alternation never stops on a prefix.
const (
	listTypes   = `team\s+members?|marketing\s+campaigns?|campaigns?|opportunities|opportunity|opps?|projects?|tasks?|customers?|documents?|docs?|notes?|leads?|deals?|okrs?|investors?|events?|services?|startups?|rnd`
	createTypes = listTypes + `|compliance|finance|metrics?`
)

// irregular maps spellings that trailing-s stripping cannot normalize.
var irregular = map[string]protocol.EntityType{
	"opportunities":       protocol.EntityOpportunity,
	"opps":                protocol.EntityOpportunity,
	"opp":                 protocol.EntityOpportunity,
	"docs":                protocol.EntityDocument,
	"doc":                 protocol.EntityDocument,
	"team member":         protocol.EntityTeamMember,
	"team members":        protocol.EntityTeamMember,
	"campaign":            protocol.EntityMarketingCampaign,
	"campaigns":           protocol.EntityMarketingCampaign,
	"marketing campaign":  protocol.EntityMarketingCampaign,
	"marketing campaigns": protocol.EntityMarketingCampaign,
}

var whitespace = regexp.MustCompile(`\s+`)

// normalize trims and collapses internal whitespace. Case is preserved so
// titles keep the user's spelling; rules match case-insensitively.
func normalize(text string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
}

// entityTypeOf maps a matched type word to its entity type, or "" if the
// word names no known type.
func entityTypeOf(word string) protocol.EntityType {
	w := normalize(strings.ToLower(word))
	if t, ok := irregular[w]; ok {
		return t
	}
	t := protocol.EntityType(w)
	if t.Valid() {
		return t
	}
	t = protocol.EntityType(strings.TrimSuffix(w, "s"))
	if t.Valid() {
		return t
	}
	return ""
}

// typeWord reports whether word is a bare type word ("entity" or a type
// spelling) rather than a record id, and returns the type it names.
func typeWord(word string) (protocol.EntityType, bool) {
	if strings.EqualFold(word, "entity") {
		return "", true
	}
	t := entityTypeOf(word)
	return t, t != ""
}

// resolveCategory picks a metric category from keywords, in a fixed order.
// Text naming none of them resolves to "" and the caller queries all
// categories.
func resolveCategory(lower string) string {
	for _, c := range []protocol.MetricCategory{
		protocol.MetricFinance,
		protocol.MetricSales,
		protocol.MetricMarketing,
		protocol.MetricTeam,
	} {
		if strings.Contains(lower, string(c)) {
			return string(c)
		}
	}
	return ""
}

// cleanTitle strips surrounding quotes and punctuation from a title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	return strings.TrimSpace(s)
}

// statusWords maps status spellings found in commands to stored statuses.
var statusWords = map[string]protocol.Status{
	"done":      protocol.StatusCompleted,
	"complete":  protocol.StatusCompleted,
	"completed": protocol.StatusCompleted,
	"finished":  protocol.StatusCompleted,
	"closed":    protocol.StatusCompleted,
	"archive":   protocol.StatusArchived,
	"archived":  protocol.StatusArchived,
	"blocked":   protocol.StatusBlocked,
	"block":     protocol.StatusBlocked,
	"active":    protocol.StatusActive,
	"open":      protocol.StatusActive,
	"reopened":  protocol.StatusActive,
	"pending":   protocol.StatusPending,
	"draft":     protocol.StatusDraft,
}

// statusOf returns the stored status for word, or word itself lowercased so
// that validation downstream can reject it with a useful message.
func statusOf(word string) string {
	w := strings.ToLower(word)
	if s, ok := statusWords[w]; ok {
		return string(s)
	}
	return w
}

var (
	updateTarget   = regexp.MustCompile(`(?i)^(?:the\s+)?(?:(entity|` + createTypes + `)\s+)?(\S+)\s*(.*)$`)
	updateStatus   = regexp.MustCompile(`(?i)\bstatus\s+(?:to\s+|=\s*)?(\w+)`)
	updatePriority = regexp.MustCompile(`(?i)\bpriority\s+(?:to\s+|=\s*)?(\w+)`)
	updateOwner    = regexp.MustCompile(`(?i)\bowner\s+(?:to\s+|=\s*)?(\S+)`)
	updateCategory = regexp.MustCompile(`(?i)\bcategory\s+(?:to\s+|=\s*)?(\S+)`)
	updateTitle    = regexp.MustCompile(`(?i)\b(?:title|rename)\s+(?:to\s+|=\s*)?(.+)$`)
	updateAs       = regexp.MustCompile(`(?i)\bas\s+(\w+)`)
)

// extractUpdate reads the target id and changed fields from the text that
// follows an update verb.
func extractUpdate(verb, rest string) (protocol.EntityType, string, map[string]string) {
	m := updateTarget.FindStringSubmatch(rest)
	if m == nil {
		return "", "", nil
	}

	var entityType protocol.EntityType
	if m[1] != "" && !strings.EqualFold(m[1], "entity") {
		entityType = entityTypeOf(m[1])
	}
	id := cleanTitle(m[2])
	tail := m[3]
	if m[1] == "" {
		// "update task" names a type and no record.
		if t, ok := typeWord(id); ok {
			entityType, id = t, ""
		}
	}

	data := map[string]string{}
	switch strings.ToLower(verb) {
	case "complete":
		data["status"] = string(protocol.StatusCompleted)
	case "archive":
		data["status"] = string(protocol.StatusArchived)
	}
	if sm := updateStatus.FindStringSubmatch(tail); sm != nil {
		data["status"] = statusOf(sm[1])
	} else if sm := updateAs.FindStringSubmatch(tail); sm != nil {
		data["status"] = statusOf(sm[1])
	}
	if sm := updatePriority.FindStringSubmatch(tail); sm != nil {
		data["priority"] = strings.ToLower(sm[1])
	}
	if sm := updateOwner.FindStringSubmatch(tail); sm != nil {
		data["owner"] = sm[1]
	}
	if sm := updateCategory.FindStringSubmatch(tail); sm != nil {
		data["category"] = sm[1]
	}
	if sm := updateTitle.FindStringSubmatch(tail); sm != nil {
		data["title"] = cleanTitle(sm[1])
	}
	return entityType, id, data
}

// kpiKeys maps KPI words used in forecasts to stored metric keys.
var kpiKeys = map[string]string{
	"mrr":      "mrr",
	"revenue":  "mrr",
	"burn":     "burn",
	"runway":   "runway",
	"cash":     "runway",
	"pipeline": "pipeline",
}

// periodUnit singularizes a horizon unit.
func periodUnit(word string) string {
	w := strings.TrimSuffix(strings.ToLower(word), "s")
	if w == "period" {
		return ""
	}
	return w
}
