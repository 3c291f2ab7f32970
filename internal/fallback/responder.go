// Package fallback answers chat messages from a context snapshot when the
// reasoning service cannot. Responses are deterministic and never empty.
package fallback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flynn-ai/opsconsole/internal/prompt"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

type rule struct {
	id      string
	re      *regexp.Regexp
	respond func(snap *prompt.Snapshot) string
}

// rules are tried in order against the lowercased message; the first match
// answers.
var rules = []rule{
	{"greeting", regexp.MustCompile(`^(?:hi|hello|hey|good\s+(?:morning|afternoon|evening))\b`), greeting},
	{"revenue", regexp.MustCompile(`\b(?:revenue|mrr|arr|income|sales\s+numbers)\b`), revenue},
	{"burn", regexp.MustCompile(`\b(?:burn|runway|cash|spend(?:ing)?)\b`), burn},
	{"pipeline", regexp.MustCompile(`\b(?:pipeline|sales|deals?|opportunit(?:y|ies)|win\s+rate)\b`), pipeline},
	{"tasks", regexp.MustCompile(`\b(?:tasks?|due|overdue|to-?dos?|deadlines?)\b`), tasks},
	{"projects", regexp.MustCompile(`\bprojects?\b`), projects},
	{"team", regexp.MustCompile(`\b(?:team|workload|utili[sz]ation|capacity|headcount)\b`), team},
	{"customers", regexp.MustCompile(`\b(?:customers?|clients?|accounts?)\b`), customers},
	{"help", regexp.MustCompile(`\b(?:help|what\s+can\s+you\s+do|commands?)\b`), help},
}

// Respond returns an answer to message built only from snap, which may be nil.
func Respond(message string, snap *prompt.Snapshot) string {
	text, _ := Match(message, snap)
	return text
}

// Match is Respond that also reports which rule answered ("summary" when
// none did).
func Match(message string, snap *prompt.Snapshot) (string, string) {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, r := range rules {
		if r.re.MatchString(lower) {
			return r.respond(snap), r.id
		}
	}
	return summary(snap), "summary"
}

func greeting(snap *prompt.Snapshot) string {
	return fmt.Sprintf("Hello! MRR is currently %s and there are %d open tasks. "+
		"Ask me about revenue, burn, the sales pipeline, tasks, projects or the team.",
		protocol.FormatMoney(snap.Metric("mrr")), openTasks(snap))
}

func revenue(snap *prompt.Snapshot) string {
	mrr := snap.Metric("mrr")
	return fmt.Sprintf("Current MRR is %s, an annual run rate of %s.%s",
		protocol.FormatMoney(mrr), protocol.FormatMoney(mrr*12), estimateNote(snap, "mrr"))
}

func burn(snap *prompt.Snapshot) string {
	return fmt.Sprintf("Monthly burn is %s with %s months of runway.%s",
		protocol.FormatMoney(snap.Metric("burn")), protocol.FormatNumber(snap.Metric("runway")),
		estimateNote(snap, "burn"))
}

func pipeline(snap *prompt.Snapshot) string {
	return fmt.Sprintf("The sales pipeline stands at %s with a %s%% win rate across %d opportunities.%s",
		protocol.FormatMoney(snap.Metric("pipeline")), protocol.FormatNumber(snap.Metric("win_rate")),
		snap.Count(protocol.EntityOpportunity), estimateNote(snap, "pipeline"))
}

func tasks(snap *prompt.Snapshot) string {
	open := openTasks(snap)
	if open == 0 {
		return "There are no open tasks right now."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "There are %d open tasks", open)
	if snap.OverdueTasks > 0 {
		fmt.Fprintf(&b, ", %d of them overdue", snap.OverdueTasks)
	}
	b.WriteString(".")
	if titles := titlesOf(snap.Tasks, 3); titles != "" {
		b.WriteString(" Up next: " + titles + ".")
	}
	return b.String()
}

func projects(snap *prompt.Snapshot) string {
	n := snap.Count(protocol.EntityProject)
	if n == 0 {
		return `There are no projects yet. Try "Create project: My Project".`
	}
	msg := fmt.Sprintf("There are %d projects.", n)
	if titles := titlesOf(snap.Projects, 3); titles != "" {
		msg += " Recent ones: " + titles + "."
	}
	return msg
}

func team(snap *prompt.Snapshot) string {
	size := snap.Count(protocol.EntityTeamMember)
	util := teamUtilization(snap)
	if size == 0 {
		return fmt.Sprintf("Team utilization is around %s%%. No team members are recorded yet.", protocol.FormatNumber(util))
	}
	return fmt.Sprintf("The team has %d members running at about %s%% utilization, with %d open tasks between them.",
		size, protocol.FormatNumber(util), openTasks(snap))
}

func customers(snap *prompt.Snapshot) string {
	n := snap.Count(protocol.EntityCustomer)
	if n == 0 {
		return "No customers are recorded yet."
	}
	return fmt.Sprintf("There are %d customers on record, contributing %s in MRR.", n, protocol.FormatMoney(snap.Metric("mrr")))
}

func help(*prompt.Snapshot) string {
	return "I can answer questions about revenue, burn and runway, the sales pipeline, tasks, projects, " +
		`customers and the team. You can also run commands such as "Create project: My Project", ` +
		`"Show all tasks" or "Show metrics".`
}

func summary(snap *prompt.Snapshot) string {
	return fmt.Sprintf("Here is where things stand: MRR %s, burn %s/month, runway %s months, "+
		"%d open tasks and %d projects. Ask about any of these for more detail.",
		protocol.FormatMoney(snap.Metric("mrr")), protocol.FormatMoney(snap.Metric("burn")),
		protocol.FormatNumber(snap.Metric("runway")), openTasks(snap), snap.Count(protocol.EntityProject))
}

func openTasks(snap *prompt.Snapshot) int {
	if snap == nil {
		return 0
	}
	if snap.OpenTasks > 0 {
		return snap.OpenTasks
	}
	return len(snap.Tasks)
}

// teamUtilization averages team member utilization, else the recorded
// metric, else the default.
func teamUtilization(snap *prompt.Snapshot) float64 {
	if snap != nil {
		var sum float64
		var n int
		for _, m := range snap.Team {
			if v, ok := m.Metadata["utilizationActual"].(float64); ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			return sum / float64(n)
		}
	}
	return snap.Metric("utilization")
}

func titlesOf(entities []protocol.Entity, max int) string {
	var titles []string
	for _, e := range entities {
		if len(titles) == max {
			break
		}
		titles = append(titles, e.Title)
	}
	return strings.Join(titles, ", ")
}

// estimateNote flags figures that come from defaults rather than records.
func estimateNote(snap *prompt.Snapshot, key string) string {
	if snap != nil {
		if _, ok := snap.Metrics[key]; ok {
			return ""
		}
	}
	return " (estimate; no value recorded yet)"
}
