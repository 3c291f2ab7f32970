package prompt

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Limits bound how many records of each kind a snapshot carries.
type Limits struct {
	Tasks    int
	Projects int
	Team     int
}

// DefaultLimits are used for any zero field.
var DefaultLimits = Limits{Tasks: 30, Projects: 20, Team: 20}

func (l Limits) withDefaults() Limits {
	if l.Tasks <= 0 {
		l.Tasks = DefaultLimits.Tasks
	}
	if l.Projects <= 0 {
		l.Projects = DefaultLimits.Projects
	}
	if l.Team <= 0 {
		l.Team = DefaultLimits.Team
	}
	return l
}

// Source is what a snapshot is read from.
type Source interface {
	store.Entities
	store.Metrics
	DashboardStats(ctx context.Context) (*store.DashboardStats, error)
}

// Snapshot is a bounded, point-in-time view of the store handed to the
// reasoning service and the fallback responder.
type Snapshot struct {
	Tasks    []protocol.Entity
	Projects []protocol.Entity
	Team     []protocol.Entity
	Metrics  map[string]float64

	Counts       map[protocol.EntityType]int
	OpenTasks    int
	OverdueTasks int
	TakenAt      time.Time
}

// Metric returns the latest value for key, or its headline default.
func (s *Snapshot) Metric(key string) float64 {
	if s == nil {
		return protocol.KPIOr(nil, key)
	}
	return protocol.KPIOr(s.Metrics, key)
}

// Count returns the number of records of type t.
func (s *Snapshot) Count(t protocol.EntityType) int {
	if s == nil {
		return 0
	}
	return s.Counts[t]
}

// Build reads a snapshot from src.
func Build(ctx context.Context, src Source, limits Limits) (*Snapshot, error) {
	limits = limits.withDefaults()
	snap := &Snapshot{TakenAt: time.Now().UTC()}

	var err error
	snap.Tasks, err = src.List(ctx, store.ListFilter{Type: protocol.EntityTask, OpenOnly: true, Limit: limits.Tasks})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	if snap.Projects, err = src.List(ctx, store.ListFilter{Type: protocol.EntityProject, Limit: limits.Projects}); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if snap.Team, err = src.List(ctx, store.ListFilter{Type: protocol.EntityTeamMember, Limit: limits.Team}); err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	if snap.Metrics, err = src.LatestMetrics(ctx, ""); err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}

	stats, err := src.DashboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	snap.Counts = stats.Counts
	snap.OpenTasks = stats.OpenTasks
	snap.OverdueTasks = stats.OverdueTasks
	return snap, nil
}

// Render formats the snapshot as plain text.
func (s *Snapshot) Render() string {
	if s == nil {
		return "No business data available."
	}
	var b strings.Builder

	b.WriteString("Metrics:\n")
	if len(s.Metrics) == 0 {
		b.WriteString("- none recorded\n")
	}
	keys := make([]string, 0, len(s.Metrics))
	for k := range s.Metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, s.Metrics[k])
	}

	fmt.Fprintf(&b, "\nOpen tasks (%d total, %d overdue):\n", s.OpenTasks, s.OverdueTasks)
	for _, t := range s.Tasks {
		b.WriteString("- " + t.Title)
		var attrs []string
		attrs = append(attrs, string(t.Status), string(t.Priority))
		if t.Owner != "" {
			attrs = append(attrs, "owner "+t.Owner)
		}
		if t.DueDate != nil {
			attrs = append(attrs, "due "+t.DueDate.Format("2006-01-02"))
		}
		fmt.Fprintf(&b, " [%s] (id %s)\n", strings.Join(attrs, ", "), t.ID)
	}

	b.WriteString("\nProjects:\n")
	for _, p := range s.Projects {
		fmt.Fprintf(&b, "- %s [%s] (id %s)\n", p.Title, p.Status, p.ID)
	}

	b.WriteString("\nTeam:\n")
	for _, m := range s.Team {
		b.WriteString("- " + m.Title)
		if role, ok := m.Metadata["role"].(string); ok && role != "" {
			b.WriteString(", " + role)
		}
		b.WriteString("\n")
	}

	if len(s.Counts) > 0 {
		b.WriteString("\nRecord counts:\n")
		for _, t := range protocol.EntityTypes {
			if n := s.Counts[t]; n > 0 {
				fmt.Fprintf(&b, "- %s: %d\n", t, n)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
