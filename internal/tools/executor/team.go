package executor

import (
	"context"
	"sort"
	"time"

	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// TasksDue lists open tasks due within a horizon.
type TasksDue struct {
	Store store.Entities
	Now   func() time.Time
}

func (t *TasksDue) Name() string { return "get_tasks_due" }

func (t *TasksDue) Description() string { return "Open tasks due within the next N days" }

func (t *TasksDue) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	days := intArg(input, "days", 7)
	if days < 0 {
		days = 0
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	horizon := now().Add(time.Duration(days) * 24 * time.Hour)

	tasks, err := t.Store.List(ctx, store.ListFilter{
		Type:      protocol.EntityTask,
		Owner:     stringArg(input, "owner"),
		OpenOnly:  true,
		DueBefore: &horizon,
		ByDueDate: true,
		Limit:     store.DefaultListLimit,
	})
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	due := make([]protocol.Entity, 0, len(tasks))
	overdue := 0
	for _, task := range tasks {
		if task.DueDate != nil && task.DueDate.Before(now()) {
			overdue++
		}
		due = append(due, task)
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"days":    days,
		"tasks":   due,
		"count":   len(due),
		"overdue": overdue,
	}), start), nil
}

// OwnerLoad is one row of the workload report.
type OwnerLoad struct {
	Owner       string   `json:"owner"`
	OpenTasks   int      `json:"open_tasks"`
	Utilization *float64 `json:"utilization,omitempty"`
}

// TeamWorkload reports open tasks per owner and team utilization.
type TeamWorkload struct {
	Store interface {
		store.Entities
		store.Metrics
	}
}

func (t *TeamWorkload) Name() string { return "get_team_workload" }

func (t *TeamWorkload) Description() string { return "Open task counts per owner and team utilization" }

func (t *TeamWorkload) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()
	owner := stringArg(input, "owner")

	tasks, err := t.Store.List(ctx, store.ListFilter{Type: protocol.EntityTask, Owner: owner, OpenOnly: true, Limit: 1000})
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	members, err := t.Store.List(ctx, store.ListFilter{Type: protocol.EntityTeamMember, Limit: 1000})
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	loads := map[string]*OwnerLoad{}
	get := func(name string) *OwnerLoad {
		if l, ok := loads[name]; ok {
			return l
		}
		l := &OwnerLoad{Owner: name}
		loads[name] = l
		return l
	}

	for _, task := range tasks {
		if task.Owner == "" {
			continue
		}
		get(task.Owner).OpenTasks++
	}

	var sum float64
	var n int
	for _, m := range members {
		u, ok := utilizationOf(m)
		if !ok {
			continue
		}
		sum += u
		n++
		if owner != "" && m.Title != owner {
			continue
		}
		get(m.Title).Utilization = &u
	}

	utilization, source := protocol.DefaultUtilization, "default"
	switch {
	case n > 0:
		utilization, source = sum/float64(n), "team_members"
	default:
		metrics, err := t.Store.LatestMetrics(ctx, protocol.MetricTeam)
		if err != nil {
			return TimedResult(NewErrorResult(err), start), nil
		}
		if v, ok := metrics["utilization"]; ok {
			utilization, source = v, "metric"
		}
	}

	rows := make([]OwnerLoad, 0, len(loads))
	for _, l := range loads {
		rows = append(rows, *l)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OpenTasks != rows[j].OpenTasks {
			return rows[i].OpenTasks > rows[j].OpenTasks
		}
		return rows[i].Owner < rows[j].Owner
	})

	return TimedResult(NewSuccessResult(map[string]any{
		"owners":             rows,
		"utilization":        utilization,
		"utilization_source": source,
	}), start), nil
}

// utilizationOf reads a team member's utilization from metadata.
func utilizationOf(m protocol.Entity) (float64, bool) {
	for _, key := range []string{"utilizationActual", "utilization"} {
		switch v := m.Metadata[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}
