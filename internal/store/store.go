// Package store defines the entity store the command pipeline depends on
// and ships a SQLite implementation of it.
//
// The pipeline never touches persistent records except through these
// interfaces. Implementations report a missing id with an
// errors.CodeRecordNotFound AppError and wrap engine failures with
// errors.CodePersistenceFailure.
package store

import (
	"context"
	"time"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Default page sizes.
const (
	DefaultListLimit   = 100
	DefaultSearchLimit = 50
)

// Entities is record CRUD, listing and search.
type Entities interface {
	Create(ctx context.Context, e *protocol.Entity) (*protocol.Entity, error)
	Get(ctx context.Context, id string) (*protocol.Entity, error)
	Update(ctx context.Context, id string, patch protocol.EntityPatch) (*protocol.Entity, error)
	// Delete removes a record and returns it as it was before deletion.
	Delete(ctx context.Context, id string) (*protocol.Entity, error)
	List(ctx context.Context, filter ListFilter) ([]protocol.Entity, error)
	Search(ctx context.Context, query string, limit int) ([]protocol.Entity, error)
}

// Metrics records and reads KPI values.
type Metrics interface {
	RecordMetric(ctx context.Context, m *protocol.Metric) (*protocol.Metric, error)
	// LatestMetrics returns the most recent value per key. An empty
	// category covers all categories.
	LatestMetrics(ctx context.Context, category protocol.MetricCategory) (map[string]float64, error)
	// MetricHistory returns values for one key, oldest first.
	MetricHistory(ctx context.Context, key string, limit int) ([]protocol.Metric, error)
}

// Activities is the mutation audit trail.
type Activities interface {
	LogActivity(ctx context.Context, a *protocol.Activity) error
	Activities(ctx context.Context, entityID string, limit int) ([]protocol.Activity, error)
}

// Store is the full adapter surface.
type Store interface {
	Entities
	Metrics
	Activities

	LogCommand(ctx context.Context, rec CommandRecord) error
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	Close() error
}

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	Type     protocol.EntityType
	Status   protocol.Status
	Category string
	Owner    string
	Source   string
	// OpenOnly drops completed and archived entities.
	OpenOnly bool
	// DueBefore keeps entities with a due date at or before the instant.
	DueBefore *time.Time
	// ByDueDate orders by due date, earliest first, instead of most
	// recently updated first.
	ByDueDate bool
	Limit     int
	Offset    int
}

// CommandRecord is one direct command as received and answered.
type CommandRecord struct {
	ID        string
	Input     string
	Intent    protocol.ParsedIntent
	Message   string
	CreatedAt time.Time
}

// DashboardStats is the summary shown on the console landing page.
type DashboardStats struct {
	Counts         map[protocol.EntityType]int `json:"counts"`
	ActiveProjects int                         `json:"active_projects"`
	OpenTasks      int                         `json:"open_tasks"`
	OverdueTasks   int                         `json:"overdue_tasks"`
	Finance        map[string]float64          `json:"finance"`
	RecentActivity []protocol.Activity         `json:"recent_activity"`
}
