package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Persistence(err, "create data dir")
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, apperrors.Persistence(err, "open database")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Persistence(err, "apply schema")
	}
	if err := ensureSchemaVersion(db, schemaVersion, "Initial console schema"); err != nil {
		db.Close()
		return nil, apperrors.Persistence(err, "record schema version")
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// openDB opens a single SQLite database with WAL and a busy timeout so
// concurrent requests queue on the write lock instead of failing.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ============================================================
// ENTITIES
// ============================================================

const entityColumns = `id, type, title, description, status, priority, category, tags_json,
	metadata_json, parent_id, owner, source, source_id, due_date, created_at, updated_at`

// Create inserts e, filling id, defaults and timestamps.
func (s *SQLite) Create(ctx context.Context, e *protocol.Entity) (*protocol.Entity, error) {
	created := *e
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Status == "" {
		created.Status = protocol.StatusActive
	}
	if created.Priority == "" {
		created.Priority = protocol.PriorityMedium
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	created.CreatedAt = now
	created.UpdatedAt = now

	tags, metadata, err := encodeExtras(created.Tags, created.Metadata)
	if err != nil {
		return nil, apperrors.Persistence(err, "encode entity")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Type, created.Title, nullString(created.Description),
		created.Status, created.Priority, nullString(created.Category), tags, metadata,
		nullString(created.ParentID), nullString(created.Owner), nullString(created.Source),
		nullString(created.SourceID), nullMillis(created.DueDate),
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, apperrors.Persistence(err, "insert entity")
	}
	return &created, nil
}

// Get returns the entity with id.
func (s *SQLite) Get(ctx context.Context, id string) (*protocol.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Entity", id)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "get entity")
	}
	return e, nil
}

// Update applies the non-nil fields of patch. Metadata keys are merged.
func (s *SQLite) Update(ctx context.Context, id string, patch protocol.EntityPatch) (*protocol.Entity, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	applyPatch(e, patch)
	e.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	tags, metadata, err := encodeExtras(e.Tags, e.Metadata)
	if err != nil {
		return nil, apperrors.Persistence(err, "encode entity")
	}

	res, err := s.db.ExecContext(ctx, `UPDATE entities SET
		title = ?, description = ?, status = ?, priority = ?, category = ?, tags_json = ?,
		metadata_json = ?, parent_id = ?, owner = ?, due_date = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, nullString(e.Description), e.Status, e.Priority, nullString(e.Category),
		tags, metadata, nullString(e.ParentID), nullString(e.Owner), nullMillis(e.DueDate),
		e.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return nil, apperrors.Persistence(err, "update entity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("Entity", id)
	}
	return e, nil
}

// Delete removes the entity with id and returns its last state.
func (s *SQLite) Delete(ctx context.Context, id string) (*protocol.Entity, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return nil, apperrors.Persistence(err, "delete entity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("Entity", id)
	}
	return e, nil
}

// List returns entities matching filter, most recently updated first.
func (s *SQLite) List(ctx context.Context, filter ListFilter) ([]protocol.Entity, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if filter.Type != "" {
		add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Category != "" {
		add("category = ?", filter.Category)
	}
	if filter.Owner != "" {
		add("owner = ?", filter.Owner)
	}
	if filter.Source != "" {
		add("source = ?", filter.Source)
	}
	if filter.OpenOnly {
		where = append(where, "status NOT IN ('completed', 'archived')")
	}
	if filter.DueBefore != nil {
		add("due_date IS NOT NULL AND due_date <= ?", filter.DueBefore.UnixMilli())
	}

	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if filter.ByDueDate {
		query += " ORDER BY due_date IS NULL, due_date ASC, rowid ASC"
	} else {
		query += " ORDER BY updated_at DESC, rowid DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	return s.queryEntities(ctx, "list entities", query, args...)
}

// Search matches query against title, description and tags.
func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]protocol.Entity, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryEntities(ctx, "search entities", `SELECT `+entityColumns+` FROM entities
		WHERE title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR tags_json LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, rowid DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
}

func (s *SQLite) queryEntities(ctx context.Context, op, query string, args ...any) ([]protocol.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Persistence(err, op)
	}
	defer rows.Close()

	entities := make([]protocol.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, apperrors.Persistence(err, op)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, op)
	}
	return entities, nil
}

// ============================================================
// METRICS
// ============================================================

// RecordMetric stores one KPI value.
func (s *SQLite) RecordMetric(ctx context.Context, m *protocol.Metric) (*protocol.Metric, error) {
	recorded := *m
	if recorded.ID == "" {
		recorded.ID = uuid.NewString()
	}
	if recorded.RecordedAt.IsZero() {
		recorded.RecordedAt = s.now().UTC()
	}
	recorded.RecordedAt = recorded.RecordedAt.Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx, `INSERT INTO metrics (id, category, key, value, unit, period, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		recorded.ID, recorded.Category, recorded.Key, recorded.Value,
		nullString(recorded.Unit), nullString(recorded.Period), recorded.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return nil, apperrors.Persistence(err, "insert metric")
	}
	return &recorded, nil
}

// LatestMetrics returns the newest value for every key in category.
func (s *SQLite) LatestMetrics(ctx context.Context, category protocol.MetricCategory) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metrics
		WHERE ? = '' OR category = ?
		ORDER BY recorded_at ASC, rowid ASC`, category, category)
	if err != nil {
		return nil, apperrors.Persistence(err, "latest metrics")
	}
	defer rows.Close()

	latest := make(map[string]float64)
	for rows.Next() {
		var (
			key   string
			value float64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, apperrors.Persistence(err, "latest metrics")
		}
		latest[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "latest metrics")
	}
	return latest, nil
}

// MetricHistory returns up to limit most recent values for key, oldest first.
func (s *SQLite) MetricHistory(ctx context.Context, key string, limit int) ([]protocol.Metric, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, key, value, unit, period, recorded_at FROM (
		SELECT rowid AS rid, * FROM metrics WHERE key = ? ORDER BY recorded_at DESC, rowid DESC LIMIT ?
	) ORDER BY recorded_at ASC, rid ASC`, key, limit)
	if err != nil {
		return nil, apperrors.Persistence(err, "metric history")
	}
	defer rows.Close()

	history := make([]protocol.Metric, 0)
	for rows.Next() {
		var (
			m            protocol.Metric
			unit, period sql.NullString
			recordedAt   int64
		)
		if err := rows.Scan(&m.ID, &m.Category, &m.Key, &m.Value, &unit, &period, &recordedAt); err != nil {
			return nil, apperrors.Persistence(err, "metric history")
		}
		m.Unit = unit.String
		m.Period = period.String
		m.RecordedAt = time.UnixMilli(recordedAt).UTC()
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "metric history")
	}
	return history, nil
}

// ============================================================
// AUDIT
// ============================================================

// LogActivity appends an activity entry.
func (s *SQLite) LogActivity(ctx context.Context, a *protocol.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	details, err := encodeJSON(a.Details)
	if err != nil {
		return apperrors.Persistence(err, "encode activity")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO activities (id, entity_id, action, actor, channel, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullString(a.EntityID), a.Action, nullString(a.Actor), a.Channel, details,
		a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return apperrors.Persistence(err, "insert activity")
	}
	return nil
}

// Activities returns the newest activities, optionally for one entity.
func (s *SQLite) Activities(ctx context.Context, entityID string, limit int) ([]protocol.Activity, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, entity_id, action, actor, channel, details_json, created_at
		FROM activities WHERE ? = '' OR entity_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, entityID, entityID, limit)
	if err != nil {
		return nil, apperrors.Persistence(err, "list activities")
	}
	defer rows.Close()

	activities := make([]protocol.Activity, 0)
	for rows.Next() {
		var (
			a                      protocol.Activity
			entity, actor, details sql.NullString
			createdAt              int64
		)
		if err := rows.Scan(&a.ID, &entity, &a.Action, &actor, &a.Channel, &details, &createdAt); err != nil {
			return nil, apperrors.Persistence(err, "list activities")
		}
		a.EntityID = entity.String
		a.Actor = actor.String
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &a.Details); err != nil {
				return nil, apperrors.Persistence(err, "decode activity")
			}
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "list activities")
	}
	return activities, nil
}

// LogCommand records a direct command and its answer.
func (s *SQLite) LogCommand(ctx context.Context, rec CommandRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	intent, err := json.Marshal(rec.Intent)
	if err != nil {
		return apperrors.Persistence(err, "encode command")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO commands (id, input, intent_json, message, created_at)
		VALUES (?, ?, ?, ?, ?)`, rec.ID, rec.Input, string(intent), rec.Message, rec.CreatedAt.UnixMilli())
	if err != nil {
		return apperrors.Persistence(err, "insert command")
	}
	return nil
}

// DashboardStats aggregates counts, finance metrics and recent activity.
func (s *SQLite) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{Counts: make(map[protocol.EntityType]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM entities GROUP BY type`)
	if err != nil {
		return nil, apperrors.Persistence(err, "count entities")
	}
	for rows.Next() {
		var (
			t protocol.EntityType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return nil, apperrors.Persistence(err, "count entities")
		}
		stats.Counts[t] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "count entities")
	}

	nowMs := s.now().UnixMilli()
	err = s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN type = 'project' AND status = 'active' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN type = 'task' AND status NOT IN ('completed', 'archived') THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN type = 'task' AND status NOT IN ('completed', 'archived')
			AND due_date IS NOT NULL AND due_date < ? THEN 1 ELSE 0 END), 0)
		FROM entities`, nowMs).Scan(&stats.ActiveProjects, &stats.OpenTasks, &stats.OverdueTasks)
	if err != nil {
		return nil, apperrors.Persistence(err, "dashboard counters")
	}

	if stats.Finance, err = s.LatestMetrics(ctx, protocol.MetricFinance); err != nil {
		return nil, err
	}
	if stats.RecentActivity, err = s.Activities(ctx, "", 10); err != nil {
		return nil, err
	}
	return stats, nil
}

// ============================================================
// Helpers
// ============================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*protocol.Entity, error) {
	var (
		e                                     protocol.Entity
		description, category, tags, metadata sql.NullString
		parentID, owner, source, sourceID     sql.NullString
		dueDate                               sql.NullInt64
		createdAt, updatedAt                  int64
	)
	err := row.Scan(&e.ID, &e.Type, &e.Title, &description, &e.Status, &e.Priority, &category,
		&tags, &metadata, &parentID, &owner, &source, &sourceID, &dueDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Description = description.String
	e.Category = category.String
	e.ParentID = parentID.String
	e.Owner = owner.String
	e.Source = source.String
	e.SourceID = sourceID.String
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if dueDate.Valid {
		due := time.UnixMilli(dueDate.Int64).UTC()
		e.DueDate = &due
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}

func applyPatch(e *protocol.Entity, p protocol.EntityPatch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Priority != nil {
		e.Priority = *p.Priority
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Tags != nil {
		e.Tags = p.Tags
	}
	if p.ParentID != nil {
		e.ParentID = *p.ParentID
	}
	if p.Owner != nil {
		e.Owner = *p.Owner
	}
	if p.DueDate != nil {
		due := *p.DueDate
		e.DueDate = &due
	}
	if len(p.Metadata) > 0 {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			e.Metadata[k] = v
		}
	}
}

func encodeExtras(tags []string, metadata map[string]any) (sql.NullString, sql.NullString, error) {
	t, err := encodeJSON(tags)
	if err != nil {
		return t, sql.NullString{}, err
	}
	m, err := encodeJSON(metadata)
	return t, m, err
}

func encodeJSON[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if s := string(data); s != "null" && s != "{}" && s != "[]" {
		return sql.NullString{String: s, Valid: true}, nil
	}
	return sql.NullString{}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
