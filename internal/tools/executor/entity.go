package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/logging"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// activityTimeout bounds the activity write once it is detached from the
// caller's context.
const activityTimeout = 5 * time.Second

// logActivity records a mutation. The mutation has already happened, so the
// write outlives a cancelled caller, and a failure is logged without failing
// the tool.
func logActivity(ctx context.Context, acts store.Activities, entityID, action string, details map[string]any) {
	wctx, cancel := logging.DetachContextWithTimeout(ctx, activityTimeout)
	defer cancel()

	err := acts.LogActivity(wctx, &protocol.Activity{
		EntityID: entityID,
		Action:   action,
		Channel:  ChannelFrom(ctx),
		Details:  details,
	})
	if err != nil {
		log.Warn().Err(err).Str("entity_id", entityID).Str("action", action).Msg("failed to log activity")
	}
}

// CreateEntity creates a record.
type CreateEntity struct {
	Store store.Store
}

func (t *CreateEntity) Name() string { return "create_entity" }

func (t *CreateEntity) Description() string { return "Create a record in the shared store" }

func (t *CreateEntity) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	e := &protocol.Entity{
		Type:        protocol.EntityType(stringArg(input, "type")),
		Title:       stringArg(input, "title"),
		Description: stringArg(input, "description"),
		Status:      protocol.Status(stringArg(input, "status")),
		Priority:    protocol.Priority(stringArg(input, "priority")),
		Category:    stringArg(input, "category"),
		Owner:       stringArg(input, "owner"),
		ParentID:    stringArg(input, "parent_id"),
		Source:      stringArg(input, "source"),
		SourceID:    stringArg(input, "source_id"),
		Tags:        stringsArg(input, "tags"),
		Metadata:    mapArg(input, "metadata"),
	}
	if !e.Type.Valid() {
		return TimedResult(NewErrorResult(apperrors.Validation(fmt.Sprintf("unknown entity type %q", e.Type))), start), nil
	}
	if e.Title == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("title is required")), start), nil
	}
	due, err := timeArg(input, "due_date")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	e.DueDate = due

	created, err := t.Store.Create(ctx, e)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	logActivity(ctx, t.Store, created.ID, "created", map[string]any{
		"type":  string(created.Type),
		"title": created.Title,
	})
	return TimedResult(NewSuccessResult(created), start), nil
}

// UpdateEntity applies a partial update.
type UpdateEntity struct {
	Store store.Store
}

func (t *UpdateEntity) Name() string { return "update_entity" }

func (t *UpdateEntity) Description() string { return "Update fields of an existing record" }

func (t *UpdateEntity) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id := stringArg(input, "id")
	if id == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("id is required")), start), nil
	}

	patch, delta, err := buildPatch(input)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	if patch.Empty() {
		return TimedResult(NewErrorResult(apperrors.Validation("no fields to update")), start), nil
	}

	updated, err := t.Store.Update(ctx, id, patch)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	logActivity(ctx, t.Store, updated.ID, "updated", delta)
	return TimedResult(NewSuccessResult(updated), start), nil
}

// buildPatch converts update arguments into a patch and the delta logged
// with the activity.
func buildPatch(input map[string]any) (protocol.EntityPatch, map[string]any, error) {
	var patch protocol.EntityPatch
	delta := map[string]any{}

	str := func(key string) *string {
		if v, ok := input[key]; !ok || v == nil {
			return nil
		}
		v := stringArg(input, key)
		delta[key] = v
		return &v
	}

	patch.Title = str("title")
	patch.Description = str("description")
	patch.Category = str("category")
	patch.Owner = str("owner")
	patch.ParentID = str("parent_id")

	if s := str("status"); s != nil {
		status := protocol.Status(*s)
		if !status.Valid() {
			return patch, nil, apperrors.Validation(fmt.Sprintf("unknown status %q", *s))
		}
		patch.Status = &status
	}
	if p := str("priority"); p != nil {
		priority := protocol.Priority(*p)
		if !priority.Valid() {
			return patch, nil, apperrors.Validation(fmt.Sprintf("unknown priority %q", *p))
		}
		patch.Priority = &priority
	}
	if patch.Title != nil && *patch.Title == "" {
		return patch, nil, apperrors.Validation("title cannot be empty")
	}

	if _, ok := input["tags"]; ok {
		patch.Tags = stringsArg(input, "tags")
		delta["tags"] = patch.Tags
	}
	if m := mapArg(input, "metadata"); len(m) > 0 {
		patch.Metadata = m
		delta["metadata"] = m
	}
	if _, ok := input["due_date"]; ok {
		due, err := timeArg(input, "due_date")
		if err != nil {
			return patch, nil, err
		}
		patch.DueDate = due
		delta["due_date"] = stringArg(input, "due_date")
	}
	return patch, delta, nil
}

// DeleteEntity removes a record.
type DeleteEntity struct {
	Store store.Store
}

func (t *DeleteEntity) Name() string { return "delete_entity" }

func (t *DeleteEntity) Description() string { return "Delete a record" }

func (t *DeleteEntity) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id := stringArg(input, "id")
	if id == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("id is required")), start), nil
	}

	deleted, err := t.Store.Delete(ctx, id)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	logActivity(ctx, t.Store, deleted.ID, "deleted", map[string]any{
		"type":  string(deleted.Type),
		"title": deleted.Title,
	})
	return TimedResult(NewSuccessResult(deleted), start), nil
}

// GetEntity fetches one record.
type GetEntity struct {
	Store store.Entities
}

func (t *GetEntity) Name() string { return "get_entity" }

func (t *GetEntity) Description() string { return "Fetch one record by id" }

func (t *GetEntity) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id := stringArg(input, "id")
	if id == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("id is required")), start), nil
	}

	e, err := t.Store.Get(ctx, id)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	return TimedResult(NewSuccessResult(e), start), nil
}

// ListEntities lists records matching filters.
type ListEntities struct {
	Store store.Entities
}

func (t *ListEntities) Name() string { return "list_entities" }

func (t *ListEntities) Description() string { return "List records" }

func (t *ListEntities) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	entities, err := t.Store.List(ctx, store.ListFilter{
		Type:     protocol.EntityType(stringArg(input, "type")),
		Status:   protocol.Status(stringArg(input, "status")),
		Owner:    stringArg(input, "owner"),
		Category: stringArg(input, "category"),
		Source:   stringArg(input, "source"),
		Limit:    intArg(input, "limit", store.DefaultListLimit),
	})
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"entities": entities,
		"count":    len(entities),
	}), start), nil
}

// SearchEntities runs a text search.
type SearchEntities struct {
	Store store.Entities
}

func (t *SearchEntities) Name() string { return "search_entities" }

func (t *SearchEntities) Description() string { return "Search records" }

func (t *SearchEntities) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	query := stringArg(input, "query")
	if query == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("query is required")), start), nil
	}

	entities, err := t.Store.Search(ctx, query, intArg(input, "limit", store.DefaultSearchLimit))
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"query":    query,
		"entities": entities,
		"count":    len(entities),
	}), start), nil
}
