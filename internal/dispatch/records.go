package dispatch

import (
	"context"
	"fmt"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

const createHint = `Could not determine what to create. Try: "Create project: My Project Name"`

func (d *Dispatcher) create(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	title := intent.Data["title"]
	if intent.EntityType == "" || title == "" {
		return &protocol.CommandResult{Message: createHint}, outcomeFailed
	}

	args := map[string]any{"type": string(intent.EntityType), "title": title}
	if c := intent.Data["category"]; c != "" {
		args["category"] = c
	}

	res := d.call(ctx, "create_entity", args)
	if !res.Success {
		return failure(res, "creating", string(intent.EntityType))
	}
	e := res.Payload.(*protocol.Entity)
	return &protocol.CommandResult{
		Action:   "created",
		Entities: []protocol.Entity{*e},
		Message:  fmt.Sprintf(`Created %s: "%s"`, intent.EntityType, e.Title),
	}, outcomeOK
}

func (d *Dispatcher) list(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	args := map[string]any{}
	if intent.EntityType != "" {
		args["type"] = string(intent.EntityType)
	}
	for _, k := range []string{"status", "owner", "source", "category"} {
		if v := intent.Filters[k]; v != "" {
			args[k] = v
		}
	}

	noun := "items"
	if intent.EntityType != "" {
		noun = string(intent.EntityType)
	}

	res := d.call(ctx, "list_entities", args)
	if !res.Success {
		return failure(res, "loading", noun)
	}
	entities := res.Payload.(map[string]any)["entities"].([]protocol.Entity)
	return &protocol.CommandResult{
		Entities: entities,
		Message:  fmt.Sprintf("Found %d %s", len(entities), noun),
		Visualization: &protocol.VisualizationSpec{
			Type:  protocol.VisualTable,
			Title: noun,
			Data:  entities,
		},
	}, outcomeOK
}

func (d *Dispatcher) search(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	if intent.Query == "" {
		return &protocol.CommandResult{Message: "Please provide a search query"}, outcomeFailed
	}

	res := d.call(ctx, "search_entities", map[string]any{"query": intent.Query})
	if !res.Success {
		return failure(res, "searching", "records")
	}
	entities := res.Payload.(map[string]any)["entities"].([]protocol.Entity)
	return &protocol.CommandResult{
		Entities: entities,
		Message:  fmt.Sprintf(`Found %d results for "%s"`, len(entities), intent.Query),
	}, outcomeOK
}

// updateFields are the intent data keys forwarded to update_entity.
var updateFields = []string{"status", "priority", "owner", "category", "title"}

func (d *Dispatcher) update(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	id := intent.Filters["id"]
	if id == "" {
		return &protocol.CommandResult{
			Message: `Could not determine what to update. Try: "Mark task <id> as done"`,
		}, outcomeFailed
	}

	args := map[string]any{"id": id}
	for _, k := range updateFields {
		if v := intent.Data[k]; v != "" {
			args[k] = v
		}
	}
	if len(args) == 1 {
		return &protocol.CommandResult{
			Message: fmt.Sprintf(`Nothing to update for %s. Try: "Set %s priority to high"`, id, id),
		}, outcomeFailed
	}

	res := d.call(ctx, "update_entity", args)
	if !res.Success {
		return failure(res, "updating", nounOf(intent.EntityType))
	}
	e := res.Payload.(*protocol.Entity)
	return &protocol.CommandResult{
		Action:   "updated",
		Entities: []protocol.Entity{*e},
		Message:  fmt.Sprintf(`Updated %s: "%s"`, e.Type, e.Title),
	}, outcomeOK
}

func (d *Dispatcher) delete(ctx context.Context, intent protocol.ParsedIntent) (*protocol.CommandResult, string) {
	id := intent.Filters["id"]
	if id == "" {
		return &protocol.CommandResult{
			Message: `Could not determine what to delete. Try: "Delete task <id>"`,
		}, outcomeFailed
	}

	res := d.call(ctx, "delete_entity", map[string]any{"id": id})
	if !res.Success {
		return failure(res, "deleting", nounOf(intent.EntityType))
	}
	e := res.Payload.(*protocol.Entity)
	return &protocol.CommandResult{
		Action:   "deleted",
		Entities: []protocol.Entity{*e},
		Message:  fmt.Sprintf(`Deleted %s: "%s"`, e.Type, e.Title),
	}, outcomeOK
}

func nounOf(t protocol.EntityType) string {
	if t == "" {
		return "record"
	}
	return string(t)
}
