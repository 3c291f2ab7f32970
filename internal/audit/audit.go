// Package audit publishes pipeline events: completed direct commands, chat
// exchanges and queued integration syncs.
//
// Publishing is fire-and-forget from the pipeline's point of view. Callers
// log a publish error and carry on.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind names an event type.
type Kind string

const (
	KindCommand      Kind = "command"
	KindChatExchange Kind = "chat_exchange"
	KindSync         Kind = "integration_sync"
)

// Event is one published record.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(kind Kind, payload map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// ============================================================
// Log publisher
// ============================================================

// LogPublisher writes events to the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e *Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	log.Info().
		Str("event_id", e.ID).
		Str("kind", string(e.Kind)).
		RawJSON("payload", payload).
		Msg("audit event")
	return nil
}

func (LogPublisher) Close() error { return nil }

// ============================================================
// Fan-out
// ============================================================

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e *Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, *Event) error { return nil }
func (Discard) Close() error                          { return nil }

// Recorder keeps events in memory. It is not safe for concurrent use.
type Recorder struct {
	Events []*Event
}

func (r *Recorder) Publish(_ context.Context, e *Event) error {
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Of returns the recorded events of kind.
func (r *Recorder) Of(kind Kind) []*Event {
	var out []*Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
