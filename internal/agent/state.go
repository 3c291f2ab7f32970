package agent

import (
	"fmt"
	"slices"
	"time"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// State is a step of a chat exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateExecutingTools
	StateAwaitingFollowup
	StateStreaming
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateAwaitingFollowup:
		return "awaiting_followup"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Error is reachable from every state that waits on the reasoning service
// or the tools. Error streams the fallback text, so it leads to Streaming.
var transitions = map[State][]State{
	StateIdle:             {StateAwaitingModel, StateError},
	StateAwaitingModel:    {StateExecutingTools, StateStreaming, StateError},
	StateExecutingTools:   {StateAwaitingFollowup, StateError},
	StateAwaitingFollowup: {StateStreaming, StateError},
	StateError:            {StateStreaming},
	StateStreaming:        {StateDone},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Exchange is the record of one chat request: the states it went through,
// the tools it ran and the text it produced.
type Exchange struct {
	ID      string                `json:"id"`
	Input   string                `json:"input"`
	Trail   []State               `json:"-"`
	Calls   []protocol.ToolCall   `json:"tool_calls,omitempty"`
	Results []protocol.ToolResult `json:"tool_results,omitempty"`
	Text    string                `json:"text"`

	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	// Cancelled is set when the caller went away before the stream ended.
	Cancelled  bool  `json:"cancelled,omitempty"`
	Chunks     int   `json:"chunks"`
	TokensUsed int   `json:"tokens_used"`
	Err        error `json:"-"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

func newExchange(id, input string) *Exchange {
	return &Exchange{ID: id, Input: input, Trail: []State{StateIdle}, Started: time.Now()}
}

// State returns the current state.
func (x *Exchange) State() State {
	return x.Trail[len(x.Trail)-1]
}

// States returns the trail as names.
func (x *Exchange) States() []string {
	out := make([]string, len(x.Trail))
	for i, s := range x.Trail {
		out[i] = s.String()
	}
	return out
}

// ToolNames returns the names of the tools run, in order.
func (x *Exchange) ToolNames() []string {
	out := make([]string, len(x.Calls))
	for i, c := range x.Calls {
		out[i] = c.Name
	}
	return out
}

func (x *Exchange) transition(to State) error {
	from := x.State()
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	x.Trail = append(x.Trail, to)
	return nil
}
