package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateAwaitingModel, true},
		{StateIdle, StateError, true},
		{StateIdle, StateStreaming, false},
		{StateAwaitingModel, StateExecutingTools, true},
		{StateAwaitingModel, StateStreaming, true},
		{StateAwaitingModel, StateAwaitingFollowup, false},
		{StateExecutingTools, StateAwaitingFollowup, true},
		{StateExecutingTools, StateStreaming, false},
		{StateAwaitingFollowup, StateStreaming, true},
		{StateAwaitingFollowup, StateExecutingTools, false},
		{StateError, StateStreaming, true},
		{StateError, StateAwaitingModel, false},
		{StateStreaming, StateDone, true},
		{StateDone, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestExchangeRejectsInvalidTransition(t *testing.T) {
	x := newExchange("x", "hi")
	require.NoError(t, x.transition(StateAwaitingModel))
	assert.Error(t, x.transition(StateDone))
	assert.Equal(t, StateAwaitingModel, x.State())
}

func TestChunks(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"hello", []string{"hello"}},
		{"hello world", []string{"hello ", "world"}},
		{"  lead space", []string{"  lead ", "space"}},
		{"a\n\nb  c ", []string{"a\n\n", "b  ", "c "}},
		{"¿qué tal? bien", []string{"¿qué ", "tal? ", "bien"}},
	}
	for _, tt := range tests {
		got := Chunks(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.in, strings.Join(got, ""))
	}
}
