package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/opsconsole/internal/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Model:       "test-model",
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
		MaxTokens:   256,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, nil)
}

func TestGenerateText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}, nil)

	resp, err := c.Generate(context.Background(), &Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 12, resp.TokensUsed)
	assert.Empty(t, resp.ToolCalls)

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.EqualValues(t, 256, got["max_tokens"])
	assert.NotContains(t, got, "tools")
}

func TestGenerateToolCalls(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"c1","type":"function","function":{"name":"list_entities","arguments":"{\"type\":\"task\"}"}},
			{"id":"c2","type":"function","function":{"name":"get_metrics","arguments":""}}
		]},"finish_reason":"tool_calls"}]}`))
	}, nil)

	resp, err := c.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "tasks?"}},
		Tools:    []Tool{{Name: "list_entities", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, "task", resp.ToolCalls[0].Arguments["type"])
	assert.Equal(t, "get_metrics", resp.ToolCalls[1].Name)
	assert.Empty(t, resp.ToolCalls[1].Arguments)

	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].(map[string]any)["type"])
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, errors.CodeModelRateLimit},
		{"unauthorized", http.StatusUnauthorized, `{}`, errors.CodeExternalServiceUnavailable},
		{"server error", http.StatusBadGateway, `{}`, errors.CodeExternalServiceUnavailable},
		{"garbage body", http.StatusOK, `not json`, errors.CodeMalformedModelOutput},
		{"no choices", http.StatusOK, `{"choices":[]}`, errors.CodeMalformedModelOutput},
		{"bad arguments", http.StatusOK, `{"choices":[{"message":{"tool_calls":[{"id":"x","type":"function","function":{"name":"t","arguments":"{oops"}}]}}]}`, errors.CodeMalformedModelOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)

			_, err := c.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}, func(cfg *Config) { cfg.MaxAttempts = 2 })

	resp, err := c.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGenerateSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := c.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExternalServiceUnavailable), "got %v", err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGenerateTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	_, err := c.Generate(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeModelTimeout, errors.CodeOf(err))
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost"}, nil)
	assert.False(t, c.IsAvailable())

	_, err := c.Generate(context.Background(), &Request{})
	assert.Equal(t, errors.CodeExternalServiceUnavailable, errors.CodeOf(err))

	status := c.Status()
	assert.False(t, status.Available)
	assert.Equal(t, "closed", status.Circuit)
}
