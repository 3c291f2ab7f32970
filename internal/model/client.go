package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/stats"
)

// Config configures the OpenAI-compatible chat completions client.
type Config struct {
	APIKey      string
	BaseURL     string // e.g. https://openrouter.ai/api/v1
	Model       string
	Timeout     time.Duration // per call, covering every retry
	MaxAttempts int
	MaxTokens   int
	Temperature float64
}

// Client implements Model against any OpenAI-compatible /chat/completions
// endpoint, supporting function calling.
type Client struct {
	cfg            Config
	http           *http.Client
	circuitBreaker *errors.CircuitBreaker
	retryPolicy    *errors.Policy
	stats          *stats.Collector
}

var _ Model = (*Client)(nil)

// NewClient creates a new client. stats may be nil.
func NewClient(cfg Config, collector *stats.Collector) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	policy := errors.NoRetry()
	if cfg.MaxAttempts > 1 {
		policy = errors.DefaultPolicy()
		policy.MaxAttempts = cfg.MaxAttempts
		policy.RetryIf = func(err error) bool {
			category := errors.GetCategory(err)
			return category == errors.CategoryTemporary || category == errors.CategoryRateLimit
		}
	}

	return &Client{
		cfg:            cfg,
		http:           &http.Client{},
		circuitBreaker: errors.NewCircuitBreaker("reasoning", nil),
		retryPolicy:    policy,
		stats:          collector,
	}
}

// Generate submits req. The call is bounded by the configured timeout;
// a deadline hit is reported as CodeModelTimeout.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !c.IsAvailable() {
		return nil, errors.NewBuilder(errors.CodeExternalServiceUnavailable, "reasoning service not configured").
			Permanent().
			WithSuggestion("Set OPSCONSOLE_REASONING_API_KEY or reasoning.api_key").
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := errors.ExecuteWithResult(c.circuitBreaker, func() (*Response, error) {
		return errors.DoWithResult(ctx, c.retryPolicy, func() (*Response, error) {
			return c.do(ctx, req)
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.NewBuilder(errors.CodeModelTimeout, fmt.Sprintf("reasoning service timed out after %s", c.cfg.Timeout)).
				Temporary().
				Wrap(err).
				Build()
		}
		outcome := errors.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
		c.stats.RecordModelCall(outcome, 0, elapsed)
		log.Warn().Err(err).Dur("elapsed", elapsed).Str("model", c.cfg.Model).Msg("reasoning call failed")
		return nil, err
	}

	resp.DurationMs = elapsed.Milliseconds()
	c.stats.RecordModelCall("ok", resp.TokensUsed, elapsed)
	log.Debug().
		Str("model", resp.Model).
		Int("tokens", resp.TokensUsed).
		Int("tool_calls", len(resp.ToolCalls)).
		Dur("elapsed", elapsed).
		Msg("reasoning call completed")
	return resp, nil
}

// do performs one HTTP round trip.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return nil, errors.Malformed(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeExternalServiceUnavailable, "failed to create HTTP request", errors.CategoryPermanent)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	r, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Unavailable(err, "network request failed")
	}
	defer r.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		return nil, errors.Unavailable(err, "failed to read response body")
	}

	if err := statusError(r, respBody); err != nil {
		return nil, err
	}
	return parseResponse(respBody)
}

func (c *Client) buildBody(req *Request) map[string]any {
	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": string(RoleSystem), "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": string(m.Role), "content": m.Content})
	}

	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	} else if c.cfg.Temperature > 0 {
		body["temperature"] = c.cfg.Temperature
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        tool.Name,
					"description": tool.Description,
					"parameters":  tool.Parameters,
				},
			})
		}
		body["tools"] = tools
	}

	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(r *http.Response, body []byte) error {
	switch {
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return nil
	case r.StatusCode == http.StatusTooManyRequests:
		retryAfter := 5 * time.Second
		if secs, err := strconv.Atoi(r.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return errors.RateLimit("reasoning service rate limited", retryAfter)
	case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
		return errors.NewBuilder(errors.CodeExternalServiceUnavailable, "reasoning service rejected the API key").
			Permanent().
			WithSuggestion("Check the reasoning API key").
			Build()
	case r.StatusCode >= 500:
		return errors.New(errors.CodeExternalServiceUnavailable,
			fmt.Sprintf("reasoning service unavailable: %s", r.Status), errors.CategoryTemporary)
	default:
		return errors.NewBuilder(errors.CodeExternalServiceUnavailable, fmt.Sprintf("reasoning service error: %s", r.Status)).
			Permanent().
			WithContext("response", truncate(string(body), 512)).
			Build()
	}
}

// parseResponse decodes an OpenAI-compatible completion.
func parseResponse(body []byte) (*Response, error) {
	var completion chatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, errors.Malformed(err, "failed to parse completion")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.Malformed(nil, "completion contained no choices")
	}

	choice := completion.Choices[0]
	resp := &Response{
		Text:         choice.Message.Content,
		TokensUsed:   completion.Usage.TotalTokens,
		Model:        completion.Model,
		FinishReason: choice.FinishReason,
	}

	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, errors.Malformed(err, fmt.Sprintf("tool call %q has unparsable arguments", tc.Function.Name))
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return resp, nil
}

// IsAvailable checks if the client is configured.
func (c *Client) IsAvailable() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != "" && c.cfg.BaseURL != ""
}

// Name returns the model name.
func (c *Client) Name() string {
	return c.cfg.Model
}

// Status reports availability and breaker state.
func (c *Client) Status() *Status {
	return &Status{
		Name:      c.Name(),
		Available: c.IsAvailable(),
		Circuit:   c.circuitBreaker.State().String(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ============================================================
// OpenAI-compatible wire types
// ============================================================

type chatCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}
