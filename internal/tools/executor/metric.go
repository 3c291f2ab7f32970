package executor

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// CreateMetric records a KPI value.
type CreateMetric struct {
	Store store.Metrics
}

func (t *CreateMetric) Name() string { return "create_metric" }

func (t *CreateMetric) Description() string { return "Record a KPI value" }

func (t *CreateMetric) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	category := protocol.MetricCategory(stringArg(input, "category"))
	if !category.Valid() {
		return TimedResult(NewErrorResult(apperrors.Validation(fmt.Sprintf("unknown metric category %q", category))), start), nil
	}
	key := stringArg(input, "key")
	if key == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("key is required")), start), nil
	}
	value, ok := floatArg(input, "value")
	if !ok {
		return TimedResult(NewErrorResult(apperrors.Validation("value must be a number")), start), nil
	}

	m, err := t.Store.RecordMetric(ctx, &protocol.Metric{
		Category: category,
		Key:      key,
		Value:    value,
		Unit:     stringArg(input, "unit"),
		Period:   stringArg(input, "period"),
	})
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	return TimedResult(NewSuccessResult(m), start), nil
}

// GetMetrics returns the latest value per KPI.
type GetMetrics struct {
	Store store.Metrics
}

func (t *GetMetrics) Name() string { return "get_metrics" }

func (t *GetMetrics) Description() string { return "Latest KPI values" }

func (t *GetMetrics) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	category := protocol.MetricCategory(stringArg(input, "category"))
	if category != "" && !category.Valid() {
		return TimedResult(NewErrorResult(apperrors.Validation(fmt.Sprintf("unknown metric category %q", category))), start), nil
	}

	metrics, err := t.Store.LatestMetrics(ctx, category)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	return TimedResult(NewSuccessResult(map[string]any{
		"category": string(category),
		"metrics":  metrics,
	}), start), nil
}

// MaxHistory caps the points one history call returns.
const MaxHistory = 120

// MetricHistory returns recorded values for one KPI key, oldest first.
type MetricHistory struct {
	Store store.Metrics
}

func (t *MetricHistory) Name() string { return "get_metric_history" }

func (t *MetricHistory) Description() string { return "KPI values over time" }

func (t *MetricHistory) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	key := stringArg(input, "key")
	if key == "" {
		return TimedResult(NewErrorResult(apperrors.Validation("key is required")), start), nil
	}
	limit := min(max(intArg(input, "limit", 12), 1), MaxHistory)

	history, err := t.Store.MetricHistory(ctx, key, limit)
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	if history == nil {
		history = []protocol.Metric{}
	}
	return TimedResult(NewSuccessResult(map[string]any{
		"key":     key,
		"history": history,
	}), start), nil
}
