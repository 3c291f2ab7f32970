package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
)

// Argument accessors. Inputs arrive either from the dispatcher (Go types)
// or decoded from JSON (float64 numbers, []any arrays), so each accessor
// accepts both.

func stringArg(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func floatArg(input map[string]any, key string) (float64, bool) {
	switch v := input[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func stringsArg(input map[string]any, key string) []string {
	switch v := input[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapArg(input map[string]any, key string) map[string]any {
	m, _ := input[key].(map[string]any)
	return m
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// timeArg parses a date argument. A missing argument yields nil, nil.
func timeArg(input map[string]any, key string) (*time.Time, error) {
	raw := stringArg(input, key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.Validation(fmt.Sprintf("%s %q is not a date (use YYYY-MM-DD)", key, raw))
}
