package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

func TestStringArg(t *testing.T) {
	input := map[string]any{"s": "  acme ", "n": 42, "f": 1.5, "nil": nil}
	assert.Equal(t, "acme", stringArg(input, "s"))
	assert.Equal(t, "42", stringArg(input, "n"))
	assert.Equal(t, "1.5", stringArg(input, "f"))
	assert.Equal(t, "", stringArg(input, "nil"))
	assert.Equal(t, "", stringArg(input, "missing"))
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{7, 7},
		{int64(8), 8},
		{9.0, 9},
		{" 10 ", 10},
		{"ten", 3},
		{true, 3},
		{nil, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, intArg(map[string]any{"k": tt.in}, "k", 3), "%v", tt.in)
	}
}

func TestFloatArg(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{125000.0, 125000, true},
		{float32(2.5), 2.5, true},
		{3, 3, true},
		{int64(4), 4, true},
		{" 4.25 ", 4.25, true},
		{"lots", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := floatArg(map[string]any{"k": tt.in}, "k")
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestStringsArg(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringsArg(map[string]any{"k": []string{"a", "b"}}, "k"))
	assert.Equal(t, []string{"a", "2"}, stringsArg(map[string]any{"k": []any{"a", " ", 2}}, "k"))
	assert.Equal(t, []string{"urgent", "q3"}, stringsArg(map[string]any{"k": "urgent, ,q3"}, "k"))
	assert.Nil(t, stringsArg(map[string]any{"k": 5}, "k"))
	assert.Nil(t, stringsArg(nil, "k"))
}

func TestTimeArg(t *testing.T) {
	for raw, want := range map[string]time.Time{
		"2024-05-01":           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"2024-05-01T14:30":     time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC),
		"2024-05-01T14:30:00Z": time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC),
	} {
		got, err := timeArg(map[string]any{"due_date": raw}, "due_date")
		require.NoError(t, err, raw)
		require.NotNil(t, got, raw)
		assert.True(t, want.Equal(*got), raw)
	}

	got, err := timeArg(map[string]any{}, "due_date")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = timeArg(map[string]any{"due_date": "05/01/2024"}, "due_date")
	require.Error(t, err)
	assert.Equal(t, protocol.KindValidationFailed, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestMapArg(t *testing.T) {
	m := map[string]any{"tier": "gold"}
	assert.Equal(t, m, mapArg(map[string]any{"metadata": m}, "metadata"))
	assert.Nil(t, mapArg(map[string]any{"metadata": "gold"}, "metadata"))
}
