package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/opsconsole/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go-redis keeps a pool reaper goroutine per client until Close
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.(*ConnPool).reaper"),
	)
}

type failing struct{ closed bool }

func (f *failing) Publish(context.Context, *Event) error { return errors.New("sink down") }
func (f *failing) Close() error                          { f.closed = true; return nil }

func TestMultiPublishesToAll(t *testing.T) {
	rec := &Recorder{}
	bad := &failing{}
	m := Multi{bad, rec, LogPublisher{}}

	err := m.Publish(context.Background(), NewEvent(KindCommand, map[string]any{"input": "show all tasks"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "show all tasks", rec.Events[0].Payload["input"])

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
}

func TestRecorderOf(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, NewEvent(KindCommand, nil)))
	require.NoError(t, rec.Publish(ctx, NewEvent(KindChatExchange, nil)))
	require.NoError(t, rec.Publish(ctx, NewEvent(KindChatExchange, nil)))

	assert.Len(t, rec.Of(KindChatExchange), 2)
	assert.Len(t, rec.Of(KindSync), 0)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(KindSync, map[string]any{"target": "hubspot"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, KindSync, e.Kind)
}

// Requires a Redis server; set OPSCONSOLE_TEST_REDIS=host:port.
func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("OPSCONSOLE_TEST_REDIS")
	if addr == "" {
		t.Skip("OPSCONSOLE_TEST_REDIS not set")
	}

	ctx := context.Background()
	stream := "opsconsole:test:" + t.Name()
	p, err := NewRedisPublisher(ctx, RedisConfig{Addr: addr, Stream: stream, MaxLen: 100})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer p.Close()
	defer p.rdb.Del(ctx, stream)

	e := NewEvent(KindChatExchange, map[string]any{"input": "how is revenue?", "fallback": true})
	require.NoError(t, p.Publish(ctx, e))

	entries, err := p.rdb.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].Values["id"])
	assert.Equal(t, "chat_exchange", entries[0].Values["kind"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &payload))
	assert.Equal(t, true, payload["fallback"])
}

func TestRedisPublisherUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRedisPublisher(ctx, RedisConfig{Addr: "127.0.0.1:1", Stream: "x"})
	assert.Error(t, err)
}

func TestNewWithoutRedisLogsOnly(t *testing.T) {
	p, err := New(context.Background(), config.AuditConfig{})
	require.NoError(t, err)
	assert.IsType(t, LogPublisher{}, p)
}
