package audit

import (
	"context"

	"github.com/flynn-ai/opsconsole/internal/config"
)

// DefaultStream is used when the configuration names no stream.
const DefaultStream = "opsconsole:events"

// New builds the publisher described by cfg. Without a Redis address events
// go to the log only; with one they go to both the log and the stream.
func New(ctx context.Context, cfg config.AuditConfig) (Publisher, error) {
	if cfg.RedisAddr == "" {
		return LogPublisher{}, nil
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	rp, err := NewRedisPublisher(ctx, RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Stream:   stream,
		MaxLen:   cfg.MaxLen,
	})
	if err != nil {
		return nil, err
	}
	return Multi{LogPublisher{}, rp}, nil
}
