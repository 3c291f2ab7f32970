package model

import "context"

// Model is a reasoning service.
type Model interface {
	// Generate submits a transcript and returns text or proposed tool calls.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// IsAvailable reports whether a credential is configured.
	IsAvailable() bool

	// Name returns the model identifier.
	Name() string
}
