// Package errors provides the error taxonomy for the command pipeline.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// Code from the taxonomy below. Above the tool registry boundary errors are
// turned into data (a failed ToolResult or a CommandResult message), so the
// Code is what callers switch on, never the message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// ============================================================
// Error Categories
// ============================================================

// Category defines the type of error for handling decisions.
type Category int

const (
	// CategoryTemporary errors are retryable (network timeouts, 5xx).
	CategoryTemporary Category = iota

	// CategoryPermanent errors are not retryable (not found, malformed output).
	CategoryPermanent

	// CategoryUser errors are due to user input (missing title, bad enum).
	CategoryUser

	// CategorySystem errors come from the store or the host.
	CategorySystem

	// CategoryRateLimit errors are due to reasoning-service rate limiting.
	CategoryRateLimit
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTemporary:
		return "temporary"
	case CategoryPermanent:
		return "permanent"
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	case CategoryRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Pipeline taxonomy
	CodeClassificationAmbiguous    = "CLASSIFICATION_AMBIGUOUS"
	CodeValidationFailed           = "VALIDATION_FAILED"
	CodeRecordNotFound             = "RECORD_NOT_FOUND"
	CodeExternalServiceUnavailable = "EXTERNAL_SERVICE_UNAVAILABLE"
	CodeMalformedModelOutput       = "MALFORMED_MODEL_OUTPUT"
	CodePersistenceFailure         = "PERSISTENCE_FAILURE"

	// Reasoning service
	CodeModelTimeout   = "MODEL_TIMEOUT"
	CodeModelRateLimit = "MODEL_RATE_LIMIT"
	CodeCircuitOpen    = "CIRCUIT_OPEN"

	// Tools
	CodeToolNotFound        = "TOOL_NOT_FOUND"
	CodeToolExecutionFailed = "TOOL_EXECUTION_FAILED"

	// Config
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ============================================================
// AppError
// ============================================================

// AppError is the error type shared by every package in the console.
type AppError struct {
	Code     string
	Message  string
	Category Category
	Inner    error

	Retryable   bool
	Suggestions []string
	Context     map[string]any
	RetryAfter  time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}
	sb.WriteString(e.Message)

	if e.Inner != nil {
		if inner := e.Inner.Error(); inner != "" && inner != e.Message {
			sb.WriteString(": ")
			sb.WriteString(inner)
		}
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// Is matches another AppError by code, or the wrapped error.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) && t.Code != "" {
		return t.Code == e.Code
	}
	return errors.Is(e.Inner, target)
}

// ============================================================
// Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, category Category) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  category,
		Retryable: category == CategoryTemporary || category == CategoryRateLimit,
	}
}

// Wrap wraps an existing error with a code. Wrapping nil returns nil.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}
	wrapped := New(code, message, category)
	wrapped.Inner = err

	var inner *AppError
	if errors.As(err, &inner) {
		wrapped.Suggestions = inner.Suggestions
		wrapped.RetryAfter = inner.RetryAfter
	}
	return wrapped
}

// Validation reports missing or invalid input for the chosen action.
func Validation(message string) *AppError {
	return New(CodeValidationFailed, message, CategoryUser)
}

// NotFound reports that a record id does not exist.
func NotFound(kind, id string) *AppError {
	return NewBuilder(CodeRecordNotFound, fmt.Sprintf("%s %s was not found", kind, id)).
		Permanent().
		WithContext("id", id).
		Build()
}

// Persistence wraps a store failure.
func Persistence(err error, op string) *AppError {
	return Wrap(err, CodePersistenceFailure, op+" failed", CategorySystem)
}

// Unavailable wraps a reasoning-service transport failure.
func Unavailable(err error, message string) *AppError {
	return Wrap(err, CodeExternalServiceUnavailable, message, CategoryTemporary)
}

// Malformed reports a reasoning-service response that could not be parsed.
func Malformed(err error, message string) *AppError {
	if err == nil {
		return New(CodeMalformedModelOutput, message, CategoryPermanent)
	}
	return Wrap(err, CodeMalformedModelOutput, message, CategoryPermanent)
}

// RateLimit creates a rate limit error with retry after duration.
func RateLimit(message string, retryAfter time.Duration) *AppError {
	e := New(CodeModelRateLimit, message, CategoryRateLimit)
	e.RetryAfter = retryAfter
	return e
}

// ============================================================
// Builder
// ============================================================

// Builder provides fluent error construction.
type Builder struct {
	err *AppError
}

// NewBuilder starts building a new error.
func NewBuilder(code, message string) *Builder {
	return &Builder{err: &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryTemporary,
		Context:  make(map[string]any),
	}}
}

// Temporary marks the error as retryable.
func (b *Builder) Temporary() *Builder {
	b.err.Category = CategoryTemporary
	b.err.Retryable = true
	return b
}

// Permanent marks the error as non-retryable.
func (b *Builder) Permanent() *Builder {
	b.err.Category = CategoryPermanent
	b.err.Retryable = false
	return b
}

// User marks the error as a user input error.
func (b *Builder) User() *Builder {
	b.err.Category = CategoryUser
	b.err.Retryable = false
	return b
}

// Wrap sets the underlying error.
func (b *Builder) Wrap(err error) *Builder {
	b.err.Inner = err
	return b
}

// WithSuggestion adds a recovery suggestion.
func (b *Builder) WithSuggestion(suggestion string) *Builder {
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

// WithContext adds debugging context.
func (b *Builder) WithContext(key string, value any) *Builder {
	b.err.Context[key] = value
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// ============================================================
// Helpers
// ============================================================

// CodeOf returns the code of the outermost AppError in the chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// MessageOf returns the message of the outermost AppError without its code
// prefix, or err.Error() for other errors.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Inner
	}
	return false
}

// KindOf maps an error onto the kind reported in a failed ToolResult.
// Unclassified errors are treated as persistence failures, since every
// tool's only collaborator is the store.
func KindOf(err error) protocol.ErrorKind {
	switch {
	case err == nil:
		return ""
	case HasCode(err, CodeRecordNotFound):
		return protocol.KindRecordNotFound
	case HasCode(err, CodeValidationFailed):
		return protocol.KindValidationFailed
	case HasCode(err, CodeToolNotFound):
		return protocol.KindToolNotFound
	case HasCode(err, CodeMalformedModelOutput):
		return protocol.KindMalformedModelOutput
	case HasCode(err, CodeExternalServiceUnavailable), HasCode(err, CodeModelTimeout),
		HasCode(err, CodeModelRateLimit), HasCode(err, CodeCircuitOpen):
		return protocol.KindExternalServiceUnavailable
	default:
		return protocol.KindPersistenceFailure
	}
}

// GetCategory extracts the category from an error.
// Non-AppError errors are treated as temporary.
func GetCategory(err error) Category {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategoryTemporary
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return true
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
