// Package audit keeps the append-only trail of badge verification attempts.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one verification attempt and its outcome.
type Record struct {
	ID         uuid.UUID `json:"id"`
	BadgeToken string    `json:"badge_token"`
	Outcome    string    `json:"outcome"`
	Context    Context   `json:"context"`
	Timestamp  time.Time `json:"timestamp"`
}

// Context describes who asked for a verification.
type Context struct {
	RequestID  string `json:"request_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Verifier   string `json:"verifier,omitempty"`
}

// Store persists verification records. Records are never updated or deleted.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ListByBadge(ctx context.Context, token string) ([]Record, error)
}

type contextKey struct{}

// WithContext attaches the verifier context to ctx so the badge manager can
// record it without widening its API.
func WithContext(ctx context.Context, vc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, vc)
}

// FromContext returns the verifier context stored in ctx, or the zero Context.
func FromContext(ctx context.Context) Context {
	vc, _ := ctx.Value(contextKey{}).(Context)
	return vc
}
