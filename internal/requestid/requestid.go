// Package requestid propagates a per-request correlation ID through
// context so every log line of a tick or API call can be tied together.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the canonical HTTP header carrying the request ID.
const Header = "X-Request-ID"

type key struct{}

// New returns a fresh random request ID.
func New() string {
	return uuid.NewString()
}

// Into attaches id to ctx.
func Into(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// From returns the request ID stored in ctx, or "" when none is set.
func From(ctx context.Context) string {
	id, _ := ctx.Value(key{}).(string)
	return id
}
