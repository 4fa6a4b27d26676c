// Package log carries slog plumbing shared by the server and the
// headless runner binaries.
package log

import (
	"context"
	"log/slog"

	"github.com/partner-up-dev/mvp-HA-sub000/internal/requestid"
)

// attrFunc pulls an attribute out of a context, reporting whether one
// was present.
type attrFunc func(ctx context.Context) (slog.Attr, bool)

// ContextHandler decorates an slog.Handler so that values carried in
// the context, currently the request ID, show up on every record
// without each call site passing them explicitly.
type ContextHandler struct {
	inner slog.Handler
	funcs []attrFunc
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{
		inner: inner,
		funcs: []attrFunc{requestIDAttr},
	}
}

func requestIDAttr(ctx context.Context) (slog.Attr, bool) {
	id := requestid.From(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, fn := range h.funcs {
		if attr, ok := fn(ctx); ok {
			r.AddAttrs(attr)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), funcs: h.funcs}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), funcs: h.funcs}
}
