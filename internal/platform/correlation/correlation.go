// Package correlation tags a unit of work (a poll cycle, a projection task,
// an API request) with a short ID that every log line of that work carries.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const attrKey = "correlation_id"

type contextKey struct{}

// NewID returns an 8-character hex ID.
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithID returns ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Start returns ctx carrying a fresh ID, and the ID itself.
func Start(ctx context.Context) (context.Context, string) {
	id := NewID()
	return WithID(ctx, id), id
}

// Resume continues a unit of work started elsewhere, e.g. in another
// process. An empty id starts a new one.
func Resume(ctx context.Context, id string) context.Context {
	if id == "" {
		ctx, _ = Start(ctx)
		return ctx
	}
	return WithID(ctx, id)
}

// ID extracts the ID from ctx.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Handler decorates records logged with a context that carries an ID.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String(attrKey, id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
