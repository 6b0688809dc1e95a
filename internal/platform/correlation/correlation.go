// Package correlation tags contexts with request and websocket connection IDs and copies
// them onto every slog record written with that context.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	requestAttr    = "correlation_id"
	connectionAttr = "connection_id"
)

type scopeKey struct{}

// scope is stored by value so deriving a child context never mutates the parent's IDs.
type scope struct {
	request    string
	connection string
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// NewID returns 8 hex characters from 4 random bytes.
func NewID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func WithID(ctx context.Context, id string) context.Context {
	s := scopeOf(ctx)
	s.request = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// ID reports the request ID carried by ctx. An empty ID counts as absent.
func ID(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).request
	return id, id != ""
}

func WithConnection(ctx context.Context, connectionID string) context.Context {
	s := scopeOf(ctx)
	s.connection = connectionID
	return context.WithValue(ctx, scopeKey{}, s)
}

func Connection(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).connection
	return id, id != ""
}

// Handler decorates another slog.Handler with the IDs found on the record's context.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	s := scopeOf(ctx)
	if s.request != "" {
		r.AddAttrs(slog.String(requestAttr, s.request))
	}
	if s.connection != "" {
		r.AddAttrs(slog.String(connectionAttr, s.connection))
	}
	if err := h.next.Handle(ctx, r); err != nil {
		return fmt.Errorf("failed to write correlated log record: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.next.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.next.WithGroup(name))
}
