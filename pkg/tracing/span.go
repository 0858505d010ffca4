// Package tracing provides lightweight spans that propagate through Go
// contexts. Spans form parent-child trees and the root logs the whole tree
// through slog when it ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pinnedref/pinnedref/pkg/logger"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	mu     sync.Mutex
	root   bool
	logger *slog.Logger
}

// Tracer starts spans. A disabled Tracer hands out no-op spans so call sites
// need no branches.
type Tracer struct {
	enabled bool
	logger  *slog.Logger
}

func NewTracer(enabled bool) *Tracer {
	return &Tracer{
		enabled: enabled,
		logger:  logger.WithComponent("tracing"),
	}
}

// Start opens a span named name. It becomes a child of the span in ctx, or
// a root span with the given traceID when ctx carries none.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, nil
	}
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
		logger:    t.logger,
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, span)
		parent.mu.Unlock()
	} else {
		span.root = true
	}
	return context.WithValue(ctx, spanKey, span), span
}

// End records the span's duration. Ending a root span logs its tree. End on
// a nil span is a no-op.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
	if s.root {
		s.log(0)
	}
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_us", s.Duration.Microseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	s.logger.Info("span", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
