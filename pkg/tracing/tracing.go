// Package tracing records browser task activity to an external tracing sink.
//
// Callers hold a Sink and never check whether tracing is enabled: a disabled
// sink is a Noop, and Safe keeps a misbehaving sink from breaking the task.
package tracing

import (
	"context"
	"fmt"

	"github.com/entrhq/browseragent/pkg/logging"
)

// Span and event names.
const (
	SpanBrowserTask = "browseragent.task"
	SpanToolExecute = "browseragent.tool.execute"

	EventTaskStarted     = "browseragent.task.started"
	EventProgressTimeout = "browseragent.progress.timeout"
	EventHandoff         = "browseragent.handoff"
)

var tracingLog = logging.MustLogger("tracing")

// Sink receives spans and events.
type Sink interface {
	// StartSpan opens a span and returns a context carrying it together with
	// an id for EndSpan. An empty id means the span was not recorded.
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, string)

	// EndSpan closes a span opened by StartSpan. err marks the span failed.
	EndSpan(id string, output map[string]any, err error)

	// LogEvent attaches an event to the span in ctx.
	LogEvent(ctx context.Context, name string, attrs map[string]any)
}

// Noop discards everything.
type Noop struct{}

// StartSpan returns ctx unchanged.
func (Noop) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, string) {
	return ctx, ""
}

// EndSpan does nothing.
func (Noop) EndSpan(string, map[string]any, error) {}

// LogEvent does nothing.
func (Noop) LogEvent(context.Context, string, map[string]any) {}

// Safe wraps s so that panics inside the sink are recovered and logged. A nil
// sink becomes Noop.
func Safe(s Sink) Sink {
	if s == nil {
		return Noop{}
	}
	if _, ok := s.(safeSink); ok {
		return s
	}
	return safeSink{inner: s}
}

type safeSink struct {
	inner Sink
}

func (s safeSink) StartSpan(ctx context.Context, name string, attrs map[string]any) (out context.Context, id string) {
	out = ctx
	defer recoverSink("StartSpan", name)
	return s.inner.StartSpan(ctx, name, attrs)
}

func (s safeSink) EndSpan(id string, output map[string]any, err error) {
	defer recoverSink("EndSpan", id)
	s.inner.EndSpan(id, output, err)
}

func (s safeSink) LogEvent(ctx context.Context, name string, attrs map[string]any) {
	defer recoverSink("LogEvent", name)
	s.inner.LogEvent(ctx, name, attrs)
}

func recoverSink(op, name string) {
	if r := recover(); r != nil {
		tracingLog.Errorf("tracing sink %s(%s) panicked: %v", op, name, fmt.Sprint(r))
	}
}
