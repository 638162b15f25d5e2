package tracing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	scopeName = "github.com/entrhq/browseragent"

	attrStatus = "browseragent.status"
)

// OTelSink records spans through an OpenTelemetry tracer provider.
type OTelSink struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewOTelSink creates a sink on tp.
func NewOTelSink(tp trace.TracerProvider) *OTelSink {
	return &OTelSink{
		tracer: tp.Tracer(scopeName),
		spans:  make(map[string]trace.Span),
	}
}

// StartSpan starts a span as a child of the span in ctx.
func (s *OTelSink) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, string) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
	id := uuid.NewString()

	s.mu.Lock()
	s.spans[id] = span
	s.mu.Unlock()
	return ctx, id
}

// EndSpan ends the span with id. Unknown ids are ignored.
func (s *OTelSink) EndSpan(id string, output map[string]any, err error) {
	s.mu.Lock()
	span, ok := s.spans[id]
	delete(s.spans, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(toAttributes(output)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(attrStatus, "error"))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.String(attrStatus, "success"))
	}
	span.End()
}

// LogEvent adds an event to the recording span in ctx. Without one, the event
// is recorded as a zero-length span of its own.
func (s *OTelSink) LogEvent(ctx context.Context, name string, attrs map[string]any) {
	kv := toAttributes(attrs)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(kv...))
		return
	}
	_, span := s.tracer.Start(ctx, name, trace.WithAttributes(kv...))
	span.End()
}

// Open returns the number of spans started and not yet ended.
func (s *OTelSink) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

func toAttributes(m map[string]any) []attribute.KeyValue {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case uint64:
			out = append(out, attribute.Int64(k, int64(v)))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case time.Duration:
			out = append(out, attribute.Int64(k+"_ms", v.Milliseconds()))
		case []string:
			out = append(out, attribute.StringSlice(k, v))
		case error:
			out = append(out, attribute.String(k, v.Error()))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return out
}
