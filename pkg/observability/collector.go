// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"sync"
	"time"
)

// CollectingTracer keeps completed spans in memory so operators and tests
// can inspect the span tree of a reasoning turn after the fact.
// The buffer is bounded; oldest spans are dropped first.
type CollectingTracer struct {
	mu       sync.Mutex
	spans    []*Span
	maxSpans int
}

// DefaultMaxSpans bounds the in-memory span buffer.
const DefaultMaxSpans = 10_000

// NewCollectingTracer creates a tracer retaining up to maxSpans completed
// spans (DefaultMaxSpans when maxSpans <= 0).
func NewCollectingTracer(maxSpans int) *CollectingTracer {
	if maxSpans <= 0 {
		maxSpans = DefaultMaxSpans
	}
	return &CollectingTracer{maxSpans: maxSpans}
}

// StartSpan creates a span linked to any parent in ctx.
func (t *CollectingTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, opts...)
	return ContextWithSpan(ctx, span), span
}

// EndSpan stamps timing and retains the span.
func (t *CollectingTracer) EndSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, span)
	if len(t.spans) > t.maxSpans {
		t.spans = t.spans[len(t.spans)-t.maxSpans:]
	}
}

// RecordMetric is not retained by the collector; metrics live in Metrics.
func (t *CollectingTracer) RecordMetric(name string, value float64, labels map[string]string) {}

// Flush is a no-op; spans are already in memory.
func (t *CollectingTracer) Flush(ctx context.Context) error {
	return nil
}

// Spans returns a snapshot of the retained spans.
func (t *CollectingTracer) Spans() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// SpansByTrace returns all retained spans belonging to a trace.
func (t *CollectingTracer) SpansByTrace(traceID string) []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Span
	for _, s := range t.spans {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops all retained spans.
func (t *CollectingTracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = nil
}

var _ Tracer = (*CollectingTracer)(nil)
