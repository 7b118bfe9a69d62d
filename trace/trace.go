/*
 *
 * vzi - stream records into a live browser page
 * Copyright (C) 2023 vzi authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "vzi.browser"

// Tracer starts spans tagged with the session metadata.
type Tracer struct {
	trace.Tracer

	metadata []attribute.KeyValue
}

// NewTracer returns a tracer from tp that tags every span with metadata.
func NewTracer(tp trace.TracerProvider, metadata map[string]string, options ...trace.TracerOption) *Tracer {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for k, v := range metadata {
		meta = append(meta, attribute.String(k, v))
	}
	return &Tracer{
		Tracer:   tp.Tracer(tracerName, options...),
		metadata: meta,
	}
}

// Start starts a span carrying the tracer's metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

type ctxKey int

const ctxKeyTracer ctxKey = iota

// WithTracer returns a copy of ctx whose operations are traced with t.
func WithTracer(ctx context.Context, t *Tracer) context.Context {
	return context.WithValue(ctx, ctxKeyTracer, t)
}

// FromContext returns the tracer of ctx, or one that records nothing.
func FromContext(ctx context.Context) *Tracer {
	if t, ok := ctx.Value(ctxKeyTracer).(*Tracer); ok && t != nil {
		return t
	}
	return &Tracer{Tracer: noop.NewTracerProvider().Tracer(tracerName)}
}

// Start starts a span with the tracer carried by ctx.
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return FromContext(ctx).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// End records err, if any, on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
