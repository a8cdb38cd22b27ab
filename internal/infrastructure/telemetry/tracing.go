// Package telemetry provides tracing and metrics for the CRM client.
package telemetry

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for every client span
const TracerName = "crm-client"

// Span attribute keys
const (
	AttrHTTPMethod = attribute.Key("http.request.method")
	AttrHTTPPath   = attribute.Key("url.path")
	AttrHTTPStatus = attribute.Key("http.response.status_code")
	AttrRequestID  = attribute.Key("crm.request_id")
	AttrResource   = attribute.Key("crm.resource")
	AttrMutation   = attribute.Key("crm.mutation")
	AttrKeys       = attribute.Key("crm.cache.keys")
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartRequest opens the client span around a single HTTP attempt. Retries
// each get their own span.
func StartRequest(ctx context.Context, method, path, requestID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "http "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrHTTPMethod.String(method),
			AttrHTTPPath.String(path),
			AttrRequestID.String(requestID),
		))
}

// StartMutation opens the span covering one optimistic mutation. Names of
// the form "payment.update" are split into resource and action attributes.
func StartMutation(ctx context.Context, name string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrMutation.String(name)}
	if resource, _, ok := strings.Cut(name, "."); ok {
		attrs = append(attrs, AttrResource.String(resource))
	}
	return tracer().Start(ctx, "mutation."+name, trace.WithAttributes(attrs...))
}

// StartRefresh opens the span of a token refresh round trip.
func StartRefresh(ctx context.Context) (context.Context, trace.Span) {
	return tracer().Start(ctx, "auth.refresh", trace.WithSpanKind(trace.SpanKindClient))
}

// Finish sets the final status of span from err. It does not end the span.
func Finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// ResponseStatus records the HTTP status on span; 4xx and 5xx mark it failed.
func ResponseStatus(span trace.Span, status int) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrHTTPStatus.Int(status))
	if status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(status))
		return
	}
	span.SetStatus(codes.Ok, "")
}

// KeysPatched notes how many cache entries a mutation touched
func KeysPatched(span trace.Span, n int) {
	if span == nil {
		return
	}
	span.AddEvent("optimistic_applied", trace.WithAttributes(AttrKeys.Int(n)))
}
