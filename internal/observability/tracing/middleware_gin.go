package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("pharmasettle/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)

		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		refs := obscontext.RefsFromRoute(c.FullPath(), c.Param, c.Query)
		ctx = obscontext.WithSettlementRefs(ctx, refs)
		span.SetAttributes(RefAttributes(refs)...)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
		)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// RefAttributes renders settlement refs as span attributes.
func RefAttributes(refs obscontext.SettlementRefs) []attribute.KeyValue {
	pairs := refs.Pairs()
	attrs := make([]attribute.KeyValue, 0, len(pairs))
	for _, kv := range pairs {
		attrs = append(attrs, attribute.String("settlement."+kv[0], kv[1]))
	}
	return attrs
}

// Annotate tags the active span with refs resolved after routing, such as the
// order a gateway txn ref belongs to.
func Annotate(ctx context.Context, refs obscontext.SettlementRefs) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(RefAttributes(refs)...)
}
