package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrument records a server span and the otelhttp request metrics for
// every request. Once routing completes the span is renamed to
// "METHOD /route/{pattern}" and the metrics are labeled with http.route.
func Instrument(service string, tp trace.TracerProvider, mp metric.MeterProvider) Middleware {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			pattern := RoutePattern(r)
			if pattern == "" {
				return
			}
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.route", pattern))
			if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				l.Add(attribute.String("http.route", pattern))
			}
		})
		return otelhttp.NewHandler(inner, service,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
