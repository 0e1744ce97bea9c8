package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware returns a chi-compatible middleware that creates spans for HTTP requests.
// Spans are renamed to the matched route pattern once chi has resolved it;
// unmatched requests keep the raw path.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return httpMiddleware(serviceName)
}

func httpMiddleware(serviceName string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append(opts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return spanName(r)
	}))
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				trace.SpanFromContext(r.Context()).SetName(spanName(r))
			}
		})
		return otelhttp.NewHandler(routed, serviceName, opts...)
	}
}

func spanName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}
