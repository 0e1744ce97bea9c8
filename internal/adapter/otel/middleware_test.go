package otel

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPMiddlewareNamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r := chi.NewRouter()
	r.Use(httpMiddleware("test", otelhttp.WithTracerProvider(tp)))
	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	for _, path := range []string{"/api/v1/tasks/a1", "/api/v1/tasks/b2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}
	want := []string{"GET /api/v1/tasks/{id}", "GET /api/v1/tasks/{id}", "GET /nowhere"}
	for i, s := range spans {
		if s.Name() != want[i] {
			t.Errorf("span %d name = %q, want %q", i, s.Name(), want[i])
		}
	}
}
