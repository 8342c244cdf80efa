package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingProvider() (*Provider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return &Provider{tp: tp, tracer: tp.Tracer("test")}, rec
}

func TestInitTracerDisabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "e2e-tester"}, nil)
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if p.Tracer() == nil {
		t.Fatal("nil tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestHTTPMiddlewareRecordsSpan(t *testing.T) {
	p, rec := recordingProvider()
	h := HTTPMiddleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddEvent(r.Context(), "handled")
		SetError(r.Context(), errors.New("boom"))
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run-test", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "POST /run-test" {
		t.Errorf("span name = %q", s.Name())
	}
	var sawEvent bool
	for _, ev := range s.Events() {
		if ev.Name == "handled" {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Error("event not recorded")
	}
	var status int64
	for _, kv := range s.Attributes() {
		if kv.Key == "http.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusBadGateway {
		t.Errorf("status attribute = %d", status)
	}
}
