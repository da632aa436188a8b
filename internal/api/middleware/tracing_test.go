package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecordingProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return exporter
}

func spanAttr(span tracetest.SpanStub, key string) (string, int64, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.Emit(), attr.Value.AsInt64(), true
		}
	}
	return "", 0, false
}

func TestTracing(t *testing.T) {
	exporter := withRecordingProvider(t)

	handler := CorrelationID(testLogger(nil))(Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	require.Equal(t, "POST /api/v1/events", span.Name)
	require.Equal(t, codes.Ok, span.Status.Code)

	method, _, ok := spanAttr(span, "http.method")
	require.True(t, ok)
	require.Equal(t, "POST", method)

	_, status, ok := spanAttr(span, "http.status_code")
	require.True(t, ok)
	require.EqualValues(t, http.StatusCreated, status)

	requestID, _, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	require.Equal(t, "req-42", requestID)
}

func TestTracingServerErrorStatus(t *testing.T) {
	exporter := withRecordingProvider(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTracingClientErrorIsNotSpanError(t *testing.T) {
	exporter := withRecordingProvider(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/events/x", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	_, status, _ := spanAttr(spans[0], "http.status_code")
	require.EqualValues(t, http.StatusNotFound, status)
	require.NotEqual(t, codes.Error, spans[0].Status.Code)
}

func TestSchemeFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "http", schemeFromRequest(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	require.Equal(t, "https", schemeFromRequest(req))
}
