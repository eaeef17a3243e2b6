package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// middlewareHarness wires the middleware to in-memory metric and span sinks
// in front of a mux with a few routes of the daemon's shape.
type middlewareHarness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func newMiddlewareHarness(t *testing.T) *middlewareHarness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vocabulary/{word}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &middlewareHarness{handler: Middleware(m)(mux), reader: reader, spans: exp}
}

func (h *middlewareHarness) get(path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *middlewareHarness) durations(t *testing.T) metricdata.Histogram[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "speakeasy.http.request.duration")
	if met == nil {
		t.Fatal("speakeasy.http.request.duration not recorded")
	}
	return met.Data.(metricdata.Histogram[float64])
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h := newMiddlewareHarness(t)

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "new trace"},
		{
			name:        "continues incoming trace",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			want:        "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hdr := map[string]string{}
			if tc.traceparent != "" {
				hdr["traceparent"] = tc.traceparent
			}
			rec := h.get("/api/vocabulary/latte", hdr)

			cid := rec.Header().Get("X-Correlation-ID")
			if len(cid) != 32 {
				t.Fatalf("X-Correlation-ID = %q, want a trace ID", cid)
			}
			if tc.want != "" && cid != tc.want {
				t.Errorf("X-Correlation-ID = %q, want %q", cid, tc.want)
			}
			if seen := rec.Header().Get("X-Seen-Correlation"); seen != cid {
				t.Errorf("handler saw %q, response carries %q", seen, cid)
			}
			if !strings.Contains(rec.Header().Get("traceparent"), cid) {
				t.Errorf("traceparent = %q, want it to carry %s", rec.Header().Get("traceparent"), cid)
			}
		})
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	h := newMiddlewareHarness(t)
	h.get("/api/vocabulary/latte", nil)
	h.get("/nowhere", nil)

	spans := h.spans.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/vocabulary/{word}" {
		t.Errorf("routed span = %q", spans[0].Name)
	}
	if v, ok := spanAttr(spans[0], "http.route"); !ok || v.AsString() != "GET /api/vocabulary/{word}" {
		t.Errorf("http.route = %v, %v", v.AsString(), ok)
	}
	if v, _ := spanAttr(spans[0], "http.response.status_code"); v.AsInt64() != http.StatusNoContent {
		t.Errorf("status attribute = %d, want 204", v.AsInt64())
	}
	if spans[1].Name != "HTTP GET /nowhere" {
		t.Errorf("unrouted span = %q", spans[1].Name)
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	h := newMiddlewareHarness(t)
	if rec := h.get("/api/history", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	h.get("/nowhere", nil)

	spans := h.spans.GetSpans()
	if spans[0].Status.Code != codes.Error {
		t.Errorf("5xx span status = %v, want error", spans[0].Status.Code)
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("404 must not mark the span failed")
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	h := newMiddlewareHarness(t)
	for _, word := range []string{"latte", "barista"} {
		h.get("/api/vocabulary/"+word, nil)
	}

	hist := h.durations(t)
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (one route)", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "GET /api/vocabulary/{word}"}
	for k, v := range want {
		if got, _ := dp.Attributes.Value(attribute.Key(k)); got.AsString() != v {
			t.Errorf("%s = %q, want %q", k, got.AsString(), v)
		}
	}
	if got, _ := dp.Attributes.Value("status"); got.AsInt64() != http.StatusNoContent {
		t.Errorf("status = %d, want 204", got.AsInt64())
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	h := newMiddlewareHarness(t)
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	h.get("/healthz", nil)
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf.String())
	}
	h.get("/api/vocabulary/latte", nil)
	if !strings.Contains(buf.String(), "request completed") {
		t.Errorf("api request not logged: %q", buf.String())
	}
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		method, pattern, path, want string
	}{
		{"GET", "GET /api/history/{id}", "/api/history/abc", "GET /api/history/{id}"},
		{"GET", "/healthz", "/healthz", "GET /healthz"},
		{"POST", "", "/unknown", "POST /unknown"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		r.Pattern = tc.pattern
		if got := routeLabel(r); got != tc.want {
			t.Errorf("routeLabel(%s %q) = %q, want %q", tc.method, tc.pattern, got, tc.want)
		}
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a recorder should fail")
	}
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want unchanged", rec.statusCode)
	}
}
