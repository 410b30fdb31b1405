package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) expected %v, got %v", in, want, got)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentApp, Output: &buf})
	l.WithComponent(ComponentCache).Info("snapshot saved", FieldTotalCount, 3)

	out := buf.String()
	if !strings.Contains(out, "component=cache") {
		t.Fatalf("missing component in %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component logged more than once: %q", out)
	}
	if !strings.Contains(out, "total_count=3") {
		t.Fatalf("missing field in %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentFetch, Format: "json", Output: &buf})
	l.Debug("hidden")
	l.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, `"component":"fetch"`) {
		t.Fatalf("expected json output, got %q", out)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := Middleware(Discard())(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestID(r.Context())
			if FromContext(r.Context()).Component() != "discard" {
				t.Errorf("logger not propagated")
			}
		})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "req_1" || rr.Header().Get("X-Request-ID") != "req_1" {
		t.Fatalf("request id not propagated: %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("FromContext must fall back to the default logger")
	}
}
