package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return m
}

func TestBuild_FieldsAndContext(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", Component: "mapserver", Version: "dev"}, &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithDataset(ctx, "samples")
	ctx = WithCacheResult(ctx, "hit")
	FromContext(ctx, &zl).Info().Msg("served")

	m := decodeLine(t, buf.Bytes())
	want := map[string]string{
		"component":    "mapserver",
		"version":      "dev",
		"request_id":   "req-1",
		"dataset":      "samples",
		"cache_result": "hit",
		"msg":          "served",
		"level":        "info",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s=%v want %s", k, m[k], v)
		}
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", m)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}

func TestSlog_LevelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}

	l.With("dataset", "samples").WithGroup("reload").Warn("slow",
		"took", 2*time.Second, "markers", 12, "err", errors.New("boom"))
	m := decodeLine(t, buf.Bytes())
	if m["level"] != "warn" || m["dataset"] != "samples" {
		t.Fatalf("unexpected line: %v", m)
	}
	if m["reload.markers"] != float64(12) || m["reload.err"] != "boom" {
		t.Fatalf("grouped attrs missing: %v", m)
	}
	if _, ok := m["reload.took"]; !ok {
		t.Fatalf("duration attr missing: %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{"debug": "debug", " WARN ": "warn", "error": "error", "": "info", "bogus": "info"}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}
