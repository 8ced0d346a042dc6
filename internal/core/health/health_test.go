package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReporter struct {
	ready  bool
	detail map[string]any
}

func (f fakeReporter) Readiness() (bool, map[string]any) { return f.ready, f.detail }

func TestReadiness_Handler(t *testing.T) {
	tests := []struct {
		name       string
		rep        fakeReporter
		wantCode   int
		wantStatus string
	}{
		{"ready", fakeReporter{ready: true, detail: map[string]any{"markers": 3}}, http.StatusOK, "ready"},
		{"not ready", fakeReporter{detail: map[string]any{"dataset": "samples"}}, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tc := range tests {
		rr := httptest.NewRecorder()
		Readiness(tc.rep)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != tc.wantCode {
			t.Fatalf("%s: status=%d want %d", tc.name, rr.Code, tc.wantCode)
		}
		var body struct {
			Status string         `json:"status"`
			Detail map[string]any `json:"detail"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if body.Status != tc.wantStatus || len(body.Detail) != 1 {
			t.Fatalf("%s: body=%+v", tc.name, body)
		}
	}
}
