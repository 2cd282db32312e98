package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/lifecycle"
)

func validConfig() config.Config {
	return config.Config{
		SilenceThreshold:    10 * time.Second,
		CountdownDuration:   5 * time.Second,
		CollaboratorTimeout: 15 * time.Second,
		MaxAudioFrameBytes:  1 << 16,
		MaxJSONMessageBytes: 1 << 20,
	}
}

func TestHealthHandler_OK(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "ok\n" {
		t.Fatalf("body=%q, want %q", got, "ok\n")
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	h := ReadyHandler{Config: validConfig(), Lifecycle: &lifecycle.Lifecycle{}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Draining || len(resp.Issues) != 0 {
		t.Fatalf("resp=%+v, want ok with no issues", resp)
	}
}

func TestReadyHandler_DrainingReturns503(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: validConfig(), Lifecycle: lc}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 503 {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	var resp struct {
		OK       bool `json:"ok"`
		Draining bool `json:"draining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || !resp.Draining {
		t.Fatalf("resp=%+v, want draining and not ok", resp)
	}
}

func TestReadyHandler_BadTimingReturns503(t *testing.T) {
	cfg := validConfig()
	cfg.SilenceThreshold = 0
	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != 503 {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

func TestNotFoundHandler_JSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))

	if rec.Code != 404 {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "not_found" {
		t.Fatalf("code=%q, want not_found", resp.Error.Code)
	}
}
