package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/crisis"
)

func TestRespondSendsPersonaAndHistory(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header=%q, want bearer test-key", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  I'm here with you. [MODE:CALM]  "}}]}`))
	}))
	defer srv.Close()

	g := NewGroq("test-key", WithBaseURL(srv.URL))
	history := []Message{
		{Role: RoleUser, Content: "someone is following me"},
		{Role: RoleAssistant, Content: "Stay on the line."},
	}
	out, err := g.Respond(context.Background(), "they're getting closer", crisis.ModeUrgent, history)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out != "I'm here with you. [MODE:CALM]" {
		t.Fatalf("got=%q, want trimmed reply", out)
	}

	if len(got.Messages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "URGENT") {
		t.Fatalf("system message=%q, want URGENT persona", got.Messages[0].Content[:60])
	}
	if last := got.Messages[3]; last.Role != "user" || last.Content != "they're getting closer" {
		t.Fatalf("last message=%+v, want the live transcript", last)
	}
}

func TestRespondCustomSystemPrompt(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	g := NewGroq("k", WithBaseURL(srv.URL), WithSystemPrompt("custom persona"))
	if _, err := g.Respond(context.Background(), "hi", crisis.ModeDefault, nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Messages[0].Content != "custom persona" {
		t.Fatalf("system=%q, want custom persona", got.Messages[0].Content)
	}
}

func TestRespondAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	g := NewGroq("k", WithBaseURL(srv.URL))
	_, err := g.Respond(context.Background(), "hi", crisis.ModeDefault, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	ce, ok := err.(*core.Error)
	if !ok {
		t.Fatalf("error type=%T, want *core.Error", err)
	}
	if ce.Type != core.ErrCollaboratorFailure {
		t.Fatalf("error type=%v, want collaborator failure", ce.Type)
	}
	if !strings.Contains(ce.Message, "rate limited") {
		t.Fatalf("message=%q, want upstream detail", ce.Message)
	}
}

func TestRespondEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := NewGroq("k", WithBaseURL(srv.URL))
	if _, err := g.Respond(context.Background(), "hi", crisis.ModeDefault, nil); err == nil {
		t.Fatalf("expected error on empty choices")
	}
}

func TestSystemPromptPerMode(t *testing.T) {
	for _, mode := range crisis.Modes() {
		p := SystemPrompt(mode)
		if !strings.Contains(p, "[SIGNAL:SOS]") {
			t.Fatalf("mode %v: prompt missing token grammar", mode)
		}
	}
	if p := SystemPrompt(crisis.ModeStealth); !strings.Contains(p, "STEALTH") {
		t.Fatalf("stealth prompt missing mode block")
	}
}

func TestBridgePrompt(t *testing.T) {
	p := BridgePrompt("Maya", "reported being followed", "https://maps.google.com/?q=1,2")
	for _, want := range []string{"Maya", "reported being followed", "maps.google.com"} {
		if !strings.Contains(p, want) {
			t.Fatalf("bridge prompt missing %q", want)
		}
	}
}
