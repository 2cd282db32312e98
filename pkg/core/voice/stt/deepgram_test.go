package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDeepgram upgrades the connection, echoes each binary frame back as a
// final transcript, and acknowledges control messages.
func fakeDeepgram(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Token dg-key" {
			t.Errorf("auth header=%q, want Token dg-key", auth)
		}
		if enc := r.URL.Query().Get("encoding"); enc == "" {
			t.Errorf("missing encoding query param")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch mt {
			case websocket.BinaryMessage:
				resp := map[string]any{
					"type":         "Results",
					"is_final":     true,
					"speech_final": true,
					"channel": map[string]any{
						"alternatives": []map[string]any{{"transcript": "heard " + string(data)}},
					},
				}
				b, _ := json.Marshal(resp)
				conn.WriteMessage(websocket.TextMessage, b)
			case websocket.TextMessage:
				var ctrl struct {
					Type string `json:"type"`
				}
				json.Unmarshal(data, &ctrl)
				if ctrl.Type == "CloseStream" {
					conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
					return
				}
			}
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDeepgramStreamRoundTrip(t *testing.T) {
	srv, wsURL := fakeDeepgram(t)
	defer srv.Close()

	p := NewDeepgramWithURL("dg-key", wsURL)
	stream, err := p.NewStream(context.Background(), StreamOptions{Encoding: "linear16", SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()

	if err := stream.SendAudio([]byte("frame")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case delta := <-stream.Transcripts():
		if delta.Text != "heard frame" {
			t.Fatalf("text=%q, want %q", delta.Text, "heard frame")
		}
		if !delta.IsFinal || !delta.SpeechFinal {
			t.Fatalf("delta=%+v, want final", delta)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no transcript delta")
	}
}

func TestDeepgramStreamCloseEndsChannels(t *testing.T) {
	srv, wsURL := fakeDeepgram(t)
	defer srv.Close()

	p := NewDeepgramWithURL("dg-key", wsURL)
	stream, err := p.NewStream(context.Background(), StreamOptions{})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done never closed")
	}
	if err := stream.SendAudio([]byte("x")); err == nil {
		t.Fatalf("SendAudio after Close succeeded")
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDeepgramConnectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewDeepgramWithURL("bad", "ws"+strings.TrimPrefix(srv.URL, "http"))
	if _, err := p.NewStream(context.Background(), StreamOptions{}); err == nil {
		t.Fatalf("expected connect error")
	}
}
