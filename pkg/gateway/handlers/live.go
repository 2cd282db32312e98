package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/relay"
	"github.com/vigil-live/vigil/pkg/core/report"
	"github.com/vigil-live/vigil/pkg/core/voice/stt"
	"github.com/vigil-live/vigil/pkg/core/voice/tts"
	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/lifecycle"
	"github.com/vigil-live/vigil/pkg/gateway/live/protocol"
	"github.com/vigil-live/vigil/pkg/gateway/live/session"
	"github.com/vigil-live/vigil/pkg/gateway/live/sessions"
	"github.com/vigil-live/vigil/pkg/gateway/metrics"
	"github.com/vigil-live/vigil/pkg/gateway/mw"
)

// LiveHandler upgrades /v1/session and runs one crisis session per
// connection.
type LiveHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	STT      stt.Provider
	Brain    brain.Responder
	TTS      tts.Synthesizer
	Relay    *relay.Relay
	Reporter report.Reporter
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeJSONError(w, r, http.StatusServiceUnavailable, "draining", "gateway is draining")
		return
	}
	if !h.originAllowed(r) {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "origin is not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.MaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.MaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		writeWSError(conn, "bad_request", "failed to read hello", true)
		return
	}
	if messageType != websocket.TextMessage {
		writeWSError(conn, "bad_request", "first frame must be hello", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		writeWSError(conn, "bad_request", err.Error(), true)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		writeWSError(conn, "bad_request", "first frame must be hello", true)
		return
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		writeWSError(conn, "unsupported_version", "unsupported protocol_version", true)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sessionID := "s_" + core.RandHex(8)
	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    h.Logger,
		Metrics:   h.Metrics,
		STT:       h.STT,
		Brain:     h.Brain,
		TTS:       h.TTS,
		Relay:     h.Relay,
		Reporter:  h.Reporter,
		Hello:     hello,
		SessionID: sessionID,
		Config: session.Config{
			SilenceThreshold:    h.Config.SilenceThreshold,
			Countdown:           h.Config.CountdownDuration,
			CollaboratorTimeout: h.Config.CollaboratorTimeout,
			MaxAudioFrameBytes:  h.Config.MaxAudioFrameBytes,
			MaxJSONMessageBytes: h.Config.MaxJSONMessageBytes,
			MaxAudioFPS:         h.Config.MaxAudioFPS,
			MaxAudioBPS:         h.Config.MaxAudioBPS,
			InboundBurstSeconds: h.Config.InboundBurstSeconds,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			ReadTimeout:         h.Config.WSReadTimeout,
			MaxSessionDuration:  h.Config.MaxSessionDuration,
			HistoryWindow:       h.Config.HistoryWindow,
		},
	})
	if err != nil {
		writeWSError(conn, "internal", "failed to initialize session", true)
		return
	}

	unregister := func() {}
	if h.Sessions != nil {
		unregister = h.Sessions.Register(sessionID, sessions.Handle{
			Cancel: s.Cancel,
			Warn:   s.SendWarning,
		})
	}
	defer unregister()

	if err := s.Run(); err != nil {
		if h.Logger != nil {
			reqID, _ := mw.RequestIDFrom(r.Context())
			h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
		}
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
