package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-live/vigil/pkg/core/audio"
	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/crisis"
	"github.com/vigil-live/vigil/pkg/core/relay"
	"github.com/vigil-live/vigil/pkg/core/voice/stt"
	"github.com/vigil-live/vigil/pkg/core/voice/tts"
	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/metrics"
)

// ResponderFactory builds an intelligence backend primed with a custom
// persona, used to brief the phone bridge with the incident context.
type ResponderFactory func(systemPrompt string) brain.Responder

// BridgeHandler accepts the telephony media stream opened when the primary
// contact answers an escalation call. The bridge reads the incident context
// registered at dial time and never mutates the originating session.
type BridgeHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Registry *relay.Registry

	STT          stt.Provider
	TTS          tts.Synthesizer
	NewResponder ResponderFactory
}

// mediaEvent is one inbound message on a telephony media stream.
type mediaEvent struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type mediaOut struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

const bridgeOpeningCue = "The call has just connected. Greet the contact by explaining who you are and why you are calling, then answer their questions."

// mediaChunkBytes is 400ms of 8kHz mu-law per outbound frame.
const mediaChunkBytes = 3200

func (h BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "missing bridge token")
		return
	}
	incident, ok := h.Registry.Lookup(token)
	if !ok {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "unknown bridge token")
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
	defer h.Registry.Release(token)

	start := time.Now()
	status := "ok"
	h.Metrics.RecordSessionStart()
	defer func() {
		h.Metrics.RecordSessionEnd("bridge", status, time.Since(start))
	}()

	if err := h.run(r.Context(), conn, incident); err != nil {
		status = "error"
		if h.Logger != nil {
			h.Logger.Warn("bridge call ended with error", "session_id", incident.SessionID, "error", err)
		}
	}
}

func (h BridgeHandler) run(parent context.Context, conn *websocket.Conn, incident relay.Incident) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	responder := h.NewResponder(brain.BridgePrompt(incident.UserName, incident.Summary, incident.MapLink))
	profile, err := crisis.Lookup(crisis.ModeCalm)
	if err != nil {
		return err
	}

	sttStream, err := h.STT.NewStream(ctx, stt.StreamOptions{
		Encoding:   "linear16",
		SampleRate: 8000,
	})
	if err != nil {
		h.Metrics.RecordCollaboratorError("speech-in", "connect")
		return err
	}
	defer sttStream.Close()

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		writeTimeout := h.Config.WSWriteTimeout
		if writeTimeout <= 0 {
			writeTimeout = 5 * time.Second
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	readCh := make(chan mediaEvent, 64)
	readErrCh := make(chan error, 1)
	go func() {
		defer close(readCh)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			var ev mediaEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			select {
			case readCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	turnCh := make(chan turnOutcome, 4)
	var wg sync.WaitGroup
	defer wg.Wait()

	var (
		streamSID string
		history   = append([]brain.Message(nil), incident.History...)
		speaking  bool
		opened    bool
	)

	startTurn := func(userText string) {
		historyCopy := append([]brain.Message(nil), history...)
		speaking = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := h.runBridgeTurn(ctx, responder, userText, historyCopy, profile, streamSID, writeJSON)
			select {
			case turnCh <- out:
			case <-ctx.Done():
			}
		}()
	}

	maxDuration := h.Config.MaxSessionDuration
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case ev, ok := <-readCh:
			if !ok {
				return nil
			}
			switch ev.Event {
			case "start":
				if ev.Start != nil {
					streamSID = ev.Start.StreamSID
				}
				if !opened {
					opened = true
					startTurn(bridgeOpeningCue)
				}
			case "media":
				if ev.Media == nil || speaking {
					continue
				}
				mulaw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
				if err != nil {
					continue
				}
				pcm := audio.DecodeMulaw(mulaw)
				if err := sttStream.SendAudio(pcm); err != nil {
					h.Metrics.RecordCollaboratorError("speech-in", "send")
					return err
				}
				h.Metrics.RecordAudio("in", len(pcm))
			case "stop":
				return nil
			}
		case delta, ok := <-sttStream.Transcripts():
			if !ok {
				return nil
			}
			if !delta.IsFinal || delta.Text == "" || speaking {
				continue
			}
			history = append(history, brain.Message{Role: brain.RoleUser, Content: delta.Text})
			startTurn(delta.Text)
		case out := <-turnCh:
			speaking = false
			if out.err != nil {
				h.Metrics.RecordCollaboratorError(out.collaborator, "turn")
				if h.Logger != nil {
					h.Logger.Warn("bridge turn failed", "session_id", incident.SessionID, "error", out.err)
				}
				continue
			}
			if out.reply != "" {
				history = append(history, brain.Message{Role: brain.RoleAssistant, Content: out.reply})
			}
		case <-deadline.C:
			return nil
		}
	}
}

type turnOutcome struct {
	reply        string
	collaborator string
	err          error
}

// runBridgeTurn produces one spoken reply on the phone leg: intelligence,
// synthesis at the telephony format, then mu-law media frames.
func (h BridgeHandler) runBridgeTurn(ctx context.Context, responder brain.Responder, userText string, history []brain.Message, profile crisis.VoiceProfile, streamSID string, writeJSON func(any) error) turnOutcome {
	timeout := h.Config.CollaboratorTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := responder.Respond(turnCtx, userText, crisis.ModeCalm, history)
	if err != nil {
		return turnOutcome{collaborator: "intelligence", err: err}
	}
	// The phone persona does not emit control tokens, but strip any that
	// slip through so they are never spoken aloud.
	res := crisis.Apply(crisis.ModeCalm, raw)
	if res.Clean == "" {
		return turnOutcome{}
	}

	syn, err := h.TTS.Synthesize(turnCtx, res.Clean, profile, tts.FormatPhone)
	if err != nil {
		return turnOutcome{reply: res.Clean, collaborator: "speech-out", err: err}
	}

	mulaw := audio.EncodeMulaw(syn.Audio)
	for off := 0; off < len(mulaw); off += mediaChunkBytes {
		end := off + mediaChunkBytes
		if end > len(mulaw) {
			end = len(mulaw)
		}
		frame := mediaOut{
			Event:     "media",
			StreamSID: streamSID,
			Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw[off:end])},
		}
		if err := writeJSON(frame); err != nil {
			return turnOutcome{reply: res.Clean, collaborator: "telephony", err: err}
		}
		h.Metrics.RecordAudio("out", end-off)
	}
	return turnOutcome{reply: res.Clean}
}
