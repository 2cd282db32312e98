// Package session runs one live crisis session over a websocket: the single
// event loop that fuses audio, text, location, and panic frames, drives the
// speech-in / intelligence / speech-out pipeline, and hands off escalation.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/crisis"
	"github.com/vigil-live/vigil/pkg/core/relay"
	"github.com/vigil-live/vigil/pkg/core/report"
	csession "github.com/vigil-live/vigil/pkg/core/session"
	"github.com/vigil-live/vigil/pkg/core/voice/stt"
	"github.com/vigil-live/vigil/pkg/core/voice/tts"
	"github.com/vigil-live/vigil/pkg/gateway/live/protocol"
	"github.com/vigil-live/vigil/pkg/gateway/metrics"
)

const (
	maxCanceledUtteranceIDs   = 64
	outboundPriorityQueueSize = 8
	audioChunkBytes           = 4096
)

// Config holds the per-session tunables, populated from gateway config.
type Config struct {
	SilenceThreshold    time.Duration
	Countdown           time.Duration
	CollaboratorTimeout time.Duration
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	MaxAudioFPS         int
	MaxAudioBPS         int64
	InboundBurstSeconds int
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	MaxSessionDuration  time.Duration
	HistoryWindow       int
	OutboundQueueSize   int
}

// Dependencies wires the collaborators into a session. Relay may be nil when
// telephony is not configured; escalation then records the episode without
// dispatching.
type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	STT       stt.Provider
	Brain     brain.Responder
	TTS       tts.Synthesizer
	Relay     *relay.Relay
	Reporter  report.Reporter
	Hello     protocol.ClientHello
	SessionID string
	Config    Config
	Now       func() time.Time
}

// LiveSession owns one websocket connection and its session state.
type LiveSession struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sttp     stt.Provider
	brain    brain.Responder
	tts      tts.Synthesizer
	relay    *relay.Relay
	reporter report.Reporter
	hello    protocol.ClientHello
	state    *csession.State
	cfg      Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	canceledUtterances atomic.Value // canceledUtteranceState
	utteranceCounter   atomic.Int64
}

type canceledUtteranceState struct {
	set   map[string]struct{}
	order []string
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type turnResult struct {
	turnID int
	raw    string
	err    error
}

type speakResult struct {
	turnID      int
	utteranceID string
	canceled    bool
	err         error
}

type escalationResult struct {
	reason  string
	outcome relay.Outcome
}

// New builds a session from a completed handshake.
func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("speech-in provider is required")
	}
	if deps.Brain == nil {
		return nil, fmt.Errorf("intelligence backend is required")
	}
	if deps.TTS == nil {
		return nil, fmt.Errorf("speech-out provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reporter == nil {
		deps.Reporter = report.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.SilenceThreshold <= 0 {
		deps.Config.SilenceThreshold = 10 * time.Second
	}
	if deps.Config.Countdown <= 0 {
		deps.Config.Countdown = 5 * time.Second
	}
	if deps.Config.CollaboratorTimeout <= 0 {
		deps.Config.CollaboratorTimeout = 15 * time.Second
	}
	if deps.Config.HistoryWindow <= 0 {
		deps.Config.HistoryWindow = 20
	}

	state := csession.NewState(deps.SessionID)
	state.SetUserName(deps.Hello.UserName)
	contacts := make([]csession.Contact, 0, len(deps.Hello.Contacts))
	for _, c := range deps.Hello.Contacts {
		contacts = append(contacts, csession.Contact{Name: c.Name, Phone: c.Phone})
	}
	state.SetContacts(contacts)

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		metrics:          deps.Metrics,
		sttp:             deps.STT,
		brain:            deps.Brain,
		tts:              deps.TTS,
		relay:            deps.Relay,
		reporter:         deps.Reporter,
		hello:            deps.Hello,
		state:            state,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}
	s.canceledUtterances.Store(canceledUtteranceState{set: make(map[string]struct{})})
	return s, nil
}

// State exposes the session aggregate, used by handlers and tests.
func (s *LiveSession) State() *csession.State {
	return s.state
}

// Cancel terminates the session from outside the event loop.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// SendWarning queues a warning frame. Safe to call from any goroutine; used
// by the shutdown drain to announce the gateway going away.
func (s *LiveSession) SendWarning(code, message string) error {
	return s.sendWarning(code, message)
}

// Run drives the session until the connection closes or a fatal error. The
// caller owns the websocket close.
func (s *LiveSession) Run() error {
	defer s.cancel()

	start := s.now()
	status := "ok"
	s.metrics.RecordSessionStart()
	defer func() {
		s.metrics.RecordSessionEnd("live", status, s.now().Sub(start))
	}()
	defer s.persistSnapshot("session_end")

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	sampleRate := s.hello.AudioIn.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	sttStream, err := s.sttp.NewStream(s.ctx, stt.StreamOptions{
		Encoding:   "linear16",
		SampleRate: sampleRate,
	})
	if err != nil {
		status = "error"
		s.metrics.RecordCollaboratorError("speech-in", errorType(err))
		_ = s.sendWarning("collaborator_error", "failed to open transcription stream")
		return err
	}
	defer sttStream.Close()

	inboundLimiter := newInboundAudioLimiter(s.now, s.cfg.MaxAudioFPS, s.cfg.MaxAudioBPS, s.cfg.InboundBurstSeconds)

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:         s.conn,
			ctx:        s.ctx,
			cfg:        s.cfg,
			priority:   s.outboundPriority,
			normal:     s.outboundNormal,
			isCanceled: s.isUtteranceCanceled,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func() error {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		return nil
	}

	if err := s.sendHelloAck(); err != nil {
		status = "error"
		return err
	}

	turnCh := make(chan turnResult, 4)
	speakDoneCh := make(chan speakResult, 4)
	escalationCh := make(chan escalationResult, 2)

	var wg sync.WaitGroup
	defer wg.Wait()

	watchdog := csession.NewWatchdog(s.cfg.SilenceThreshold, s.now)
	defer watchdog.Disarm()

	var (
		turnID            int
		activeTurnCancel  context.CancelFunc
		activeSpeakCancel context.CancelFunc
		activeUtteranceID string
		countdownTimer    *time.Timer
		countdownActive   bool
	)
	defer func() {
		if countdownTimer != nil {
			countdownTimer.Stop()
		}
	}()

	stopTimer := func(t **time.Timer, active *bool) {
		if *t == nil {
			return
		}
		if !(*t).Stop() {
			select {
			case <-(*t).C:
			default:
			}
		}
		*active = false
	}
	resetTimer := func(t **time.Timer, active *bool, d time.Duration) {
		if *t == nil {
			*t = time.NewTimer(d)
			*active = true
			return
		}
		if !(*t).Stop() {
			select {
			case <-(*t).C:
			default:
			}
		}
		(*t).Reset(d)
		*active = true
	}
	countdownCh := func() <-chan time.Time {
		if !countdownActive || countdownTimer == nil {
			return nil
		}
		return countdownTimer.C
	}

	var sessionTimer *time.Timer
	if s.cfg.MaxSessionDuration > 0 {
		sessionTimer = time.NewTimer(s.cfg.MaxSessionDuration)
		defer sessionTimer.Stop()
	}
	sessionTimerCh := func() <-chan time.Time {
		if sessionTimer == nil {
			return nil
		}
		return sessionTimer.C
	}

	interrupt := func() {
		if activeUtteranceID != "" {
			s.cancelUtteranceAudio(activeUtteranceID)
			activeUtteranceID = ""
		}
		if activeSpeakCancel != nil {
			activeSpeakCancel()
			activeSpeakCancel = nil
		}
	}

	startTurn := func(userText string) {
		interrupt()
		if activeTurnCancel != nil {
			activeTurnCancel()
			activeTurnCancel = nil
		}
		turnID++
		currentTurnID := turnID
		mode := s.state.Mode()
		history := historyFrom(s.state.Log.Recent(s.cfg.HistoryWindow))
		s.state.Log.Append(csession.Entry{Speaker: csession.SpeakerUser, Text: userText, Mode: mode, At: s.now()})

		runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.CollaboratorTimeout)
		activeTurnCancel = cancel
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, runErr := s.brain.Respond(runCtx, userText, mode, history)
			select {
			case turnCh <- turnResult{turnID: currentTurnID, raw: reply, err: runErr}:
			case <-s.ctx.Done():
			}
		}()
	}

	escalate := func(reason string, withCall bool) {
		stopTimer(&countdownTimer, &countdownActive)
		s.metrics.RecordEscalation(reason)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Dispatch survives a dropped socket so a dying connection
			// cannot abort the relay.
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CollaboratorTimeout)
			defer cancel()
			var outcome relay.Outcome
			if s.relay != nil {
				outcome = s.relay.Escalate(ctx, s.state, reason, withCall)
			} else if s.state.BeginEscalation() {
				s.logger.Warn("escalation without telephony relay", "session_id", s.state.ID, "reason", reason)
				s.state.MarkEscalated()
				outcome = relay.Outcome{Triggered: true}
			}
			s.persistSnapshot(reason)
			select {
			case escalationCh <- escalationResult{reason: reason, outcome: outcome}:
			case <-s.ctx.Done():
			}
		}()
	}

	handleSafe := func() {
		if countdownActive {
			stopTimer(&countdownTimer, &countdownActive)
			if err := s.sendJSON(protocol.ServerTimerCancelled{Type: "timer_cancelled"}, true); err != nil {
				s.logger.Warn("failed to send timer_cancelled", "error", err)
			}
		}
		s.state.ResetEscalation()
		s.persistSnapshot("safe_confirmed")
		if err := s.sendJSON(protocol.ServerReportReady{Type: "report_ready", Reason: "safe_confirmed"}, false); err != nil {
			s.logger.Warn("failed to send report_ready", "error", err)
		}
	}

	applySignals := func(signals []crisis.Signal) {
		for _, sig := range signals {
			s.metrics.RecordSignal(string(sig))
			switch sig {
			case crisis.SignalSOS:
				escalate("signal_sos", true)
			case crisis.SignalCall:
				escalate("signal_call", true)
			case crisis.SignalTimer:
				resetTimer(&countdownTimer, &countdownActive, s.cfg.Countdown)
				if err := s.sendJSON(protocol.ServerTimerStarted{Type: "timer_started", DurationMS: s.cfg.Countdown.Milliseconds()}, true); err != nil {
					s.logger.Warn("failed to send timer_started", "error", err)
				}
			case crisis.SignalSafe:
				handleSafe()
			}
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			if err == nil {
				return nil
			}
			status = "error"
			return err
		case frame, ok := <-readCh:
			if !ok {
				watchdog.Disarm()
				return nil
			}
			if frame.err != nil {
				watchdog.Disarm()
				if websocket.IsUnexpectedCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					status = "error"
				}
				return nil
			}
			if frame.messageType == websocket.BinaryMessage {
				if err := s.handleAudio(frame.data, sttStream, inboundLimiter, watchdog); err != nil {
					status = "error"
					return flushAndClose()
				}
				continue
			}
			msg, decErr := protocol.DecodeClientMessage(frame.data)
			if decErr != nil {
				code, param := "bad_request", ""
				var de *protocol.DecodeError
				if errors.As(decErr, &de) {
					code, param = de.Code, de.Param
				}
				_ = s.sendError(code, decErr.Error(), param, true)
				status = "error"
				return flushAndClose()
			}
			switch m := msg.(type) {
			case protocol.ClientHello:
				_ = s.sendError("bad_request", "hello already completed", "", true)
				status = "error"
				return flushAndClose()
			case protocol.ClientAudioChunk:
				audio, err := base64.StdEncoding.DecodeString(m.DataB64)
				if err != nil {
					_ = s.sendError("bad_request", "invalid audio_chunk.data_b64", "data_b64", true)
					status = "error"
					return flushAndClose()
				}
				if err := s.handleAudio(audio, sttStream, inboundLimiter, watchdog); err != nil {
					status = "error"
					return flushAndClose()
				}
			case protocol.ClientText:
				watchdog.Observe()
				startTurn(m.Text)
			case protocol.ClientLocation:
				at := s.now()
				if m.TimestampMS > 0 {
					at = time.UnixMilli(m.TimestampMS)
				}
				s.state.Location.Update(csession.Location{Lat: m.Lat, Lon: m.Lon, At: at})
			case protocol.ClientSOS:
				watchdog.Observe()
				escalate("sos", true)
			case protocol.ClientHeartbeat:
				watchdog.Observe()
			case protocol.ClientControl:
				switch m.Op {
				case protocol.OpSilentOn:
					s.state.SetSilent(true)
					interrupt()
				case protocol.OpSilentOff:
					s.state.SetSilent(false)
				case protocol.OpCancelTimer:
					if countdownActive {
						stopTimer(&countdownTimer, &countdownActive)
						if err := s.sendJSON(protocol.ServerTimerCancelled{Type: "timer_cancelled"}, true); err != nil {
							s.logger.Warn("failed to send timer_cancelled", "error", err)
						}
					}
				case protocol.OpMarkSafe:
					handleSafe()
				case protocol.OpEndSession:
					watchdog.Disarm()
					_ = s.sendWarning("session_end", "session ending by client request")
					return flushAndClose()
				}
			}
		case delta, ok := <-sttStream.Transcripts():
			if !ok {
				_ = s.sendWarning("collaborator_error", "transcription stream ended")
				status = "error"
				return flushAndClose()
			}
			if !delta.IsFinal || delta.Text == "" {
				continue
			}
			startTurn(delta.Text)
		case <-watchdog.C():
			if !watchdog.Expire() {
				continue
			}
			s.metrics.RecordWatchdogFired()
			s.logger.Warn("silence watchdog fired", "session_id", s.state.ID)
			escalate("silence_watchdog", true)
		case <-countdownCh():
			countdownActive = false
			escalate("countdown", true)
		case tr := <-turnCh:
			if tr.turnID != turnID {
				continue
			}
			activeTurnCancel = nil
			if tr.err != nil {
				if errors.Is(tr.err, context.Canceled) {
					continue
				}
				s.metrics.RecordCollaboratorError("intelligence", errorType(tr.err))
				if errors.Is(tr.err, context.DeadlineExceeded) || errorType(tr.err) == string(core.ErrCollaboratorTimeout) {
					_ = s.sendWarning("collaborator_timeout", "intelligence backend timed out")
				} else {
					_ = s.sendWarning("collaborator_error", "intelligence backend failed")
				}
				continue
			}
			prevMode := s.state.Mode()
			res := crisis.Apply(prevMode, tr.raw)
			for _, warn := range res.Warnings {
				s.logger.Warn("stripped unrecognized control token", "session_id", s.state.ID, "detail", warn)
			}
			if res.Mode != prevMode && s.state.SetMode(res.Mode) {
				s.metrics.RecordModeTransition(string(prevMode), string(res.Mode))
				if err := s.sendJSON(protocol.ServerModeChanged{Type: "mode_changed", From: string(prevMode), To: string(res.Mode)}, true); err != nil {
					s.logger.Warn("failed to send mode_changed", "error", err)
				}
			}
			applySignals(res.Signals)
			if res.Clean == "" {
				continue
			}
			s.state.Log.Append(csession.Entry{Speaker: csession.SpeakerAssistant, Text: res.Clean, Mode: res.Mode, At: s.now()})
			utteranceID := s.nextUtteranceID()
			if err := s.sendJSON(protocol.ServerTextOut{Type: "text_out", UtteranceID: utteranceID, Text: res.Clean, Mode: string(res.Mode)}, false); err != nil {
				s.logger.Warn("failed to send text_out", "error", err)
				continue
			}
			if s.state.Silent() {
				continue
			}
			profile, err := s.state.Profile()
			if err != nil {
				s.logger.Error("voice profile lookup failed", "session_id", s.state.ID, "mode", res.Mode, "error", err)
				continue
			}
			activeUtteranceID = utteranceID
			speakCtx, cancel := context.WithTimeout(s.ctx, s.cfg.CollaboratorTimeout)
			activeSpeakCancel = cancel
			wg.Add(1)
			go func(turn int, uid, text string, p crisis.VoiceProfile) {
				defer wg.Done()
				s.speak(speakCtx, turn, uid, text, p, speakDoneCh)
			}(turnID, utteranceID, res.Clean, profile)
		case sr := <-speakDoneCh:
			if sr.utteranceID == activeUtteranceID {
				activeUtteranceID = ""
				if activeSpeakCancel != nil {
					activeSpeakCancel()
					activeSpeakCancel = nil
				}
			}
			if sr.err != nil && !sr.canceled {
				s.metrics.RecordCollaboratorError("speech-out", errorType(sr.err))
				_ = s.sendWarning("collaborator_error", "speech synthesis failed")
			}
		case er := <-escalationCh:
			if !er.outcome.Triggered {
				continue
			}
			if err := s.sendJSON(protocol.ServerEscalationNotice{
				Type:     "escalation_notice",
				Reason:   er.reason,
				Notified: er.outcome.Notified,
				Called:   er.outcome.Called,
			}, true); err != nil {
				s.logger.Warn("failed to send escalation_notice", "error", err)
			}
			if err := s.sendJSON(protocol.ServerReportReady{Type: "report_ready", Reason: er.reason}, false); err != nil {
				s.logger.Warn("failed to send report_ready", "error", err)
			}
		case <-sessionTimerCh():
			watchdog.Disarm()
			_ = s.sendWarning("session_timeout", "maximum session duration reached")
			return flushAndClose()
		}
	}
}

func (s *LiveSession) readLoop(readCh chan<- inboundFrame) {
	defer close(readCh)
	for {
		messageType, data, err := s.conn.ReadMessage()
		frame := inboundFrame{messageType: messageType, data: data, err: err}
		select {
		case readCh <- frame:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *LiveSession) handleAudio(audio []byte, stream stt.Stream, limiter *inboundAudioLimiter, watchdog *csession.Watchdog) error {
	if s.cfg.MaxAudioFrameBytes > 0 && len(audio) > s.cfg.MaxAudioFrameBytes {
		_ = s.sendError("bad_request", "audio frame exceeds max size", "", true)
		return fmt.Errorf("audio frame of %d bytes exceeds limit", len(audio))
	}
	if !limiter.Allow(len(audio)) {
		_ = s.sendError("rate_limited", "inbound audio rate limit exceeded", "", true)
		return fmt.Errorf("inbound audio rate limit exceeded")
	}
	if err := stream.SendAudio(audio); err != nil {
		s.metrics.RecordCollaboratorError("speech-in", errorType(err))
		_ = s.sendWarning("collaborator_error", "failed to forward audio frame")
		return err
	}
	s.metrics.RecordAudio("in", len(audio))
	watchdog.Observe()
	return nil
}

// speak renders one assistant reply and streams it out as framed chunks. The
// profile was captured when the reply was applied, so a mode change landing
// mid-flight does not mix profiles within the utterance.
func (s *LiveSession) speak(ctx context.Context, turnID int, utteranceID, text string, profile crisis.VoiceProfile, done chan<- speakResult) {
	result := speakResult{turnID: turnID, utteranceID: utteranceID}
	defer func() {
		select {
		case done <- result:
		case <-s.ctx.Done():
		}
	}()

	syn, err := s.tts.Synthesize(ctx, text, profile, tts.FormatBrowser)
	if err != nil {
		result.err = err
		result.canceled = errors.Is(err, context.Canceled) || s.isUtteranceCanceled(utteranceID)
		return
	}
	if s.isUtteranceCanceled(utteranceID) {
		result.canceled = true
		return
	}

	start := protocol.ServerAudioOutStart{
		Type:        "audio_out_start",
		UtteranceID: utteranceID,
		Encoding:    "mp3",
		Profile: protocol.VoiceProfileOut{
			VoiceID: profile.VoiceID,
			Style:   profile.Style,
			Rate:    profile.Rate,
			Pitch:   profile.Pitch,
		},
	}
	if err := s.enqueueAudioJSON(ctx, start, utteranceID); err != nil {
		result.err = err
		return
	}

	var seq int64
	for off := 0; off < len(syn.Audio); off += audioChunkBytes {
		end := off + audioChunkBytes
		if end > len(syn.Audio) {
			end = len(syn.Audio)
		}
		chunk := protocol.ServerAudioOutChunk{
			Type:        "audio_out_chunk",
			UtteranceID: utteranceID,
			Seq:         seq,
			AudioB64:    base64.StdEncoding.EncodeToString(syn.Audio[off:end]),
		}
		if err := s.enqueueAudioJSON(ctx, chunk, utteranceID); err != nil {
			result.err = err
			result.canceled = errors.Is(err, context.Canceled)
			return
		}
		s.metrics.RecordAudio("out", end-off)
		seq++
	}

	if err := s.enqueueAudioJSON(ctx, protocol.ServerAudioOutEnd{Type: "audio_out_end", UtteranceID: utteranceID}, utteranceID); err != nil {
		result.err = err
		result.canceled = errors.Is(err, context.Canceled)
		return
	}
}

func (s *LiveSession) sendHelloAck() error {
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.state.ID,
		Mode:            string(s.state.Mode()),
		AudioIn: protocol.AudioFormat{
			Encoding:     "linear16",
			SampleRateHz: s.hello.AudioIn.SampleRateHz,
			Channels:     1,
		},
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  s.cfg.MaxAudioFrameBytes,
			MaxJSONMessageBytes: int(s.cfg.MaxJSONMessageBytes),
			MaxAudioFPS:         s.cfg.MaxAudioFPS,
			MaxAudioBPS:         s.cfg.MaxAudioBPS,
			SilenceThresholdMS:  int(s.cfg.SilenceThreshold.Milliseconds()),
			CountdownMS:         int(s.cfg.Countdown.Milliseconds()),
		},
	}
	if ack.AudioIn.SampleRateHz <= 0 {
		ack.AudioIn.SampleRateHz = 16000
	}
	return s.sendJSON(ack, true)
}

func (s *LiveSession) sendError(code, message, param string, closeAfter bool) error {
	return s.sendJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Param: param, Close: closeAfter}, true)
}

func (s *LiveSession) sendWarning(code, message string) error {
	return s.sendJSON(protocol.ServerWarning{Type: "warning", Code: code, Message: message}, true)
}

// sendJSON encodes v and queues it on the writer. Priority frames preempt
// queued audio.
func (s *LiveSession) sendJSON(v any, priority bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueue(s.ctx, outboundFrame{payload: payload}, priority)
}

func (s *LiveSession) enqueueAudioJSON(ctx context.Context, v any, utteranceID string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, outboundFrame{payload: payload, isAudio: true, utteranceID: utteranceID}, false)
}

func (s *LiveSession) enqueue(ctx context.Context, frame outboundFrame, priority bool) error {
	queue := s.outboundNormal
	if priority {
		queue = s.outboundPriority
	}
	select {
	case queue <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *LiveSession) nextUtteranceID() string {
	return fmt.Sprintf("u_%d", s.utteranceCounter.Add(1))
}

// cancelUtteranceAudio marks an utterance so the writer drops its queued
// audio frames. The set is bounded; the oldest entries age out.
func (s *LiveSession) cancelUtteranceAudio(utteranceID string) {
	if utteranceID == "" {
		return
	}
	old := s.canceledUtterances.Load().(canceledUtteranceState)
	if _, ok := old.set[utteranceID]; ok {
		return
	}
	set := make(map[string]struct{}, len(old.set)+1)
	for id := range old.set {
		set[id] = struct{}{}
	}
	order := append(append([]string(nil), old.order...), utteranceID)
	set[utteranceID] = struct{}{}
	for len(order) > maxCanceledUtteranceIDs {
		delete(set, order[0])
		order = order[1:]
	}
	s.canceledUtterances.Store(canceledUtteranceState{set: set, order: order})
}

func (s *LiveSession) isUtteranceCanceled(utteranceID string) bool {
	if utteranceID == "" {
		return false
	}
	state := s.canceledUtterances.Load().(canceledUtteranceState)
	_, ok := state.set[utteranceID]
	return ok
}

// persistSnapshot captures the session for the incident record. Failures are
// logged, never surfaced to the session.
func (s *LiveSession) persistSnapshot(reason string) {
	if s.state.Log.Len() == 0 {
		return
	}
	snap := report.Snapshot{
		SessionID:  s.state.ID,
		UserName:   s.state.UserName(),
		CapturedAt: s.now(),
		Reason:     reason,
		Mode:       string(s.state.Mode()),
		Entries:    s.state.Log.Snapshot(),
	}
	if loc, ok := s.state.Location.Get(); ok {
		snap.Location = &loc
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.reporter.Append(ctx, snap); err != nil {
		s.logger.Error("failed to persist incident snapshot", "session_id", s.state.ID, "reason", reason, "error", err)
	}
}

func historyFrom(entries []csession.Entry) []brain.Message {
	out := make([]brain.Message, 0, len(entries))
	for _, e := range entries {
		role := brain.RoleUser
		if e.Speaker == csession.SpeakerAssistant {
			role = brain.RoleAssistant
		}
		out = append(out, brain.Message{Role: role, Content: e.Text})
	}
	return out
}

func errorType(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Type)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
