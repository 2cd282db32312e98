package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramProvider implements the STT Provider interface using Deepgram's
// live transcription websocket.
type DeepgramProvider struct {
	apiKey string
	wsURL  string
	dialer *websocket.Dialer
}

// NewDeepgram creates a new Deepgram STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey: apiKey,
		wsURL:  deepgramWSURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// NewDeepgramWithURL creates a provider pointed at a custom endpoint.
func NewDeepgramWithURL(apiKey, wsURL string) *DeepgramProvider {
	p := NewDeepgram(apiKey)
	p.wsURL = wsURL
	return p
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

// NewStream opens a live transcription websocket. Audio is sent incrementally
// via SendAudio; deltas arrive on Transcripts.
func (p *DeepgramProvider) NewStream(ctx context.Context, opts StreamOptions) (Stream, error) {
	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	q := u.Query()
	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	q.Set("model", model)

	language := opts.Language
	if language == "" {
		language = "en"
	}
	q.Set("language", language)

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	q.Set("encoding", encoding)

	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("channels", "1")

	// Interim results keep the silence watchdog honest while the user is
	// mid-sentence; endpointing marks turn boundaries.
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("endpointing", "300")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:        conn,
		transcripts: make(chan TranscriptDelta, 100),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.readLoop()
	return s, nil
}

type deepgramStream struct {
	conn        *websocket.Conn
	transcripts chan TranscriptDelta
	done        chan struct{}
	closed      atomic.Bool
	writeMu     sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type deepgramResult struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer func() {
		close(s.transcripts)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg deepgramResult
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			delta := TranscriptDelta{
				Text:        text,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
			}
			select {
			case s.transcripts <- delta:
			case <-s.ctx.Done():
				return
			}

		case "Metadata":
			// Sent on stream close.
			return
		}
	}
}

// SendAudio pushes a raw frame upstream in the encoding declared at open.
func (s *deepgramStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio into a final result.
func (s *deepgramStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

// Transcripts returns the delta channel; closed when the stream ends.
func (s *deepgramStream) Transcripts() <-chan TranscriptDelta {
	return s.transcripts
}

// Done is closed when the stream ends.
func (s *deepgramStream) Done() <-chan struct{} {
	return s.done
}

// Close shuts the stream down gracefully.
func (s *deepgramStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
