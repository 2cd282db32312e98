// Package protocol defines the JSON frames exchanged on a live session
// websocket and the strict decoder for client frames.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the inbound live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// HelloContact is one emergency contact declared at handshake. The first
// contact is the primary.
type HelloContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
}

type ClientHello struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	UserName        string         `json:"user_name,omitempty"`
	Contacts        []HelloContact `json:"contacts,omitempty"`
	AudioIn         AudioFormat    `json:"audio_in"`
}

// ClientAudioChunk carries one base64 microphone frame. Binary websocket
// frames carry the same payload without the JSON envelope.
type ClientAudioChunk struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ClientText is a typed message, the covert alternative to speaking.
type ClientText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientLocation is one geolocation fix.
type ClientLocation struct {
	Type        string  `json:"type"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	TimestampMS int64   `json:"timestamp_ms,omitempty"`
}

// ClientSOS is the hardware or UI panic trigger.
type ClientSOS struct {
	Type string `json:"type"`
}

// ClientHeartbeat proves liveness without producing content.
type ClientHeartbeat struct {
	Type string `json:"type"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// Control operations.
const (
	OpSilentOn    = "silent_on"
	OpSilentOff   = "silent_off"
	OpCancelTimer = "cancel_timer"
	OpMarkSafe    = "mark_safe"
	OpEndSession  = "end_session"
)

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_chunk":
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_chunk.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "text":
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text.text is required", "text")
		}
		return msg, nil
	case "location":
		var msg ClientLocation
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid location frame", "")
		}
		if msg.Lat < -90 || msg.Lat > 90 {
			return nil, badRequest("location.lat must be within [-90, 90]", "lat")
		}
		if msg.Lon < -180 || msg.Lon > 180 {
			return nil, badRequest("location.lon must be within [-180, 180]", "lon")
		}
		return msg, nil
	case "sos":
		var msg ClientSOS
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid sos frame", "")
		}
		return msg, nil
	case "heartbeat":
		var msg ClientHeartbeat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid heartbeat frame", "")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case OpSilentOn, OpSilentOff, OpCancelTimer, OpMarkSafe, OpEndSession:
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	enc := strings.TrimSpace(msg.AudioIn.Encoding)
	switch enc {
	case "", "linear16":
	default:
		return unsupported("unsupported audio encoding", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz < 0 {
		return badRequest("hello.audio_in.sample_rate_hz must be >= 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels < 0 || msg.AudioIn.Channels > 1 {
		return badRequest("hello.audio_in.channels must be 0 or 1", "audio_in.channels")
	}
	for i, c := range msg.Contacts {
		if strings.TrimSpace(c.Phone) == "" {
			return badRequest("hello.contacts entries require a phone", fmt.Sprintf("contacts[%d].phone", i))
		}
	}
	return nil
}

type HelloAckLimits struct {
	MaxAudioFrameBytes  int   `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int   `json:"max_json_message_bytes"`
	MaxAudioFPS         int   `json:"max_audio_fps,omitempty"`
	MaxAudioBPS         int64 `json:"max_audio_bps,omitempty"`
	SilenceThresholdMS  int   `json:"silence_threshold_ms"`
	CountdownMS         int   `json:"countdown_ms"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Mode            string          `json:"mode"`
	AudioIn         AudioFormat     `json:"audio_in"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerTextOut is one cleaned assistant reply.
type ServerTextOut struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Mode        string `json:"mode"`
}

// VoiceProfileOut mirrors the active voice profile so the client can render
// consistent UI.
type VoiceProfileOut struct {
	VoiceID string `json:"voice_id"`
	Style   string `json:"style,omitempty"`
	Rate    int    `json:"rate"`
	Pitch   int    `json:"pitch"`
}

type ServerAudioOutStart struct {
	Type        string          `json:"type"`
	UtteranceID string          `json:"utterance_id"`
	Encoding    string          `json:"encoding"`
	Profile     VoiceProfileOut `json:"profile"`
}

type ServerAudioOutChunk struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Seq         int64  `json:"seq"`
	AudioB64    string `json:"audio_b64"`
}

type ServerAudioOutEnd struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
}

type ServerModeChanged struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type ServerTimerStarted struct {
	Type       string `json:"type"`
	DurationMS int64  `json:"duration_ms"`
}

type ServerTimerCancelled struct {
	Type string `json:"type"`
}

// ServerEscalationNotice tells the client an escalation episode has been
// dispatched.
type ServerEscalationNotice struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	Notified int    `json:"notified"`
	Called   bool   `json:"called"`
}

// ServerReportReady confirms an incident snapshot was persisted.
type ServerReportReady struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
