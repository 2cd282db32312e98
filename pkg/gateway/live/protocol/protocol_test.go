package protocol

import (
	"errors"
	"testing"
)

func decodeErr(t *testing.T, data string) *DecodeError {
	t.Helper()
	_, err := DecodeClientMessage([]byte(data))
	if err == nil {
		t.Fatalf("DecodeClientMessage(%s) = nil error", data)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error type=%T, want *DecodeError", err)
	}
	return de
}

func TestDecodeHello(t *testing.T) {
	data := `{"type":"hello","protocol_version":"1","user_name":"Maya",
		"contacts":[{"name":"Ana","phone":"+15550001"},{"phone":"+15550002"}],
		"audio_in":{"encoding":"linear16","sample_rate_hz":16000,"channels":1}}`
	msg, err := DecodeClientMessage([]byte(data))
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("type=%T, want ClientHello", msg)
	}
	if hello.UserName != "Maya" || len(hello.Contacts) != 2 {
		t.Fatalf("hello=%+v", hello)
	}
	if hello.Contacts[0].Phone != "+15550001" {
		t.Fatalf("primary phone=%q", hello.Contacts[0].Phone)
	}
}

func TestDecodeHelloMissingVersion(t *testing.T) {
	de := decodeErr(t, `{"type":"hello","audio_in":{"encoding":"linear16","sample_rate_hz":16000,"channels":1}}`)
	if de.Param != "protocol_version" {
		t.Fatalf("param=%q, want protocol_version", de.Param)
	}
}

func TestDecodeHelloUnsupportedEncoding(t *testing.T) {
	de := decodeErr(t, `{"type":"hello","protocol_version":"1","audio_in":{"encoding":"opus","sample_rate_hz":48000,"channels":1}}`)
	if de.Code != "unsupported" {
		t.Fatalf("code=%q, want unsupported", de.Code)
	}
}

func TestDecodeHelloContactWithoutPhone(t *testing.T) {
	de := decodeErr(t, `{"type":"hello","protocol_version":"1","contacts":[{"name":"Ana"}]}`)
	if de.Param != "contacts[0].phone" {
		t.Fatalf("param=%q", de.Param)
	}
}

func TestDecodeAudioChunk(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"audio_chunk","data_b64":"AAAA"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}
	if _, ok := msg.(ClientAudioChunk); !ok {
		t.Fatalf("type=%T, want ClientAudioChunk", msg)
	}

	de := decodeErr(t, `{"type":"audio_chunk"}`)
	if de.Param != "data_b64" {
		t.Fatalf("param=%q, want data_b64", de.Param)
	}
}

func TestDecodeText(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"text","text":"help"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}
	if txt := msg.(ClientText); txt.Text != "help" {
		t.Fatalf("text=%q", txt.Text)
	}

	de := decodeErr(t, `{"type":"text","text":"  "}`)
	if de.Param != "text" {
		t.Fatalf("param=%q, want text", de.Param)
	}
}

func TestDecodeLocationBounds(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"location","lat":40.7,"lon":-74.0}`)); err != nil {
		t.Fatalf("valid location rejected: %v", err)
	}
	de := decodeErr(t, `{"type":"location","lat":91,"lon":0}`)
	if de.Param != "lat" {
		t.Fatalf("param=%q, want lat", de.Param)
	}
	de = decodeErr(t, `{"type":"location","lat":0,"lon":-181}`)
	if de.Param != "lon" {
		t.Fatalf("param=%q, want lon", de.Param)
	}
}

func TestDecodeSOSAndHeartbeat(t *testing.T) {
	if msg, err := DecodeClientMessage([]byte(`{"type":"sos"}`)); err != nil {
		t.Fatalf("sos: %v", err)
	} else if _, ok := msg.(ClientSOS); !ok {
		t.Fatalf("type=%T, want ClientSOS", msg)
	}
	if msg, err := DecodeClientMessage([]byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	} else if _, ok := msg.(ClientHeartbeat); !ok {
		t.Fatalf("type=%T, want ClientHeartbeat", msg)
	}
}

func TestDecodeControlOps(t *testing.T) {
	for _, op := range []string{OpSilentOn, OpSilentOff, OpCancelTimer, OpMarkSafe, OpEndSession} {
		msg, err := DecodeClientMessage([]byte(`{"type":"control","op":"` + op + `"}`))
		if err != nil {
			t.Fatalf("control %q: %v", op, err)
		}
		if ctl := msg.(ClientControl); ctl.Op != op {
			t.Fatalf("op=%q, want %q", ctl.Op, op)
		}
	}

	de := decodeErr(t, `{"type":"control","op":"self_destruct"}`)
	if de.Code != "unsupported" {
		t.Fatalf("code=%q, want unsupported", de.Code)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	de := decodeErr(t, `{"type":"telemetry"}`)
	if de.Param != "type" {
		t.Fatalf("param=%q, want type", de.Param)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	de := decodeErr(t, `{not json`)
	if de.Code != "bad_request" {
		t.Fatalf("code=%q, want bad_request", de.Code)
	}
}
