package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigil-live/vigil/pkg/core/session"
)

type fakeTelephony struct {
	mu        sync.Mutex
	texts     map[string]string
	dials     map[string]string
	announces map[string]string
	textErr   map[string]error
	dialErr   error
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{
		texts:     make(map[string]string),
		dials:     make(map[string]string),
		announces: make(map[string]string),
		textErr:   make(map[string]error),
	}
}

func (f *fakeTelephony) SendNotification(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.textErr[to]; err != nil {
		return err
	}
	f.texts[to] = body
	return nil
}

func (f *fakeTelephony) Dial(ctx context.Context, to, bridgeURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return f.dialErr
	}
	f.dials[to] = bridgeURL
	return nil
}

func (f *fakeTelephony) Announce(ctx context.Context, to, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announces[to] = message
	return nil
}

func testState() *session.State {
	st := session.NewState("sess-1")
	st.SetUserName("Maya")
	st.SetContacts([]session.Contact{
		{Name: "Ana", Phone: "+15550001"},
		{Name: "Ben", Phone: "+15550002"},
		{Name: "Cy", Phone: "+15550003"},
	})
	st.Location.Update(session.Location{Lat: 40.7, Lon: -74.0, At: time.Now()})
	return st
}

func testRelay(tel Telephony) (*Relay, *Registry) {
	reg := NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(tel, reg, "vigil.example.com", logger), reg
}

func TestEscalateNotifiesAllAndDialsPrimary(t *testing.T) {
	tel := newFakeTelephony()
	r, reg := testRelay(tel)
	st := testState()

	out := r.Escalate(context.Background(), st, "silence_watchdog", true)
	if !out.Triggered {
		t.Fatalf("escalation not triggered")
	}
	if out.Notified != 3 {
		t.Fatalf("notified=%d, want 3", out.Notified)
	}
	if !out.Called {
		t.Fatalf("primary was not called")
	}

	body := tel.texts["+15550001"]
	for _, want := range []string{"Maya", "maps.google.com"} {
		if !strings.Contains(body, want) {
			t.Fatalf("notification=%q, missing %q", body, want)
		}
	}

	bridgeURL, ok := tel.dials["+15550001"]
	if !ok {
		t.Fatalf("dials=%v, want primary +15550001", tel.dials)
	}
	if !strings.HasPrefix(bridgeURL, "wss://vigil.example.com/v1/bridge?token=") {
		t.Fatalf("bridge URL=%q", bridgeURL)
	}
	if _, ok := reg.Lookup(out.BridgeToken); !ok {
		t.Fatalf("bridge token %q not registered", out.BridgeToken)
	}

	if len(tel.dials) != 1 {
		t.Fatalf("dials=%d, want only the primary", len(tel.dials))
	}
	if _, ok := tel.announces["+15550002"]; !ok {
		t.Fatalf("secondary Ben got no announcement")
	}
	if _, ok := tel.announces["+15550003"]; !ok {
		t.Fatalf("secondary Cy got no announcement")
	}

	if st.Escalation() != session.EscalationEscalated {
		t.Fatalf("escalation state=%v, want escalated", st.Escalation())
	}
}

func TestEscalateIdempotentPerEpisode(t *testing.T) {
	tel := newFakeTelephony()
	r, _ := testRelay(tel)
	st := testState()

	first := r.Escalate(context.Background(), st, "sos_signal", false)
	second := r.Escalate(context.Background(), st, "sos_signal", false)
	if !first.Triggered {
		t.Fatalf("first escalation not triggered")
	}
	if second.Triggered {
		t.Fatalf("second escalation triggered while episode open")
	}
	if len(tel.texts) != 3 {
		t.Fatalf("texts=%d, want 3 (no re-sends)", len(tel.texts))
	}

	st.ResetEscalation()
	third := r.Escalate(context.Background(), st, "sos_signal", false)
	if !third.Triggered {
		t.Fatalf("escalation after reset not triggered")
	}
}

func TestEscalateContactFailureDoesNotBlockOthers(t *testing.T) {
	tel := newFakeTelephony()
	tel.textErr["+15550002"] = errors.New("unreachable")
	r, _ := testRelay(tel)
	st := testState()

	out := r.Escalate(context.Background(), st, "panic_signal", false)
	if out.Notified != 2 {
		t.Fatalf("notified=%d, want 2 with one failure", out.Notified)
	}
	if _, ok := tel.texts["+15550003"]; !ok {
		t.Fatalf("contact after the failing one was skipped")
	}
	if st.Escalation() != session.EscalationEscalated {
		t.Fatalf("failure rolled back escalation state")
	}
}

func TestEscalateDialFailureReleasesToken(t *testing.T) {
	tel := newFakeTelephony()
	tel.dialErr = errors.New("no answer")
	r, reg := testRelay(tel)
	st := testState()

	out := r.Escalate(context.Background(), st, "call_signal", true)
	if out.Called {
		t.Fatalf("Called=true despite dial failure")
	}
	if out.BridgeToken != "" {
		t.Fatalf("token=%q, want empty on dial failure", out.BridgeToken)
	}
	reg.mu.Lock()
	n := len(reg.incidents)
	reg.mu.Unlock()
	if n != 0 {
		t.Fatalf("registry holds %d incidents, want 0 after release", n)
	}
}

func TestEscalateNoContacts(t *testing.T) {
	tel := newFakeTelephony()
	r, _ := testRelay(tel)
	st := session.NewState("sess-lonely")

	out := r.Escalate(context.Background(), st, "sos_signal", true)
	if !out.Triggered {
		t.Fatalf("escalation not marked triggered")
	}
	if out.Notified != 0 || out.Called {
		t.Fatalf("outcome=%+v, want nothing dispatched", out)
	}
}

func TestEscalateLocationUnknown(t *testing.T) {
	tel := newFakeTelephony()
	r, _ := testRelay(tel)
	st := session.NewState("sess-2")
	st.SetContacts([]session.Contact{{Name: "Ana", Phone: "+15550001"}})

	r.Escalate(context.Background(), st, "sos_signal", false)
	if body := tel.texts["+15550001"]; !strings.Contains(body, "Location unknown") {
		t.Fatalf("notification=%q, want explicit unknown location", body)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	token := reg.Register(Incident{SessionID: "s", UserName: "Maya"})
	if token == "" {
		t.Fatalf("empty token")
	}
	inc, ok := reg.Lookup(token)
	if !ok || inc.UserName != "Maya" {
		t.Fatalf("lookup=%+v ok=%v", inc, ok)
	}
	reg.Release(token)
	if _, ok := reg.Lookup(token); ok {
		t.Fatalf("token survived release")
	}
}
