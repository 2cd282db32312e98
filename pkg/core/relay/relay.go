package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/session"
)

// Relay dispatches escalations. One Relay is shared by all sessions.
type Relay struct {
	tel        Telephony
	registry   *Registry
	publicHost string
	logger     *slog.Logger
}

// New creates a Relay. publicHost is the externally reachable host used to
// build bridge stream URLs.
func New(tel Telephony, registry *Registry, publicHost string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{tel: tel, registry: registry, publicHost: publicHost, logger: logger}
}

// Outcome reports what one escalation episode dispatched.
type Outcome struct {
	// Triggered is false when the session was already escalating or
	// escalated; nothing was dispatched.
	Triggered bool
	// Notified counts contacts whose text notification succeeded.
	Notified int
	// Called is true when the live bridge call to the primary was placed.
	Called bool
	// BridgeToken resolves the incident on the bridge endpoint; empty when
	// no call was placed.
	BridgeToken string
}

// Escalate runs one escalation episode: claim the session's episode, text
// every contact, bridge a live call to the primary when withCall is set, and
// announce to the remaining contacts. Per-contact failures are logged and
// never block the other contacts. Repeat triggers while an episode is open
// are no-ops.
func (r *Relay) Escalate(ctx context.Context, st *session.State, reason string, withCall bool) Outcome {
	if !st.BeginEscalation() {
		return Outcome{}
	}

	contacts := st.Contacts()
	if len(contacts) == 0 {
		r.logger.Warn("escalation with no contacts", "session_id", st.ID, "reason", reason)
		st.MarkEscalated()
		return Outcome{Triggered: true}
	}

	mapLink := ""
	if loc, ok := st.Location.Get(); ok {
		mapLink = loc.MapLink()
	}
	body := r.notificationBody(st.UserName(), reason, st.Summary(), mapLink)

	out := Outcome{Triggered: true}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range contacts {
		wg.Add(1)
		go func(c session.Contact) {
			defer wg.Done()
			if err := r.tel.SendNotification(ctx, c.Phone, body); err != nil {
				r.logger.Error("escalation notify failed",
					"session_id", st.ID, "contact", c.Name,
					"error", core.NewDispatchError(c.Name, err))
				return
			}
			mu.Lock()
			out.Notified++
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	if withCall {
		token := r.registry.Register(Incident{
			SessionID: st.ID,
			UserName:  st.UserName(),
			Summary:   st.Summary(),
			MapLink:   mapLink,
			History:   historyFrom(st.Log.Recent(20)),
		})
		bridgeURL := fmt.Sprintf("wss://%s/v1/bridge?token=%s", r.publicHost, token)
		if err := r.tel.Dial(ctx, contacts[0].Phone, bridgeURL); err != nil {
			r.logger.Error("escalation dial failed",
				"session_id", st.ID, "contact", contacts[0].Name,
				"error", core.NewDispatchError(contacts[0].Name, err))
			r.registry.Release(token)
		} else {
			out.Called = true
			out.BridgeToken = token
		}

		announce := r.announceMessage(st.UserName())
		for _, c := range contacts[1:] {
			if err := r.tel.Announce(ctx, c.Phone, announce); err != nil {
				r.logger.Error("escalation announce failed",
					"session_id", st.ID, "contact", c.Name,
					"error", core.NewDispatchError(c.Name, err))
			}
		}
	}

	st.MarkEscalated()
	r.logger.Info("escalation dispatched",
		"session_id", st.ID, "reason", reason,
		"notified", out.Notified, "called", out.Called)
	return out
}

func (r *Relay) notificationBody(userName, reason, summary, mapLink string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "VIGIL ALERT: %s may be in danger (%s).", userName, reason)
	if summary != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(summary, "."))
	}
	if mapLink != "" {
		fmt.Fprintf(&b, " Last known location: %s", mapLink)
	} else {
		b.WriteString(" Location unknown.")
	}
	return b.String()
}

func (r *Relay) announceMessage(userName string) string {
	return fmt.Sprintf("This is Vigil, an automated safety service. %s may be in danger and has stopped responding. Please check the text message we sent you and try to reach them.", userName)
}

func historyFrom(entries []session.Entry) []brain.Message {
	out := make([]brain.Message, 0, len(entries))
	for _, e := range entries {
		role := brain.RoleUser
		if e.Speaker == session.SpeakerAssistant {
			role = brain.RoleAssistant
		}
		out = append(out, brain.Message{Role: role, Content: e.Text})
	}
	return out
}
