// Package session holds the in-memory state of one live crisis session: the
// root aggregate, the append-only conversation log, the location store, and
// the silence watchdog. All state shares the session's lifetime exactly.
package session

import (
	"strings"
	"sync"

	"github.com/vigil-live/vigil/pkg/core/crisis"
)

// Contact is one emergency contact. Contacts are ordered; the first is the
// primary and receives the live call bridge.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// EscalationState tracks the at-most-once escalation episode.
type EscalationState int

const (
	EscalationIdle EscalationState = iota
	EscalationEscalating
	EscalationEscalated
)

// State is the root aggregate for one connection. Mode, escalation state,
// and profile reads go through one mutex so transitions are atomic and a
// synthesis request started under mode M keeps M's profile snapshot even if
// the mode changes mid-flight.
type State struct {
	ID string

	Log      Log
	Location LocationStore

	mu         sync.Mutex
	mode       crisis.Mode
	userName   string
	contacts   []Contact
	silent     bool
	escalation EscalationState
	summary    string
}

// NewState creates a session starting in DEFAULT mode.
func NewState(id string) *State {
	return &State{ID: id, mode: crisis.ModeDefault}
}

// Mode returns the current crisis mode.
func (s *State) Mode() crisis.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode transitions to mode and reports whether it changed.
func (s *State) SetMode(mode crisis.Mode) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == mode {
		return false
	}
	s.mode = mode
	return true
}

// Profile returns the active voice profile for the current mode.
func (s *State) Profile() (crisis.VoiceProfile, error) {
	return crisis.Lookup(s.Mode())
}

// SetUserName records the user's display name.
func (s *State) SetUserName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name = strings.TrimSpace(name); name != "" {
		s.userName = name
	}
}

// UserName returns the display name, defaulting to "User".
func (s *State) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userName == "" {
		return "User"
	}
	return s.userName
}

// SetContacts replaces the ordered emergency contact list. Entries without a
// phone number are dropped.
func (s *State) SetContacts(contacts []Contact) {
	kept := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		c.Phone = strings.TrimSpace(c.Phone)
		c.Name = strings.TrimSpace(c.Name)
		if c.Phone == "" {
			continue
		}
		if c.Name == "" {
			c.Name = "Contact"
		}
		kept = append(kept, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = kept
}

// Contacts returns a copy of the contact list.
func (s *State) Contacts() []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Contact, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// SetSilent toggles covert text-only interaction.
func (s *State) SetSilent(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = on
}

// Silent reports whether synthesis output is suppressed.
func (s *State) Silent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silent
}

// SetSummary records a one-line situation summary used in escalation
// briefings.
func (s *State) SetSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary = strings.TrimSpace(summary); summary != "" {
		s.summary = summary
	}
}

// Summary returns the recorded situation summary, possibly empty.
func (s *State) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// BeginEscalation claims the current episode. It reports true only for the
// first trigger; once escalating or escalated, later triggers are no-ops
// until ResetEscalation.
func (s *State) BeginEscalation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.escalation != EscalationIdle {
		return false
	}
	s.escalation = EscalationEscalating
	return true
}

// MarkEscalated records that dispatch completed for the current episode.
func (s *State) MarkEscalated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalation = EscalationEscalated
}

// ResetEscalation closes the episode, re-enabling future escalation. Called
// when the user confirms safety.
func (s *State) ResetEscalation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalation = EscalationIdle
}

// Escalation returns the current escalation state.
func (s *State) Escalation() EscalationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalation
}
