package session

import (
	"sync"
	"time"

	"github.com/vigil-live/vigil/pkg/core/crisis"
)

// Speaker identifies who produced a log entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerContact   Speaker = "contact"
)

// Entry is one immutable line of the conversation timeline. Text is always
// cleaned of control tokens; Mode records the mode in effect after the entry
// was applied.
type Entry struct {
	Speaker Speaker
	Text    string
	Mode    crisis.Mode
	At      time.Time
}

// Log is the append-only conversation record. Appends are serialized through
// one mutex so the insertion order is the canonical timeline across all
// duties; entries are never mutated after the append.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// Append adds one entry and returns its index.
func (l *Log) Append(e Entry) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return len(l.entries) - 1
}

// Snapshot returns a copy of the log at this instant.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Recent returns a copy of up to n trailing entries.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}
