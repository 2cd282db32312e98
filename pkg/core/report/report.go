// Package report defines the incident record persisted when a session
// escalates or ends.
package report

import (
	"context"
	"time"

	"github.com/vigil-live/vigil/pkg/core/session"
)

// Snapshot is a point-in-time capture of a session, taken at escalation and
// at session end. Entries are the conversation log in timeline order.
type Snapshot struct {
	SessionID  string
	UserName   string
	CapturedAt time.Time
	Reason     string
	Mode       string
	Location   *session.Location
	Entries    []session.Entry
}

// Reporter persists incident snapshots.
type Reporter interface {
	Append(ctx context.Context, snap Snapshot) error
}

// Discard is a Reporter that drops snapshots, used when no vault is
// configured.
type Discard struct{}

// Append implements Reporter.
func (Discard) Append(context.Context, Snapshot) error { return nil }
