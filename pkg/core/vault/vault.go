// Package vault persists incident snapshots to an embedded SQLite database
// so a record survives the session and the process.
package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vigil-live/vigil/pkg/core/crisis"
	"github.com/vigil-live/vigil/pkg/core/report"
	"github.com/vigil-live/vigil/pkg/core/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	user_name   TEXT NOT NULL,
	captured_at TEXT NOT NULL,
	reason      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	lat         REAL,
	lon         REAL,
	entries     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_session ON incidents(session_id);
`

// Store is a SQLite-backed incident vault.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the vault at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply vault schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type storedEntry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	Mode    string    `json:"mode"`
	At      time.Time `json:"at"`
}

// Append persists one snapshot.
func (s *Store) Append(ctx context.Context, snap report.Snapshot) error {
	entries := make([]storedEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		entries[i] = storedEntry{
			Speaker: string(e.Speaker),
			Text:    e.Text,
			Mode:    string(e.Mode),
			At:      e.At,
		}
	}
	blob, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}

	var lat, lon any
	if snap.Location != nil {
		lat, lon = snap.Location.Lat, snap.Location.Lon
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (session_id, user_name, captured_at, reason, mode, lat, lon, entries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.UserName, snap.CapturedAt.UTC().Format(time.RFC3339Nano),
		snap.Reason, snap.Mode, lat, lon, string(blob))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Incident is one persisted snapshot read back from the vault.
type Incident struct {
	ID         int64
	SessionID  string
	UserName   string
	CapturedAt time.Time
	Reason     string
	Mode       string
	Location   *session.Location
	Entries    []session.Entry
}

// BySession returns all incidents for a session, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_name, captured_at, reason, mode, lat, lon, entries
		FROM incidents WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var (
			inc      Incident
			captured string
			lat, lon sql.NullFloat64
			blob     string
		)
		if err := rows.Scan(&inc.ID, &inc.SessionID, &inc.UserName, &captured,
			&inc.Reason, &inc.Mode, &lat, &lon, &blob); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.CapturedAt, err = time.Parse(time.RFC3339Nano, captured)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		if lat.Valid && lon.Valid {
			inc.Location = &session.Location{Lat: lat.Float64, Lon: lon.Float64}
		}
		var entries []storedEntry
		if err := json.Unmarshal([]byte(blob), &entries); err != nil {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		inc.Entries = make([]session.Entry, len(entries))
		for i, e := range entries {
			inc.Entries[i] = session.Entry{
				Speaker: session.Speaker(e.Speaker),
				Text:    e.Text,
				Mode:    crisis.Mode(e.Mode),
				At:      e.At,
			}
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
