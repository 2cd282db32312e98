package session

import (
	"fmt"
	"sync"
	"time"
)

// Location is one geolocation fix.
type Location struct {
	Lat float64
	Lon float64
	At  time.Time
}

// MapLink renders a maps URL for the fix.
func (l Location) MapLink() string {
	return fmt.Sprintf("https://maps.google.com/?q=%f,%f", l.Lat, l.Lon)
}

// LocationStore holds the most recent fix for a session. Last-write-wins by
// fix timestamp, so updates arriving out of order resolve to the newest fix.
// A never-set store reports explicitly unknown, never a default coordinate.
type LocationStore struct {
	mu    sync.Mutex
	last  Location
	known bool
}

// Update records a fix. Fixes older than the stored one are dropped.
func (s *LocationStore) Update(loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known && loc.At.Before(s.last.At) {
		return
	}
	s.last = loc
	s.known = true
}

// Get returns the most recent fix. ok is false while the location is unknown.
func (s *LocationStore) Get() (loc Location, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.known
}
