package relay

import (
	"sync"

	"github.com/vigil-live/vigil/pkg/core"
	"github.com/vigil-live/vigil/pkg/core/brain"
)

// Incident carries the session context a telephony bridge needs when the
// primary contact answers. The dial URL carries an opaque token; the bridge
// handler resolves it here instead of reaching into live session state.
type Incident struct {
	SessionID string
	UserName  string
	Summary   string
	MapLink   string
	History   []brain.Message
}

// Registry maps one-time bridge tokens to incident context.
type Registry struct {
	mu        sync.Mutex
	incidents map[string]Incident
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{incidents: make(map[string]Incident)}
}

// Register stores the incident and returns its bridge token.
func (r *Registry) Register(inc Incident) string {
	token := core.RandHex(16)
	r.mu.Lock()
	r.incidents[token] = inc
	r.mu.Unlock()
	return token
}

// Lookup resolves a bridge token.
func (r *Registry) Lookup(token string) (Incident, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[token]
	return inc, ok
}

// Release drops a token once the bridge call ends.
func (r *Registry) Release(token string) {
	r.mu.Lock()
	delete(r.incidents, token)
	r.mu.Unlock()
}
