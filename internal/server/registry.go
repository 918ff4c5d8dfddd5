// Package server implements the session registry, the authoritative
// in-memory table of currently connected sessions and their last known
// locations.
package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrDuplicateSession is returned when a session identifier is already
	// registered. The transport assigns unique identifiers per connection,
	// so hitting this indicates a transport invariant violation.
	ErrDuplicateSession = errors.New("session already registered")

	// ErrUnknownSession is returned when an operation references a session
	// absent from the registry, e.g. a location report that raced with a
	// disconnect.
	ErrUnknownSession = errors.New("unknown session")
)

// Registry maps session identifiers to live sessions. All access is guarded
// by a read-write mutex; mutations additionally funnel through the hub's
// event loop, so there is exactly one writer at a time. The registry is the
// single source of truth for who is connected and where.
type Registry struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. The clock stamps each session's
// connection time and is injectable for tests.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// Register creates a session with no location under the given identifier
// and returns a copy of it. It fails with ErrDuplicateSession if the
// identifier is already present; the existing session is left untouched.
func (r *Registry) Register(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return Session{}, fmt.Errorf("register %q: %w", id, ErrDuplicateSession)
	}

	s := &Session{ID: id, ConnectedAt: r.clock.Now()}
	r.sessions[id] = s
	return *s, nil
}

// UpdateLocation sets the session's coordinates and returns a copy of the
// updated session. It fails with ErrUnknownSession if the identifier is
// absent, which callers must treat as a no-op rather than a fault: reports
// can legitimately arrive after a disconnect.
func (r *Registry) UpdateLocation(id string, lat, lon float64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return Session{}, fmt.Errorf("update location %q: %w", id, ErrUnknownSession)
	}

	// Fresh pointers so previously taken snapshots keep their values.
	s.Latitude = &lat
	s.Longitude = &lon
	return *s, nil
}

// Remove deletes the session and returns a copy of its final state. It
// fails with ErrUnknownSession if the identifier is absent, making
// duplicate disconnects detectable without being fatal.
func (r *Registry) Remove(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return Session{}, fmt.Errorf("remove %q: %w", id, ErrUnknownSession)
	}

	delete(r.sessions, id)
	return *s, nil
}

// Snapshot returns a point-in-time copy of every session. The copy is taken
// under the read lock, so no session can appear half-updated in the result.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
