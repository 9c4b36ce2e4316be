package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
)

var (
	errSessionNotFound = errors.New("api: chat session not found")
	errTokenMismatch   = errors.New("api: session token mismatch")
	errRegistryFull    = errors.New("api: too many live chat sessions")
)

// registry owns every live chat session. Each session is reachable only by
// its ID together with the token handed out at creation.
type registry struct {
	ttl time.Duration
	max int

	mu      sync.Mutex
	entries map[uuid.UUID]*registryEntry
}

type registryEntry struct {
	session   *chat.Session
	tokenHash [sha256.Size]byte
	lastSeen  time.Time
}

func newRegistry(ttl time.Duration, max int) *registry {
	return &registry{ttl: ttl, max: max, entries: make(map[uuid.UUID]*registryEntry)}
}

// add registers a session. Idle sessions past the TTL are evicted first; if
// the registry is still full, errRegistryFull is returned.
func (g *registry) add(s *chat.Session, token string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweepLocked(now)
	if len(g.entries) >= g.max {
		return errRegistryFull
	}
	g.entries[s.ID()] = &registryEntry{session: s, tokenHash: hashToken(token), lastSeen: now}
	return nil
}

// lookup returns the session for id if token matches, refreshing its idle
// timer.
func (g *registry) lookup(id uuid.UUID, token string, now time.Time) (*chat.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok || g.expired(e, now) {
		return nil, errSessionNotFound
	}
	h := hashToken(token)
	if subtle.ConstantTimeCompare(h[:], e.tokenHash[:]) != 1 {
		return nil, errTokenMismatch
	}
	e.lastSeen = now
	return e.session, nil
}

// expired reports whether e has been idle past the TTL. A session with a
// reply in flight never expires.
func (g *registry) expired(e *registryEntry, now time.Time) bool {
	return now.Sub(e.lastSeen) > g.ttl && !e.session.Busy()
}

func (g *registry) sweepLocked(now time.Time) {
	for id, e := range g.entries {
		if g.expired(e, now) {
			delete(g.entries, id)
		}
	}
}
