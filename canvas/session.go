package canvas

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBitmapWidth  = 800
	defaultBitmapHeight = 800
	defaultSessionTTL   = 30 * time.Minute
)

var ErrSessionNotFound = errors.New("canvas: session not found")

// Session is one drawing surface owned by a single front-end page.
type Session struct {
	ID        string
	Surface   *Surface
	CreatedAt time.Time
	lastUsed  time.Time
	// attached counts live SSE and websocket subscribers; Sweep never
	// evicts an attached session.
	attached int
}

// Registry keeps the live sessions and evicts idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	width  int
	height int
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistry creates a registry whose sessions default to width x height.
func NewRegistry(width, height int, ttl time.Duration) *Registry {
	if width <= 0 {
		width = defaultBitmapWidth
	}
	if height <= 0 {
		height = defaultBitmapHeight
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		width:    width,
		height:   height,
		ttl:      ttl,
		now:      time.Now,
	}
}

// NewRegistryFromEnv reads CANVAS_WIDTH, CANVAS_HEIGHT and CANVAS_SESSION_TTL.
func NewRegistryFromEnv() (*Registry, error) {
	width, err := envInt("CANVAS_WIDTH", defaultBitmapWidth)
	if err != nil {
		return nil, err
	}
	height, err := envInt("CANVAS_HEIGHT", defaultBitmapHeight)
	if err != nil {
		return nil, err
	}
	if width > maxBitmapSide || height > maxBitmapSide {
		return nil, ErrInvalidSize
	}

	ttl := defaultSessionTTL
	if raw := strings.TrimSpace(os.Getenv("CANVAS_SESSION_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("canvas: invalid CANVAS_SESSION_TTL %q", raw)
		}
		ttl = parsed
	}
	return NewRegistry(width, height, ttl), nil
}

// envInt reads a positive integer from key, falling back when unset.
func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("canvas: invalid %s value %q", key, raw)
	}
	return value, nil
}

// Create opens a new session. Zero dimensions fall back to the registry
// defaults.
func (r *Registry) Create(width, height int) (*Session, error) {
	if width <= 0 {
		width = r.width
	}
	if height <= 0 {
		height = r.height
	}
	surface, err := NewSurface(width, height)
	if err != nil {
		return nil, err
	}

	now := r.now()
	session := &Session{
		ID:        uuid.NewString(),
		Surface:   surface,
		CreatedAt: now,
		lastUsed:  now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	trimmed := strings.TrimSpace(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[trimmed]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.lastUsed = r.now()
	return session, nil
}

// Touch marks a session as used without returning it. It reports whether the
// session is still live.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if !ok {
		return false
	}
	session.lastUsed = r.now()
	return true
}

// Attach pins a session for the lifetime of a streaming subscriber. The
// returned release func must be called once the subscriber goes away; it
// refreshes the idle clock so the TTL restarts from the disconnect.
func (r *Registry) Attach(id string) (*Session, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	session.attached++
	session.lastUsed = r.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if session.attached > 0 {
				session.attached--
			}
			session.lastUsed = r.now()
		})
	}
	return session, release, nil
}

// Lookup exposes a session's surface through the Canvas capability.
func (r *Registry) Lookup(id string) (Canvas, bool) {
	session, err := r.Get(id)
	if err != nil {
		return nil, false
	}
	return session.Surface, true
}

// Remove drops a session and closes its event subscribers.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if ok {
		delete(r.sessions, session.ID)
	}
	r.mu.Unlock()
	if ok {
		session.Surface.events.closeAll()
	}
	return ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL. Sessions with an
// attached subscriber are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if session.attached == 0 && session.lastUsed.Before(cutoff) {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Surface.events.closeAll()
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Printf("canvas: evicted %d idle sessions", n)
			}
		}
	}
}
