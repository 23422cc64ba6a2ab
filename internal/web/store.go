package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ConvoChat/internal/chatbot"
	"ConvoChat/internal/config"
	"ConvoChat/internal/session"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for identifiers this store never issued
var ErrUnknownSession = errors.New("unknown session")

// Factory builds the conversation for a newly seen session
type Factory func(sess *session.Session) (*chatbot.Conversation, error)

// entry is one issued session. conv stays nil until the browser opens the
// chat connection.
type entry struct {
	conv     *chatbot.Conversation
	lastUsed time.Time
	active   int
}

// Store holds one conversation per browser session. Identifiers are issued by
// the store, a session's conversation is built on first chat use, and sessions
// idle for longer than the TTL are dropped by Sweep.
type Store struct {
	entries map[string]*entry
	build   Factory
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

// NewStore creates an empty store. A non-positive ttl uses config.DefaultSessionTTL.
func NewStore(build Factory, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		build:   build,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue allocates a new session identifier
func (s *Store) Issue() string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry{lastUsed: s.now()}
	return id
}

// Lookup reports whether id was issued and returns its conversation if one
// has been built. It never builds one.
func (s *Store) Lookup(id string) (*chatbot.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.conv, true
}

// Acquire returns the conversation for an issued id, building it if needed.
// The session is not evicted until release is called.
func (s *Store) Acquire(id string) (*chatbot.Conversation, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil, ErrUnknownSession
	}
	if e.conv == nil {
		conv, err := s.build(session.NewWithID(id, config.ShellWeb))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create conversation for session %s: %w", id, err)
		}
		e.conv = conv
	}
	e.active++
	e.lastUsed = s.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.active--
			e.lastUsed = s.now()
		})
	}
	return e.conv, release, nil
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed. Sessions with an open chat connection are kept.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, e := range s.entries {
		if e.active > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled
func (s *Store) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("evicted idle sessions", "count", n, "remaining", s.Count())
			}
		}
	}
}

// Count returns the number of issued sessions still held
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Conversations returns how many sessions have a built conversation
func (s *Store) Conversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.conv != nil {
			n++
		}
	}
	return n
}
