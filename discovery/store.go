package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvakili/kashef/internal/metrics"
)

const (
	// DefaultStateTTL is how long an inactive conversation survives before
	// the janitor evicts it. Conversations are bounded to five turns, so
	// anything older is abandoned.
	DefaultStateTTL = 15 * time.Minute

	// terminalTTL keeps concluded conversations around long enough for
	// idempotent redelivery of the final answer.
	terminalTTL = time.Minute
)

type stateEntry struct {
	mu      sync.Mutex
	conv    *Conversation
	touched time.Time
}

// StateStore is the in-memory, non-durable registry of conversation states.
// Each id owns an exclusive lock so two concurrent turns for the same
// conversation never interleave; different ids proceed independently.
type StateStore struct {
	mu      sync.Mutex
	entries map[string]*stateEntry
	ttl     time.Duration
}

func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		entries: make(map[string]*stateEntry),
		ttl:     ttl,
	}
}

func (s *StateStore) entry(id string) *stateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &stateEntry{conv: NewConversation(id), touched: time.Now()}
		s.entries[id] = e
		metrics.ConversationsActive.Set(float64(len(s.entries)))
	}
	return e
}

// WithLock runs fn with exclusive access to the conversation, creating it on
// first use. The conversation must only be mutated inside fn.
func (s *StateStore) WithLock(id string, fn func(conv *Conversation) error) error {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	err := fn(e.conv)
	e.touched = time.Now()
	return err
}

// Get returns a deep copy of the conversation state, if present. The copy is
// safe to read without holding the lock.
func (s *StateStore) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), true
}

// Evict removes the conversation immediately.
func (s *StateStore) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	metrics.ConversationsActive.Set(float64(len(s.entries)))
}

// Len returns the number of live conversations.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor sweeps expired conversations until ctx is cancelled.
// Terminal conversations expire on the shorter redelivery window.
func (s *StateStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(time.Now())
			}
		}
	}()
}

func (s *StateStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted int
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue // in use; the next sweep will see it
		}
		age := now.Sub(e.touched)
		expired := age > s.ttl || (e.conv.Terminal() && age > terminalTTL)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.ConversationsActive.Set(float64(len(s.entries)))
		slog.Debug("state store sweep", "evicted", evicted, "remaining", len(s.entries))
	}
}
