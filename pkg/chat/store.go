package chat

import (
	"sort"
	"sync"
)

// Store is the in-memory ordered, deduplicated collection of messages for
// the active conversation. Messages arrive from two sources, the one-shot
// history fetch and the live push stream, in no guaranteed order; the store
// resolves the final chronological order itself rather than trusting
// arrival order.
//
// The store is merge-only: messages are never locally edited or removed.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	ids      map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		ids: make(map[string]struct{}),
	}
}

// Merge inserts each message at its chronological position by CreatedAt.
// A message whose ID is already present is dropped, so merging the same
// message twice is a no-op. Messages with equal CreatedAt keep their
// merge order relative to each other.
func (s *Store) Merge(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.merge(m)
	}
}

func (s *Store) merge(m Message) {
	if _, ok := s.ids[m.ID]; ok {
		return
	}
	s.ids[m.ID] = struct{}{}

	// Insert after any existing message with the same timestamp.
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
}

// Snapshot returns a copy of the current chronological view.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of distinct messages in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Has reports whether a message with the given ID has been merged.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}
