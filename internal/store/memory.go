package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// MemoryStore implements Store with an in-memory slice. History is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	messages []chat.Message
}

// NewMemoryStore returns an empty MemoryStore keeping at most limit messages.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: normalizeLimit(limit)}
}

// SaveMessage appends msg, dropping the oldest entry once the limit is reached.
func (s *MemoryStore) SaveMessage(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if over := len(s.messages) - s.limit; over > 0 {
		s.messages = append([]chat.Message(nil), s.messages[over:]...)
	}
	return nil
}

// RecentMessages returns a copy of the retained history.
func (s *MemoryStore) RecentMessages(_ context.Context) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message{}, s.messages...), nil
}

// ClearMessages drops the history.
func (s *MemoryStore) ClearMessages(_ context.Context) error {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
