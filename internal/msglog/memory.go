package msglog

import (
	"context"
	"sync"
)

// Compile-time assertion that MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)

// defaultCapacity bounds the in-memory ring when none is configured.
const defaultCapacity = 256

// MemoryStore keeps the most recent messages in a bounded ring.
// It is safe for concurrent use and never fails.
type MemoryStore struct {
	mu   sync.Mutex
	cap  int
	msgs []Message
}

// NewMemoryStore creates a ring holding at most capacity messages.
// capacity <= 0 selects the default of 256.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStore{cap: capacity}
}

// Append implements Store. The oldest message is evicted once the ring
// is full.
func (m *MemoryStore) Append(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	if len(m.msgs) > m.cap {
		m.msgs = m.msgs[len(m.msgs)-m.cap:]
	}
	return nil
}

// Recent implements Store, returning up to limit messages oldest
// first. limit <= 0 returns everything retained.
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
