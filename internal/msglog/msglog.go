// Package msglog collects the finalized conversation: user
// utterances, assistant replies, and system notices. Audio is never
// logged, only text.
package msglog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/lyra-voice/lyra/internal/observe"
)

// Role tags who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one finalized log entry.
type Message struct {
	Role Role
	Text string
	Time time.Time
}

// Store persists finalized messages.
type Store interface {
	Append(ctx context.Context, msg Message) error
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// Log fans finalized messages out to its stores and notifies
// subscribers (the UI collaborator). Store failures are logged and do
// not fail the append; the conversation outranks its persistence.
type Log struct {
	metrics *observe.Metrics

	mu        sync.Mutex
	stores    []Store
	listeners []func(Message)
}

// New creates a Log writing to stores in order. metrics may be nil.
func New(metrics *observe.Metrics, stores ...Store) *Log {
	return &Log{metrics: metrics, stores: stores}
}

// Subscribe registers fn to be called for every appended message.
// Callbacks run synchronously in append order.
func (l *Log) Subscribe(fn func(Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Append finalizes one message, stamps it, persists it, and notifies
// subscribers.
func (l *Log) Append(ctx context.Context, role Role, text string) {
	msg := Message{Role: role, Text: text, Time: time.Now()}

	l.mu.Lock()
	stores := l.stores
	listeners := l.listeners
	l.mu.Unlock()

	for _, s := range stores {
		if err := s.Append(ctx, msg); err != nil {
			slog.Warn("msglog: store append failed", "role", role, "err", err)
		}
	}
	for _, fn := range listeners {
		fn(msg)
	}
	if l.metrics != nil {
		l.metrics.Messages.Add(ctx, 1, metric.WithAttributes(observe.Attr("role", string(role))))
	}
}

// Recent returns up to limit messages, oldest first, from the first
// store that answers.
func (l *Log) Recent(ctx context.Context, limit int) ([]Message, error) {
	l.mu.Lock()
	stores := l.stores
	l.mu.Unlock()

	var lastErr error
	for _, s := range stores {
		msgs, err := s.Recent(ctx, limit)
		if err == nil {
			return msgs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
