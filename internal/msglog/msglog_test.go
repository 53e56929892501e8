package msglog

import (
	"context"
	"errors"
	"testing"
)

func TestAppendNotifiesSubscribersInOrder(t *testing.T) {
	l := New(nil, NewMemoryStore(0))

	var seen []Message
	l.Subscribe(func(m Message) { seen = append(seen, m) })

	l.Append(context.Background(), RoleUser, "hello")
	l.Append(context.Background(), RoleAssistant, "hi there")

	if len(seen) != 2 {
		t.Fatalf("subscriber saw %d messages, want 2", len(seen))
	}
	if seen[0].Role != RoleUser || seen[0].Text != "hello" {
		t.Errorf("first message = %+v", seen[0])
	}
	if seen[1].Role != RoleAssistant {
		t.Errorf("second message = %+v", seen[1])
	}
	if seen[0].Time.IsZero() {
		t.Error("message not timestamped")
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, Message) error { return errors.New("disk on fire") }
func (failingStore) Recent(context.Context, int) ([]Message, error) {
	return nil, errors.New("disk on fire")
}

func TestAppendSurvivesStoreFailure(t *testing.T) {
	mem := NewMemoryStore(0)
	l := New(nil, failingStore{}, mem)

	l.Append(context.Background(), RoleSystem, "voice session failed")

	msgs, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "voice session failed" {
		t.Errorf("Recent = %+v", msgs)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	m := NewMemoryStore(3)
	for _, text := range []string{"a", "b", "c", "d"} {
		if err := m.Append(context.Background(), Message{Role: RoleUser, Text: text}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := m.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("retained %d messages, want 3", len(msgs))
	}
	if msgs[0].Text != "b" || msgs[2].Text != "d" {
		t.Errorf("ring contents = %+v", msgs)
	}
}

func TestMemoryStoreRecentLimit(t *testing.T) {
	m := NewMemoryStore(0)
	for _, text := range []string{"a", "b", "c"} {
		m.Append(context.Background(), Message{Text: text})
	}
	msgs, _ := m.Recent(context.Background(), 2)
	if len(msgs) != 2 || msgs[0].Text != "b" {
		t.Errorf("Recent(2) = %+v", msgs)
	}
}
