package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageStore keeps an append-only transcript per (user, chat). Every append
// rewrites the whole collection.
type MessageStore struct {
	kv KV
	mu sync.Mutex
}

func NewMessageStore(kv KV) *MessageStore {
	return &MessageStore{kv: kv}
}

func (s *MessageStore) ListMessages(ctx context.Context, userID, chatID string) ([]Message, error) {
	messages := []Message{}
	if _, err := getJSON(ctx, s.kv, messagesKey(userID, chatID), &messages); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

// AppendMessage assigns an id and timestamp when missing and appends msg.
func (s *MessageStore) AppendMessage(ctx context.Context, userID, chatID string, msg *Message) error {
	if msg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message id: %w", err)
		}
		msg.ID = id.String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.ListMessages(ctx, userID, chatID)
	if err != nil {
		return err
	}
	messages = append(messages, *msg)
	if err := setJSON(ctx, s.kv, messagesKey(userID, chatID), messages); err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

func (s *MessageStore) DeleteMessages(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, messagesKey(userID, chatID)); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
