package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChatStore keeps one newest-first list of chat summaries per user.
type ChatStore struct {
	kv       KV
	messages *MessageStore
	mu       sync.Mutex
}

func NewChatStore(kv KV, messages *MessageStore) *ChatStore {
	return &ChatStore{kv: kv, messages: messages}
}

func (s *ChatStore) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	chats := []Chat{}
	if _, err := getJSON(ctx, s.kv, chatsKey(userID), &chats); err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	return chats, nil
}

func (s *ChatStore) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	chats, err := s.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].ID == chatID {
			return &chats[i], nil
		}
	}
	return nil, ErrChatNotFound
}

func (s *ChatStore) CreateChat(ctx context.Context, userID, titleHint string) (*Chat, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chat id: %w", err)
	}
	title := titleHint
	if title == "" {
		title = DefaultChatTitle
	}
	chat := Chat{ID: id.String(), Title: title, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats = append([]Chat{chat}, chats...)
	if err := s.save(ctx, userID, chats); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *ChatStore) RenameChat(ctx context.Context, userID, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.ListChats(ctx, userID)
	if err != nil {
		return err
	}
	for i := range chats {
		if chats[i].ID == chatID {
			chats[i].Title = title
			return s.save(ctx, userID, chats)
		}
	}
	return nil
}

// RenameChatIf renames the chat only while its title is still expected. It
// reports whether the rename happened.
func (s *ChatStore) RenameChatIf(ctx context.Context, userID, chatID, expected, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.ListChats(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range chats {
		if chats[i].ID == chatID {
			if chats[i].Title != expected {
				return false, nil
			}
			chats[i].Title = title
			if err := s.save(ctx, userID, chats); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// DeleteChat removes the chat from the list and then drops its message
// collection. The two writes are not atomic; a failure between them leaves
// an unreachable message collection behind. It returns the remaining chats.
func (s *ChatStore) DeleteChat(ctx context.Context, userID, chatID string) ([]Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining := make([]Chat, 0, len(chats))
	for _, c := range chats {
		if c.ID != chatID {
			remaining = append(remaining, c)
		}
	}
	if err := s.save(ctx, userID, remaining); err != nil {
		return nil, err
	}
	if err := s.messages.DeleteMessages(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return remaining, nil
}

func (s *ChatStore) save(ctx context.Context, userID string, chats []Chat) error {
	if err := setJSON(ctx, s.kv, chatsKey(userID), chats); err != nil {
		return fmt.Errorf("failed to save chats: %w", err)
	}
	return nil
}
