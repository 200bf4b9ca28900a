package store

import (
	"context"
	"fmt"
	"strings"
)

const DefaultAPIKeyPrefix = "sk-"

// SettingsStore holds the single provider API key and each user's active
// chat selection.
type SettingsStore struct {
	kv        KV
	keyPrefix string
}

// NewSettingsStore accepts API keys starting with keyPrefix, or with
// DefaultAPIKeyPrefix when keyPrefix is empty.
func NewSettingsStore(kv KV, keyPrefix string) *SettingsStore {
	if keyPrefix == "" {
		keyPrefix = DefaultAPIKeyPrefix
	}
	return &SettingsStore{kv: kv, keyPrefix: keyPrefix}
}

func (s *SettingsStore) APIKey(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, apiKeyKey)
	if err != nil {
		return "", fmt.Errorf("failed to load API key: %w", err)
	}
	return string(raw), nil
}

// SetAPIKey only checks the literal key prefix; the provider is the judge of
// anything else.
func (s *SettingsStore) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, s.keyPrefix) {
		return ErrInvalidAPIKey
	}
	if err := s.kv.Set(ctx, apiKeyKey, []byte(key)); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}

// ActiveChat returns "" when the user has no selection.
func (s *SettingsStore) ActiveChat(ctx context.Context, userID string) (string, error) {
	raw, err := s.kv.Get(ctx, activeChatKey(userID))
	if err != nil {
		return "", fmt.Errorf("failed to load active chat: %w", err)
	}
	return string(raw), nil
}

func (s *SettingsStore) SetActiveChat(ctx context.Context, userID, chatID string) error {
	var err error
	if chatID == "" {
		err = s.kv.Remove(ctx, activeChatKey(userID))
	} else {
		err = s.kv.Set(ctx, activeChatKey(userID), []byte(chatID))
	}
	if err != nil {
		return fmt.Errorf("failed to save active chat: %w", err)
	}
	return nil
}
