package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// KV is the persistence surface every store is built on. Get returns
// (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

const (
	registeredUsersKey = "registered_users"
	apiKeyKey          = "openai_api_key"
)

// Key components are escaped so that no two distinct (user, chat) pairs can
// produce the same key, whatever characters the identifiers contain.
func chatsKey(userID string) string {
	return "chats:" + url.QueryEscape(userID)
}

func messagesKey(userID, chatID string) string {
	return "messages:" + url.QueryEscape(userID) + ":" + url.QueryEscape(chatID)
}

func activeChatKey(userID string) string {
	return "active_chat:" + url.QueryEscape(userID)
}

func getJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}
