package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// CredentialStore keeps all registered users in a single map keyed by
// lowercased email. The whole map is rewritten on every registration.
type CredentialStore struct {
	kv     KV
	hasher PasswordHasher
	mu     sync.Mutex
}

func NewCredentialStore(kv KV, hasher PasswordHasher) *CredentialStore {
	return &CredentialStore{kv: kv, hasher: hasher}
}

func (s *CredentialStore) load(ctx context.Context) (map[string]CredentialRecord, error) {
	users := make(map[string]CredentialRecord)
	if _, err := getJSON(ctx, s.kv, registeredUsersKey, &users); err != nil {
		return nil, fmt.Errorf("failed to load registered users: %w", err)
	}
	return users, nil
}

func (s *CredentialStore) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, ErrMissingFields
	}
	userKey := strings.ToLower(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if _, exists := users[userKey]; exists {
		return nil, ErrDuplicateUser
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	users[userKey] = CredentialRecord{Name: name, PasswordHash: hash, Email: email}

	if err := setJSON(ctx, s.kv, registeredUsersKey, users); err != nil {
		return nil, fmt.Errorf("failed to save registered users: %w", err)
	}
	return &User{ID: userKey, DisplayName: name, Email: email}, nil
}

func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	userKey := strings.ToLower(email)

	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	record, ok := users[userKey]
	if !ok || !s.hasher.Compare(record.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: userKey, DisplayName: record.Name, Email: record.Email}, nil
}

func (s *CredentialStore) GetUser(ctx context.Context, userID string) (*User, error) {
	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	record, ok := users[strings.ToLower(userID)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &User{ID: strings.ToLower(userID), DisplayName: record.Name, Email: record.Email}, nil
}
