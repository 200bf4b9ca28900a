package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultChatTitle = "New Chat"
)

type User struct {
	ID          string `json:"id"` // Lowercased email
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// CredentialRecord is one entry of the registered users map.
type CredentialRecord struct {
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
}

type Chat struct {
	ID        string    `json:"id"` // UUIDv7, time-ordered
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image,omitempty"` // URL or data URI
	IsError   bool      `json:"is_error,omitempty"`
}
