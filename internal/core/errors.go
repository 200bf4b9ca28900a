package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredential   = errors.New("no API key configured")
	ErrEmptyInput          = errors.New("message content cannot be empty")
	ErrSendInProgress      = errors.New("a message is already being sent in this chat")
	ErrMalformedAttachment = errors.New("attachment is not an image")
)

// RemoteError carries the message reported by the LLM provider.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}
