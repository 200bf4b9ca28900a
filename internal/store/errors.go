package store

import "errors"

var (
	ErrDuplicateUser      = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingFields      = errors.New("missing required fields")
	ErrUserNotFound       = errors.New("user not found")
	ErrChatNotFound       = errors.New("chat not found")
	ErrInvalidAPIKey      = errors.New("invalid API key format")
	ErrPasswordTooLong    = errors.New("password is too long")
)
