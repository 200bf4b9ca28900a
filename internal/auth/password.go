package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gwi.com/ai-chat/internal/store"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// BcryptHasher adapts the bcrypt helpers to store.PasswordHasher.
type BcryptHasher struct{}

// Hash reports passwords over bcrypt's 72-byte limit as
// store.ErrPasswordTooLong.
func (BcryptHasher) Hash(password string) (string, error) {
	hash, err := HashPassword(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", store.ErrPasswordTooLong
	}
	return hash, err
}

func (BcryptHasher) Compare(hash, password string) bool {
	return CheckPasswordHash(password, hash)
}
