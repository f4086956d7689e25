package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserExists is returned when the handle is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned for an unknown handle or a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is an authenticated participant. Its ID doubles as the escrow identity.
type User struct {
	ID           string
	Handle       string
	SecretHash   []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Handle string
	Secret string
}
