package auth

import (
	"errors"
	"time"
)

var (
	ErrAlreadyExists      = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("could not validate credentials")
	ErrMalformedToken     = errors.New("token lacks identifier or expiration")
	ErrUserNotFound       = errors.New("user not found")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ErrRateLimited is returned by Login while the caller's failure window is full.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e ErrRateLimited) Error() string {
	return "too many login attempts"
}
