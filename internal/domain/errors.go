package domain

import "errors"

var (
	// ErrUnauthenticated rejects a connection whose credential does not verify.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized marks a binding mismatch or a non-admin privileged attempt.
	ErrUnauthorized = errors.New("unauthorized")

	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("no such member in the room")

	// ErrStoreUnavailable wraps durable-store failures; fatal to the request.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCacheMiss covers both an absent cache entry and a timed-out cache
	// read. It never leaves the read path: callers fall back to the store.
	ErrCacheMiss = errors.New("cache miss")

	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")

	ErrUsernameTooLong  = errors.New("username too long")
	ErrUsernameTooShort = errors.New("username too short")
)
