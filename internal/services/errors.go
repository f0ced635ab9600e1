package services

import "errors"

var (
	// ErrEmptyPost is returned when a post or comment has no text and no images.
	ErrEmptyPost = errors.New("post has no content")
	// ErrUnauthenticated is returned when the caller is not a known user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when a user changes a post they did not write.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned when login fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when no user has the requested id.
	ErrUserNotFound = errors.New("user not found")
)
