package services

import "errors"

var (
	// ErrUnauthorized is returned when a token has been revoked.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken is returned when a token fails signature or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrIncorrectCredentials covers both an unknown identity and a wrong
	// password so callers cannot tell them apart.
	ErrIncorrectCredentials = errors.New("incorrect credentials")

	ErrUserNotFound      = errors.New("user not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryNameTaken = errors.New("category name already exists")
	ErrNotAuthor         = errors.New("caller is not the author")
	ErrNotModified       = errors.New("not modified")
	ErrDeleteFailed      = errors.New("delete failed")
)

// InputError is a request-level validation failure with a single
// human-readable message.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func inputError(message string) error {
	return &InputError{Message: message}
}
