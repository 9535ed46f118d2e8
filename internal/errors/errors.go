package errors

import (
	"errors"
	"fmt"
)

// Common error types for the authentication service
var (
	// Login gate errors
	ErrCaptchaInvalid          = errors.New("captcha invalid")
	ErrVerificationUnavailable = errors.New("captcha verification unavailable")

	// Authentication errors
	ErrNoActiveAccount = errors.New("no active account found with the given credentials")
	ErrUnauthorized    = errors.New("unauthorized")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")

	// Principal errors
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
	ErrWeakPassword  = errors.New("password is not strong enough")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
