package services

import (
	"errors"
	"fmt"
)

// Errors that abort a notification invocation
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("wallpaper not found")
	ErrNoRecipients = errors.New("no users with push tokens found")
)

// AuthError is returned when the service-account token cannot be signed or exchanged
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// GatewayError describes a failed push to a single recipient.
// It is recorded in the recipient's result and never aborts a batch.
type GatewayError struct {
	UserID     string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("push to user %s failed: %v", e.UserID, e.Err)
	case e.Message != "":
		return fmt.Sprintf("push to user %s rejected with status %d: %s", e.UserID, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("push to user %s rejected with status %d", e.UserID, e.StatusCode)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
