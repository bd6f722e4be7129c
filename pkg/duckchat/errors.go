package duckchat

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake indicates the status endpoint could not issue a session token.
	ErrHandshake = errors.New("duckchat handshake failed")

	// ErrMissingToken indicates the handshake response carried no token header.
	ErrMissingToken = errors.New("session token header missing")

	// ErrReadTimeout indicates the upstream stream produced no event within
	// the configured read timeout.
	ErrReadTimeout = errors.New("duckchat stream read timed out")
)

// StatusError is returned when the chat endpoint answers with a non-200 status.
// The upstream body is never included.
type StatusError struct {
	StatusCode int

	// Token is the session token header of the rejected response, if any.
	Token string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("duckchat chat endpoint returned status %d", e.StatusCode)
}
