package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is returned when a 2xx body cannot be parsed.
	ErrMalformedResponse = errors.New("invalid response format")
	// ErrNoAccessToken is returned when a token response carries no access token.
	ErrNoAccessToken = errors.New("no access token received")
)

// StatusError is returned when the upstream API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	// Message is the upstream error text when the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// RejectedError is returned when a 2xx body reports success:false.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "upstream rejected request: " + e.Message
}
