package notify

import (
	"errors"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRetryExhausted  = errors.New("retry attempts exhausted")
	ErrNoRecipient     = errors.New("recipient has no phone number")
)

// HTTPError is a non-2xx answer from the messaging gateway.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return "messaging gateway returned an error"
	}
	return e.Message
}
