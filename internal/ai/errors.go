package ai

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var ErrEmptyResponse = errors.New("provider returned no content")

// StatusError is a non-2xx reply from a completion API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether the same request may succeed later: throttling
// and server-side failures.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout || e.Code >= 500
}

// statusFromGoogle converts a googleapi error returned by the Gemini REST
// client into a StatusError. Other errors are returned unchanged.
func statusFromGoogle(provider string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &StatusError{Provider: provider, Code: gerr.Code, Message: msg}
	}
	return err
}
