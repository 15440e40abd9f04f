package maps

import (
	"net/http"
	"strings"

	"wayfarer/internal/search"
)

// classify turns the client's status errors ("maps: OVER_QUERY_LIMIT - ...")
// into search.StatusError so the gateway can decide whether to retry.
// Transport errors are returned unchanged.
func classify(provider string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "OVER_QUERY_LIMIT"), strings.Contains(msg, "OVER_DAILY_LIMIT"):
		return &search.StatusError{Provider: provider, Code: http.StatusTooManyRequests, Message: msg}
	case strings.Contains(msg, "UNKNOWN_ERROR"):
		return &search.StatusError{Provider: provider, Code: http.StatusServiceUnavailable, Message: msg}
	case strings.Contains(msg, "REQUEST_DENIED"):
		return &search.StatusError{Provider: provider, Code: http.StatusForbidden, Message: msg}
	case strings.Contains(msg, "INVALID_REQUEST"):
		return &search.StatusError{Provider: provider, Code: http.StatusBadRequest, Message: msg}
	}
	return err
}
