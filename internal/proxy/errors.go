package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidRequest is returned when no target URL was given.
var ErrInvalidRequest = errors.New("Stream URL is required")

// FetchError is an upstream failure: a transport error, a non-2xx status or
// an unreadable body.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to fetch stream: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
