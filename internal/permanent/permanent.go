package permanent

import (
	"errors"
	"fmt"
	"net/http"
)

// Error marks delivery failures that retrying cannot fix.
// Params: wrapped root cause.
// Returns: typed permanent error marker.
type Error struct {
	Err error
}

func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// Permanent implements the marker checked by Is.
func (Error) Permanent() bool {
	return true
}

// Mark wraps error with permanent marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// FromStatus classifies one non-2xx HTTP response.
// Params: endpoint label and response status code.
// Returns: permanent error for 4xx except 408/429, plain error otherwise, nil for 2xx.
func FromStatus(endpoint string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := fmt.Errorf("%s returned status %d", endpoint, status)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return Mark(err)
	}
	return err
}

// Is reports whether error has permanent marker.
// Params: candidate error.
// Returns: true when non-retryable marker is present.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
