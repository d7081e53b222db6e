// Package fetcher downloads remote resources over HTTP. Each call is a single
// attempt; a failed resource is picked up again by the next scheduled run.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Fetcher retrieves the body of a URL.
type Fetcher interface {
	// Fetch issues one GET for url and returns the full response body.
	// A non-200 response is returned as *StatusError.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.Code, e.URL)
}

// IsNotFound reports whether err is a 404 response, meaning the resource
// does not exist (e.g. no daily index on weekends and holidays).
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
