package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is matched by every network, timeout, or status failure.
	ErrFetch = errors.New("fetch failed")
	// ErrParse is matched when a response body is not a usable HTML document.
	ErrParse = errors.New("parse failed")
)

// FetchError reports a failed GET for URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Unwrap returns the transport error.
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a body that could not be parsed into a document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Unwrap returns the parser error.
func (e *ParseError) Unwrap() error { return e.Err }
