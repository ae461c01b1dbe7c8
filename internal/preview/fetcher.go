// Package preview fetches link preview metadata for URLs and serves it over
// HTTP.
package preview

import (
	"context"
	"net/url"
	"strings"

	"threadlink/internal/domain"
)

// DefaultErrorMessage is shown to users when no better message is available.
const DefaultErrorMessage = "We couldn't load a preview for that link."

// Fetcher defines the interface for fetching preview metadata for a URL.
type Fetcher interface {
	// Fetch returns the preview for url. Failures are reported as *Error.
	Fetch(ctx context.Context, url string) (domain.LinkPreview, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (domain.LinkPreview, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (domain.LinkPreview, error) {
	return f(ctx, url)
}

// Error is a fetch failure carrying a message safe to show to users.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(err error) *Error {
	return &Error{Message: DefaultErrorMessage, Err: err}
}

// DomainOf returns the host of rawURL without a leading "www.".
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
