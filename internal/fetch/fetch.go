// Package fetch retrieves the raw bytes behind a locator.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNetwork           = errors.New("network failure")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
)

// Fetcher downloads the bytes a locator points at.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// NetworkError reports a transport level failure for one locator.
type NetworkError struct {
	Locator string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Locator, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Mux dispatches to a Fetcher by locator scheme.
type Mux struct {
	fetchers map[string]Fetcher
}

// Assert that Mux implements the Fetcher interface
var _ Fetcher = (*Mux)(nil)

func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for the given schemes.
func (m *Mux) Handle(f Fetcher, schemes ...string) {
	for _, scheme := range schemes {
		m.fetchers[strings.ToLower(scheme)] = f
	}
}

func (m *Mux) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	f, ok := m.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &NetworkError{Locator: locator, Err: fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)}
	}
	return f.Fetch(ctx, locator)
}
