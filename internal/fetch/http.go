package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher fetches http and https locators with a plain GET.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// Assert that HTTPFetcher implements the Fetcher interface
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher using httpClient, or http.DefaultClient when
// it is nil.
func NewHTTPFetcher(httpClient *http.Client, userAgent string) *HTTPFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Locator: locator, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	return data, nil
}
