package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned when the API does not know the token.
	ErrNotFound = errors.New("dexscreener: not found")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("dexscreener: rate limited")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dexscreener: unexpected status code %d: %s", e.StatusCode, e.Body)
}

// GetTokenPairs retrieves every trading pair that involves tokenAddress.
// A response with "pairs": null yields an empty slice and no error.
func (c *Client) GetTokenPairs(ctx context.Context, tokenAddress string, opts ...ClientOption) ([]Pair, error) {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
	}
	for _, opt := range opts {
		opt(override)
	}

	tokenAddress = strings.TrimSpace(tokenAddress)
	if tokenAddress == "" {
		return nil, errors.New("dexscreener: empty token address")
	}

	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", strings.TrimRight(override.baseURL, "/"), url.PathEscape(tokenAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, &StatusError{StatusCode: res.StatusCode, Body: string(b)}
	}

	var body TokenPairsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token pairs response: %w", err)
	}
	if body.Pairs == nil {
		return []Pair{}, nil
	}
	return body.Pairs, nil
}
