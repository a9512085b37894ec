package waitlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

var _ Forwarder = (*Client)(nil)

// CSRFHeader carries the token on signup requests.
const CSRFHeader = "X-CSRF-Token"

// UpstreamStatusError is returned for unexpected responses from the backend.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("waitlist: unexpected status code %d: %s", e.StatusCode, e.Body)
}

// Client forwards signups to the collaborator backend. The backend pairs its
// CSRF token with a session cookie, so the client keeps a cookie jar and sends
// cookies back like a browser would.
type Client struct {
	baseURL    string
	csrfPath   string
	signupPath string
	httpClient *http.Client
	header     http.Header

	mu    sync.Mutex
	token string
}

type ClientOption func(*Client)

// WithPaths overrides the CSRF and signup endpoint paths.
func WithPaths(csrfPath, signupPath string) ClientOption {
	return func(c *Client) {
		if csrfPath != "" {
			c.csrfPath = csrfPath
		}
		if signupPath != "" {
			c.signupPath = signupPath
		}
	}
}

// WithHTTPClient sets the HTTP client. A cookie jar is attached if it has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// NewClient returns a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		csrfPath:   "/api/csrf-token",
		signupPath: "/api/waitlist",
		header:     http.Header{"Accept": {"application/json"}},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}
	return c, nil
}

// Forward posts the signup email with a CSRF token. When the backend answers
// 403 the token is refetched once and the request retried.
func (c *Client) Forward(ctx context.Context, s Signup) error {
	token, err := c.csrfToken(ctx, false)
	if err != nil {
		return err
	}

	status, body, err := c.postSignup(ctx, token, s)
	if err != nil {
		return err
	}
	if status == http.StatusForbidden {
		if token, err = c.csrfToken(ctx, true); err != nil {
			return err
		}
		if status, body, err = c.postSignup(ctx, token, s); err != nil {
			return err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return ErrAlreadyJoined
	default:
		return &UpstreamStatusError{StatusCode: status, Body: body}
	}
}

// csrfToken returns the cached token, fetching a new one when there is none
// or when refresh is set.
func (c *Client) csrfToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && !refresh {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.csrfPath, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating csrf request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching csrf token: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return "", &UpstreamStatusError{StatusCode: res.StatusCode, Body: string(b)}
	}

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding csrf token: %w", err)
	}
	if body.CSRFToken == "" {
		return "", errors.New("waitlist: empty csrf token")
	}
	c.token = body.CSRFToken
	return c.token, nil
}

func (c *Client) postSignup(ctx context.Context, token string, s Signup) (int, string, error) {
	payload, err := json.Marshal(map[string]string{"email": s.Email})
	if err != nil {
		return 0, "", fmt.Errorf("encoding signup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.signupPath, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("creating signup request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CSRFHeader, token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("posting signup: %w", err)
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
	return res.StatusCode, string(b), nil
}
