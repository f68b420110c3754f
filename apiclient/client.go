// Package apiclient is the generic client for non-auth backend calls. It
// authorizes every request with the process-wide "current token" storage key:
// whichever tab wrote a token last owns all ordinary API traffic, regardless
// of which tab issues the call. This mirrors the portal's historical
// behaviour and is kept for compatibility; per-tab token routing would
// eliminate the cross-tab interference but changes observable behaviour.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

const defaultTimeout = 15 * time.Second

// Client issues JSON requests against the backend with the ambient token.
type Client struct {
	repo       tabs.Repo
	baseURL    string
	httpClient *http.Client
}

// ClientOption modifies a Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a Client reading the ambient token from repo.
func New(repo tabs.Repo, baseURL string, options ...ClientOption) (*Client, error) {
	if repo == nil {
		return nil, errors.New("[apiclient.New] repo is required")
	}
	c := &Client{
		repo:       repo,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Do sends a JSON request and decodes the reply into out (which may be nil).
// A non-2xx status is an error carrying the status code.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.Do] marshal body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "[Client.Do] build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.repo.ActiveToken(ctx)
	if err != nil {
		return errors.Wrap(err, "[Client.Do] ActiveToken")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Client.Do] request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("[Client.Do] %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "[Client.Do] decode response")
	}
	return nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}
