// Package authapi implements the HTTP client for the external auth backend.
// The request/response field names are the backend compatibility surface and
// must not change.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-sessions/auth"
	"github.com/jrsteele09/go-portal-sessions/tabs"
)

const (
	loginPath      = "/auth/login"
	switchRolePath = "/auth/switch-role"

	defaultTimeout = 15 * time.Second
)

// Client calls the auth backend's login and switch-role endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ auth.Backend = (*Client)(nil)

// ClientOption modifies a Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for testing
// and custom timeouts).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    tabs.Profile `json:"user"`
	Error   string       `json:"error"`
}

type switchRoleRequest struct {
	TargetRole string `json:"targetRole"`
}

type switchRoleResponse struct {
	Success bool   `json:"success"`
	Role    string `json:"role"`
	Token   string `json:"token"`
	Error   string `json:"error"`
}

// Login implements auth.Backend.
func (c *Client) Login(ctx context.Context, email, password string, role tabs.Role) (tabs.Profile, string, error) {
	var resp loginResponse
	err := c.post(ctx, loginPath, "", loginRequest{
		Email:    email,
		Password: password,
		Role:     string(role),
	}, &resp)
	if err != nil {
		return tabs.Profile{}, "", errors.Wrap(err, "[Client.Login]")
	}
	if !resp.Success {
		return tabs.Profile{}, "", &auth.RejectionError{Message: rejectionMessage(resp.Error, "login failed")}
	}
	return resp.User, resp.Token, nil
}

// SwitchRole implements auth.Backend.
func (c *Client) SwitchRole(ctx context.Context, token string, target tabs.Role) (tabs.Role, string, error) {
	var resp switchRoleResponse
	err := c.post(ctx, switchRolePath, token, switchRoleRequest{TargetRole: string(target)}, &resp)
	if err != nil {
		return tabs.RoleNone, "", errors.Wrap(err, "[Client.SwitchRole]")
	}
	if !resp.Success {
		return tabs.RoleNone, "", &auth.RejectionError{Message: rejectionMessage(resp.Error, "role switch failed")}
	}
	role, err := tabs.ParseRole(resp.Role)
	if err != nil {
		return tabs.RoleNone, "", errors.Wrap(err, "[Client.SwitchRole] backend returned")
	}
	return role, resp.Token, nil
}

// post sends a JSON request and decodes the JSON reply. Rejections arrive as
// {success:false, error} bodies on any status code, so the body is decoded
// before the status is judged; an undecodable reply is a transport failure.
func (c *Client) post(ctx context.Context, path, bearerToken string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		return errors.Wrapf(err, "unexpected response (status %d)", resp.StatusCode)
	}
	return nil
}

func rejectionMessage(backendMessage, fallback string) string {
	if backendMessage != "" {
		return backendMessage
	}
	return fallback
}
