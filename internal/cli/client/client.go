// Package client talks to the auth backend on behalf of the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"webspec-auth/internal/auth"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Provider string `json:"provider"`
}

type Authorization struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
	FlowID  string `json:"flowId"`
}

type CallbackRequest struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
	FlowID      string `json:"flowId,omitempty"`
}

type Login struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// APIError is a non-2xx answer. It matches the auth sentinel of its code,
// so errors.Is(err, auth.ErrUnauthenticated) works across the wire.
type APIError struct {
	StatusCode int
	Code       auth.Code
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return e.Message
}

func (e *APIError) Is(target error) bool {
	t, ok := target.(*auth.Error)
	return ok && e.Code != "" && t.Code == e.Code
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Health fails unless the backend answers /health with 200.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) AuthorizationURL(ctx context.Context, redirectURI string) (*Authorization, error) {
	path := "/api/auth/authorization-url?" + url.Values{"redirect_uri": {redirectURI}}.Encode()

	var out Authorization
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Callback(ctx context.Context, req CallbackRequest) (*Login, error) {
	var out Login
	if err := c.do(ctx, http.MethodPost, "/api/auth/callback", "", req, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("callback: empty token in response")
	}
	return &out, nil
}

func (c *Client) Validate(ctx context.Context, token string) (*User, error) {
	var out struct {
		Valid bool `json:"valid"`
		User  User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/validate", token, nil, &out); err != nil {
		return nil, err
	}
	if !out.Valid {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Code: auth.CodeUnauthenticated}
	}
	return &out.User, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = auth.Code(eb.Code)
			apiErr.Message = eb.Error
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
