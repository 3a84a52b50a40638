// Package client is a Go client for the /api/auth endpoints. It reads and
// sends the session token through the cookie package so it follows the same
// cookie names and lookup order as the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sessiond/cmd/internal/auth/cookie"
)

// ErrUnauthorized matches any APIError with status 401.
var ErrUnauthorized = errors.New("client: unauthorized")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// User is the identity returned by the server.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Session is the issued token and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthResult is the body of login, register and refresh responses.
type AuthResult struct {
	User           User
	Session        Session
	OrganizationID string
}

// Client talks to a sessiond server and remembers the session token between calls.
type Client struct {
	base   *url.URL
	hc     *http.Client
	bearer bool

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithBearer sends the token as an Authorization header instead of a cookie.
func WithBearer() Option {
	return func(c *Client) { c.bearer = true }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base: u,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Token returns the current session token, if any.
func (c *Client) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

// SetToken replaces the session token (for example one loaded from disk).
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(tok)
}

// Login authenticates and stores the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/login", credentials{Email: email, Password: password})
}

// Register creates the account (and organization when orgName is set) and stores the issued token.
func (c *Client) Register(ctx context.Context, email, password, orgName string) (AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/register", credentials{Email: email, Password: password, OrgName: orgName})
}

// Refresh extends the current session. The token value does not change.
func (c *Client) Refresh(ctx context.Context) (AuthResult, error) {
	return c.authenticate(ctx, "/api/auth/session/refresh", nil)
}

// CurrentUser returns the identity behind the stored token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, &u)
	if err != nil {
		return User{}, err
	}
	_ = resp.Body.Close()
	return u, nil
}

// Logout revokes the session server-side and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	var out struct {
		Success bool `json:"success"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, &out)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	c.SetToken("")
	if !out.Success {
		return errors.New("client: logout not acknowledged")
	}
	return nil
}

// LogoutAll revokes every session of the account, forgets the token and
// reports how many sessions were revoked.
func (c *Client) LogoutAll(ctx context.Context) (int, error) {
	var out struct {
		Success bool `json:"success"`
		Revoked int  `json:"revoked"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout_all", nil, &out)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	c.SetToken("")
	if !out.Success {
		return 0, errors.New("client: logout_all not acknowledged")
	}
	return out.Revoked, nil
}

// Health checks the auth health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/health", nil, &out)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if out.Status != "ok" {
		return fmt.Errorf("client: health status %q", out.Status)
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgName  string `json:"orgName,omitempty"`
}

type authBody struct {
	Success bool `json:"success"`
	User    User `json:"user"`
	Session struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	} `json:"session"`
	OrganizationID string `json:"organizationId"`
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (AuthResult, error) {
	var out authBody
	resp, err := c.do(ctx, http.MethodPost, path, body, &out)
	if err != nil {
		return AuthResult{}, err
	}
	_ = resp.Body.Close()

	exp, err := time.Parse(time.RFC3339Nano, out.Session.ExpiresAt)
	if err != nil {
		return AuthResult{}, fmt.Errorf("client: parse expiresAt: %w", err)
	}

	// Prefer the cookie the server set; the body carries the same value.
	tok, ok := cookie.FromCookies(resp.Cookies())
	if !ok {
		tok = out.Session.Token
	}
	if tok == "" {
		return AuthResult{}, errors.New("client: response carried no session token")
	}
	c.SetToken(tok)

	return AuthResult{
		User:           out.User,
		Session:        Session{Token: tok, ExpiresAt: exp},
		OrganizationID: out.OrganizationID,
	}, nil
}

// do sends the request and decodes a 2xx JSON body into dst. The returned
// response body is already drained; callers only close it.
func (c *Client) do(ctx context.Context, method, path string, body, dst any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.Token(); ok {
		if c.bearer {
			req.Header.Set("Authorization", "Bearer "+tok)
		} else {
			req.AddCookie(&http.Cookie{Name: cookie.NameAuthToken, Value: tok})
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("client: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: e.Message}
	}

	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("client: decode body: %w", err)
		}
	}
	return resp, nil
}
