// ABOUTME: HTTP JSON client for the glint auth service
// ABOUTME: Implements login, signup, token verification, and token refresh

package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Role values carried on User.Role. RoleOwner is the only role that owns a
// company profile.
const (
	RoleOwner    = "owner"
	RoleCustomer = "customer"
)

// User is the identity record returned by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// TokenPair is an access/refresh token pair. Both are opaque bearer strings.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is the outcome of a successful login or signup.
type AuthResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// SignupRequest is the payload for account creation. CompanyName is optional;
// when set on an owner signup the service creates the company profile too.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name,omitempty"`
}

// Client is an HTTP client for the auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the auth service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges credentials for a token pair and user record.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &result); err != nil {
		// A 401 on login means the credentials were wrong, not that a
		// held token went stale.
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized {
			return nil, &Error{Kind: KindInvalidCredentials, Message: apiErr.Message}
		}
		return nil, err
	}
	return &result, nil
}

// Signup creates an account and returns its first token pair and user record.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyToken checks an access token against the service and returns the user
// it belongs to.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/verify", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshToken exchanges a refresh token for a new token pair. The old refresh
// token is invalidated by the service.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// errorBody is the JSON error shape returned by the service.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// do executes a JSON request against the service. A non-2xx response or
// transport failure is returned as *Error.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorFromResponse(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindTransient, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

// ErrorFromResponse builds an *Error from a non-2xx response body, preferring
// the kind reported by the service over the status-code mapping. Shared by
// every client that talks to the glint service.
func ErrorFromResponse(status int, body []byte) *Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		kind := kindFromStatus(status)
		if validKind(eb.Kind) {
			kind = Kind(eb.Kind)
		}
		return &Error{Kind: kind, Message: eb.Error}
	}

	return &Error{
		Kind:    kindFromStatus(status),
		Message: fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(string(body))),
	}
}
