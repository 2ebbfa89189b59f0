// ABOUTME: HTTP JSON client for the company profile API
// ABOUTME: Implements GetMine and Update against the glint service

package company

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glintapp/glint/internal/authapi"
)

// API is the remote company surface the cache depends on. GetMine returns the
// caller's company; absence is reported as an *authapi.Error with
// KindNotFound, which the cache treats as a valid outcome.
type API interface {
	GetMine(ctx context.Context, accessToken string) (*Company, error)
	Update(ctx context.Context, accessToken, id string, patch Patch) (*Company, error)
}

// Client is an HTTP client for the company API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the company API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMine fetches the authenticated owner's company.
func (c *Client) GetMine(ctx context.Context, accessToken string) (*Company, error) {
	var company Company
	if err := c.do(ctx, http.MethodGet, "/companies/mine", accessToken, nil, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

// Update applies a partial update and returns the server's resulting company.
func (c *Client) Update(ctx context.Context, accessToken, id string, patch Patch) (*Company, error) {
	var company Company
	path := "/companies/" + id
	if err := c.do(ctx, http.MethodPatch, path, accessToken, patch, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

// do executes a JSON request, returning failures as *authapi.Error so the
// cache can branch on error kind.
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
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &authapi.Error{Kind: authapi.KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &authapi.Error{Kind: authapi.KindTransient, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return authapi.ErrorFromResponse(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &authapi.Error{Kind: authapi.KindTransient, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}
