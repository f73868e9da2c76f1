// Package users is a small client for the external user-management service
// that some Game Master tools read from and write to.
package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gamemaster/internal/logger"
)

const defaultTimeout = 10 * time.Second

// User is kept opaque: the external service owns the schema.
type User = json.RawMessage

type listResponse struct {
	Users []User `json:"users"`
}

type userResponse struct {
	User User `json:"user"`
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client rooted at baseURL, e.g. http://localhost:3000/api.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// List returns every user known to the service.
func (c *Client) List(ctx context.Context) ([]User, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Users == nil {
		resp.Users = []User{}
	}
	return resp.Users, nil
}

// Add creates a user from an arbitrary JSON-encodable payload.
func (c *Client) Add(ctx context.Context, user any) (User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodPost, user, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Delete removes the user with the given id. The id travels in the request
// body, which is how the service expects it.
func (c *Client) Delete(ctx context.Context, id string) (User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodDelete, map[string]string{"id": id}, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) do(ctx context.Context, method string, body any, out any) error {
	url := c.baseURL + "/user"

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, url, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.AIDebugf("users: %s %s", method, url)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, url, err)
	}
	return nil
}
