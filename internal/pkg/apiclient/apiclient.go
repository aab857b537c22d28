// Package apiclient talks to the backend data API. Calls carry a logical name
// used in logs and error messages, a per-call timeout (30s default) and an
// optional user id appended as a query parameter. Backend failures are
// translated into fixed user-facing HTTP statuses: 504 on timeout, 503 on
// network errors, pass-through otherwise.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/appgoblin/AppGoblin/internal/pkg/env"
)

const DefaultTimeout = 30 * time.Second

// StatusError is a backend failure already mapped to the HTTP status the
// browser should see.
type StatusError struct {
	Name       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Name, e.Message, e.StatusCode)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewFromEnv() *Client {
	return New(env.GetEnv("API_BASE_URL", "http://localhost:8000/api"))
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// Per-call deadlines come from the request context; the client-level
		// timeout is a backstop only.
		HTTPClient: &http.Client{Timeout: 2 * DefaultTimeout},
	}
}

type callOptions struct {
	timeout time.Duration
	userID  string
}

type CallOption func(*callOptions)

// WithTimeout overrides the default 30s call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithUserID appends user_id as a query parameter.
func WithUserID(userID uint) CallOption {
	return func(o *callOptions) { o.userID = fmt.Sprintf("%d", userID) }
}

// Get fetches endpoint and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint, name string, out any, opts ...CallOption) error {
	return c.call(ctx, http.MethodGet, endpoint, name, nil, out, opts...)
}

// Post sends body as JSON to endpoint and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint, name string, body, out any, opts ...CallOption) error {
	return c.call(ctx, http.MethodPost, endpoint, name, body, out, opts...)
}

func (c *Client) call(ctx context.Context, method, endpoint, name string, body, out any, opts ...CallOption) error {
	options := callOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	url := c.BaseURL + endpoint
	if options.userID != "" {
		separator := "?"
		if strings.Contains(url, "?") {
			separator = "&"
		}
		url = url + separator + "user_id=" + options.userID
	}

	ctx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return translateTransportError(name, options.timeout, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", name, err)
		}
		return nil
	case http.StatusNotFound:
		log.Printf("%s API: %d", name, resp.StatusCode)
		return &StatusError{Name: name, StatusCode: http.StatusNotFound, Message: "Not Found"}
	case http.StatusInternalServerError:
		log.Printf("%s API server error: %d", name, resp.StatusCode)
		return &StatusError{Name: name, StatusCode: http.StatusInternalServerError, Message: "API Server error"}
	default:
		log.Printf("%s unexpected status: %d", name, resp.StatusCode)
		return &StatusError{Name: name, StatusCode: resp.StatusCode, Message: fmt.Sprintf("Unexpected error (%d)", resp.StatusCode)}
	}
}

func translateTransportError(name string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("%s request timeout after %v", name, timeout)
		return &StatusError{Name: name, StatusCode: http.StatusGatewayTimeout, Message: "Request timeout - backend may be restarting"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		log.Printf("%s request timeout after %v", name, timeout)
		return &StatusError{Name: name, StatusCode: http.StatusGatewayTimeout, Message: "Request timeout - backend may be restarting"}
	}
	log.Printf("%s network error: %v", name, err)
	return &StatusError{Name: name, StatusCode: http.StatusServiceUnavailable, Message: "Service temporarily unavailable - backend may be restarting"}
}
