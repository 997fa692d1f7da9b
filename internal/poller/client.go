package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds one fetch when the caller passes no timeout.
	DefaultTimeout = 2 * time.Second

	maxResponseBodySize = 256 << 10 // 256KB
)

// microcontroller HTTP stacks serve very few sockets at once
const (
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 30 * time.Second
)

var (
	// ErrUnexpectedStatus is returned for any response outside 2xx.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrResponseTooLarge is returned when a body exceeds the size limit.
	ErrResponseTooLarge = errors.New("response too large")
)

// Client fetches JSON documents from a remote board.
//
// Client applies its timeout per request via context rather than as a
// global client timeout, so a cancelled caller context ends the request
// immediately.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a [Client]. A timeout <= 0 uses [DefaultTimeout].
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout: timeout,
	}
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get performs a GET request and returns the response body.
//
// Returns an error wrapping [ErrUnexpectedStatus] for non-2xx responses and
// [ErrResponseTooLarge] if the body exceeds 256KB.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	// read one byte past the limit to detect oversize bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxResponseBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, maxResponseBodySize, url)
	}
	return body, nil
}

// Close closes idle connections in the client's pool.
// Safe to call multiple times and on a nil receiver. The client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
