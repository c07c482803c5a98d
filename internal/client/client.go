// Package client is the HTTP client the anvil CLI uses to talk to a running
// anvil server.
//
// Reads are retried on transient failures. Mutating calls are sent exactly
// once, since a retried start or remove is not a no-op.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jbweber/anvil/internal/resource"
)

// Options configures a Client.
type Options struct {
	Token   string
	Timeout time.Duration
	// RetryMax bounds retries of read requests.
	RetryMax int
	Logger   *slog.Logger
}

// Client calls the anvil HTTP API.
type Client struct {
	baseURL string
	token   string

	reads  *retryablehttp.Client
	writes *retryablehttp.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	reads := retryablehttp.NewClient()
	reads.RetryMax = opts.RetryMax
	reads.RetryWaitMin = 500 * time.Millisecond
	reads.RetryWaitMax = 5 * time.Second
	reads.HTTPClient.Timeout = opts.Timeout
	reads.Logger = opts.Logger
	reads.ErrorHandler = retryablehttp.PassthroughErrorHandler

	writes := retryablehttp.NewClient()
	writes.RetryMax = 0
	writes.HTTPClient.Timeout = opts.Timeout
	writes.Logger = opts.Logger
	writes.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		reads:   reads,
		writes:  writes,
	}
}

type envelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *resource.Error `json:"error"`
}

// do sends one request and decodes the envelope's data into out. A failed
// envelope is returned as its *resource.Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		payload = strings.NewReader(b)
		contentType = "application/xml"
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	hc := c.writes
	if method == http.MethodGet {
		hc = c.reads
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: unexpected response (status %d): %s", method, path, resp.StatusCode, truncate(raw, 200))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil && env.Ok {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	if !env.Ok {
		if env.Error != nil {
			return env.Error
		}
		return fmt.Errorf("%s %s: request failed with status %d", method, path, resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func boolParam(q url.Values, key string, v bool) {
	if v {
		q.Set(key, "true")
	}
}

func resourcePath(id string, rest ...string) string {
	p := "/resources/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}
