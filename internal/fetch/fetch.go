// Package fetch retrieves listing pages and source files. Each call is a
// single blocking attempt; callers decide whether to re-invoke on failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// ErrUnexpectedStatusCode indicates an HTTP response with a non-200 status.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// ErrTooLarge indicates a body that exceeded the configured limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// DefaultUserAgent identifies the harvester to remote hosts.
const DefaultUserAgent = "ndc-harvester/1.0"

// Response is a fully read fetch result.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Fetcher retrieves the content at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64 // 0 means unlimited
}

// Client fetches over HTTP(S) and from file:// URLs.
type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPClient builds the transport shared by all fetchers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NewClient creates a Client from options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Client{
		http:      NewHTTPClient(opts.Timeout),
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme == "file" {
		return c.readLocal(u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatusCode, resp.StatusCode, rawURL)
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)
	}
	return body, nil
}

func (c *Client) readLocal(u *url.URL) (*Response, error) {
	path := u.Path
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local file %s: %w", path, err)
	}
	defer f.Close()

	body, err := c.readBody(f)
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:         u.String(),
		StatusCode:  http.StatusOK,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}
