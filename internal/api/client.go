package api

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
	"time"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// Transport is the request surface the stores depend on. *Client implements it.
type Transport interface {
	Send(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// Ensure Client implements Transport at compile time.
var _ Transport = (*Client)(nil)

// Options tune a Client.
type Options struct {
	Prefix     string // API root, e.g. /api/v1
	Tokens     TokenSource
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the vapor REST API.
type Client struct {
	baseURL   *url.URL
	prefix    string
	http      *http.Client
	userAgent string
	tokens    TokenSource
}

const (
	defaultAPIURL    = "http://127.0.0.1:8080"
	defaultPrefix    = "/api/v1"
	defaultUserAgent = "vapor-console/0.1"
	requestTimeout   = 15 * time.Second
)

// NewClient builds a Client for the backend at apiURL.
func NewClient(apiURL string, opts Options) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(strings.TrimSpace(opts.Prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = requestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   base,
		prefix:    prefix,
		http:      httpClient,
		userAgent: defaultUserAgent,
		tokens:    opts.Tokens,
	}, nil
}

// BaseURL returns the normalised backend URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Prefix returns the API root path.
func (c *Client) Prefix() string {
	return c.prefix
}

// Send issues a request and returns the raw response body. A 204 response
// yields a nil body.
func (c *Client) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	resp, err := c.request(ctx, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// Do issues a request and decodes the enveloped response into dest.
func (c *Client) Do(ctx context.Context, method, path string, body, dest any) error {
	raw, err := c.Send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if dest == nil || raw == nil {
		return nil
	}
	payload, err := Unwrap(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Get is shorthand for Send with GET.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	reqURL, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := strings.TrimSpace(c.tokens.Token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// resolve joins path onto the API prefix. Paths that already start with the
// prefix, and absolute URLs, are used as given.
func (c *Client) resolve(path string) (*url.URL, error) {
	if strings.Contains(path, "://") {
		return url.Parse(path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasPrefix(path, c.prefix+"/") && path != c.prefix {
		path = c.prefix + path
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(rel), nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Code: CodeAPI}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var body struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Code != "" {
			apiErr.Code = body.Code
		}
		apiErr.Message = body.Message
		apiErr.Details = body.Details
		if len(body.Error) > 0 {
			var nested envelopeError
			var text string
			switch {
			case json.Unmarshal(body.Error, &nested) == nil:
				if nested.Code != "" {
					apiErr.Code = nested.Code
				}
				if apiErr.Message == "" {
					apiErr.Message = nested.Message
				}
			case json.Unmarshal(body.Error, &text) == nil && apiErr.Message == "":
				apiErr.Message = text
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return apiErr
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", apiURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
