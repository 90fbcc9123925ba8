package api

import (
	"net/http"
	"strings"
)

// TusVersion is the resumable upload protocol version spoken by the backend.
const TusVersion = "1.0.0"

// ResolveURL returns the absolute URL for path, joined onto the API prefix
// the same way request paths are.
func (c *Client) ResolveURL(path string) (string, error) {
	u, err := c.resolve(path)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Header returns the identity headers sent with every request: the user
// agent and, when a token is available, the bearer authorization.
func (c *Client) Header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.userAgent)
	if c.tokens != nil {
		if token := strings.TrimSpace(c.tokens.Token()); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

// HTTPClient returns the client used for requests.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
