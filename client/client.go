// Package client is the HTTP core shared by the AAP and USI bindings: a
// reusable authenticated session that issues JSON requests and follows the
// hypermedia links USI responses embed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"usirest/auth"
)

// Endpoint roots for the EBI test environment.
const (
	DefaultAAPURL  = "https://explore.api.aai.ebi.ac.uk"
	DefaultRootURL = "https://submission-test.ebi.ac.uk"
)

const userAgent = "usirest/0.3"

// Endpoints are the service roots requests are issued against.
type Endpoints struct {
	// AAP is the Authentication/Authorisation/Profile service root.
	AAP string
	// Root is the USI submission service root (without the /api suffix).
	Root string
}

// Client is an authenticated session against AAP and USI. It is stateless
// between calls apart from the token it carries.
type Client struct {
	HTTPClient *http.Client
	Auth       *auth.Auth
	Endpoints  Endpoints
	Logger     logrus.FieldLogger
}

// New returns a client for the default EBI test endpoints.
func New(a *auth.Auth) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Auth:       a,
		Endpoints:  Endpoints{AAP: DefaultAAPURL, Root: DefaultRootURL},
	}
}

// Log returns the configured logger, or the logrus standard logger.
func (c *Client) Log() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

// AAPURL joins path elements onto the AAP service root.
func (c *Client) AAPURL(elem ...string) string {
	return joinURL(c.Endpoints.AAP, elem...)
}

// RootURL joins path elements onto the USI service root.
func (c *Client) RootURL(elem ...string) string {
	return joinURL(c.Endpoints.Root, elem...)
}

func joinURL(base string, elem ...string) string {
	parts := []string{strings.TrimRight(base, "/")}
	for _, e := range elem {
		parts = append(parts, strings.Trim(e, "/"))
	}
	return strings.Join(parts, "/")
}

// Do issues a request and decodes the JSON response into out (when out is
// non-nil). It refuses to hit the network with an expired token, and maps
// non-2xx responses to a *StatusError.
func (c *Client) Do(ctx context.Context, method, rawurl string, body, out any) error {
	if c.Auth == nil {
		return &StatusError{Method: method, URL: rawurl, StatusCode: http.StatusUnauthorized, Message: "no credentials"}
	}
	if c.Auth.IsExpired() {
		return auth.ErrTokenExpired
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/hal+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	c.Log().WithFields(logrus.Fields{"method": method, "url": rawurl}).Debug("request")
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(req, resp, data)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Get issues a GET, decoding into out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, http.MethodPost, url, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, http.MethodPut, url, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, url, body, out)
}

// Delete issues a DELETE, ignoring any response body.
func (c *Client) Delete(ctx context.Context, url string) error {
	return c.Do(ctx, http.MethodDelete, url, nil, nil)
}

// NormalizeURL collapses duplicate slashes in the path of rawurl. USI is
// strict about them when a URL is assembled rather than followed.
func NormalizeURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	for strings.Contains(u.Path, "//") {
		u.Path = strings.ReplaceAll(u.Path, "//", "/")
	}
	return u.String()
}
