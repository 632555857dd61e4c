// Package archive is a client for the astro data archive HTTP API: advanced
// search over files and HDUs, SIA positional search, field and categorical
// listings, the API version and FITS file retrieval.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banshee-data/astroarchive/internal/httputil"
	"github.com/banshee-data/astroarchive/internal/monitoring"
	"github.com/banshee-data/astroarchive/internal/version"
)

// DefaultURL is the public archive.
const DefaultURL = "https://astroarchive.noao.edu"

// Default result limits applied when a call passes limit 0.
const (
	DefaultFileLimit = 10
	DefaultHDULimit  = 20
)

// NoLimit asks the archive for every matching row.
const NoLimit = -1

// Kind selects between file-level and HDU-level endpoints.
type Kind int

const (
	File Kind = iota
	HDU
)

func (k Kind) String() string {
	if k == HDU {
		return "hdu"
	}
	return "file"
}

// ParseKind accepts "file" or "hdu".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "file", "f":
		return File, nil
	case "hdu", "h":
		return HDU, nil
	}
	return File, fmt.Errorf("unknown record kind %q (want file or hdu)", s)
}

// Client talks to one archive instance. It is safe for concurrent use once
// configured.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
	Verbose    bool
	Token      string
	FileLimit  int
	HDULimit   int
	UserAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, e.g. with a MockHTTPClient in tests.
func WithHTTPClient(h httputil.HTTPClient) Option {
	return func(c *Client) { c.HTTPClient = h }
}

// WithTimeout sets the timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient = httputil.NewStandardClient(nil, d) }
}

// WithVerbose logs every request and response status.
func WithVerbose(v bool) Option {
	return func(c *Client) { c.Verbose = v }
}

// WithToken sets the authorisation token sent with retrievals.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithLimit sets the default result limit for both kinds.
func WithLimit(n int) Option {
	return func(c *Client) {
		c.FileLimit = n
		c.HDULimit = n
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

// New creates a client for the archive at baseURL (DefaultURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		HTTPClient: httputil.NewStandardClient(nil, 60*time.Second),
		BaseURL:    strings.TrimRight(baseURL, "/"),
		FileLimit:  DefaultFileLimit,
		HDULimit:   DefaultHDULimit,
		UserAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) apiURL(path string) string { return c.BaseURL + "/api" + path }
func (c *Client) adsURL(path string) string { return c.BaseURL + "/api/adv_search" + path }
func (c *Client) siaURL(path string) string { return c.BaseURL + "/api/sia" + path }

func (c *Client) logf(format string, v ...interface{}) {
	if c.Verbose {
		monitoring.Logf("archive: "+format, v...)
	}
}

// limitParam resolves a per-call limit: 0 means the client default for kind,
// a negative value means no limit parameter at all.
func (c *Client) limitParam(kind Kind, limit int) (string, bool) {
	if limit < 0 {
		return "", false
	}
	if limit == 0 {
		limit = c.FileLimit
		if kind == HDU {
			limit = c.HDULimit
		}
	}
	return fmt.Sprint(limit), true
}

// do sends a request and returns the response for a 200 status. Any other
// status is drained into a *StatusError.
func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
		c.logf("%s %s with %s", method, rawURL, data)
	} else {
		c.logf("%s %s", method, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	c.logf("%s %s: status=%d", method, rawURL, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL, Body: data}
	}
	return resp, nil
}

// getJSON issues a request and decodes a JSON response into out.
func (c *Client) getJSON(ctx context.Context, method, rawURL string, body, out interface{}) error {
	resp, err := c.do(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// getBytes issues a request and returns the raw response body.
func (c *Client) getBytes(ctx context.Context, method, rawURL string, body interface{}) ([]byte, error) {
	resp, err := c.do(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return data, nil
}

func withQuery(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}
