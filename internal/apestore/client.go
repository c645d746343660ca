// Package apestore reads token metadata from the public ape.store API.
package apestore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://ape.store"
	DefaultChain   = "base"

	defaultTimeout = 15 * time.Second
	defaultRetries = 2
	maxBodyBytes   = 1 << 20
)

// BrowserHeaders is sent with every metadata request; the API blocks
// clients that do not look like a browser.
var BrowserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/png,image/svg+xml,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Priority":                  "u=0, i",
}

// Token is the subset of token metadata that gets attested. Absent fields
// are empty strings.
type Token struct {
	Logo        string `json:"logo"`
	Description string `json:"description"`
	Website     string `json:"website"`
}

// Client fetches token metadata.
type Client struct {
	baseURL string
	chain   string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithChain overrides the chain path segment.
func WithChain(chain string) Option {
	return func(cl *Client) { cl.chain = chain }
}

// NewClient returns a client that retries connection errors and 5xx
// responses a couple of times before giving up.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = defaultTimeout
	rc.Logger = nil
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chain:   DefaultChain,
		http:    rc.StandardClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenURL is the metadata endpoint for address. The address is used as
// given; callers normalize it.
func TokenURL(baseURL, chain, address string) string {
	return strings.TrimRight(baseURL, "/") + "/api/token/" + url.PathEscape(chain) + "/" + url.PathEscape(address)
}

// URL returns the endpoint this client queries for address.
func (c *Client) URL(address string) string {
	return TokenURL(c.baseURL, c.chain, address)
}

// Token fetches metadata for address. A "not found" status or a missing
// token object yields (nil, nil).
func (c *Client) Token(ctx context.Context, address string) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(address), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build metadata request")
	}
	for k, v := range BrowserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch token metadata")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read token metadata")
	}
	return ParseToken(body)
}

// ParseToken interprets a metadata API response body.
func ParseToken(body []byte) (*Token, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("token metadata response is not valid json")
	}

	doc := gjson.ParseBytes(body)
	if isNotFound(doc.Get("status")) {
		return nil, nil
	}

	token := doc.Get("token")
	if !token.Exists() || token.Type == gjson.Null || !token.IsObject() {
		return nil, nil
	}

	return &Token{
		Logo:        stringField(token, "logo"),
		Description: stringField(token, "description"),
		Website:     stringField(token, "website"),
	}, nil
}

func isNotFound(status gjson.Result) bool {
	switch status.Type {
	case gjson.Number:
		return status.Int() == http.StatusNotFound
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(status.Str))
		return s == "404" || s == "not found"
	}
	return false
}

func stringField(obj gjson.Result, name string) string {
	v := obj.Get(name)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
