// Package api is the HTTP resource client for the Artai API. It builds JSON
// and multipart requests, attaches the session's bearer token, decodes
// responses and turns every failure into an *artai.Error.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"artai-go/internal/artai"
	"artai-go/internal/config"
)

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL      string
	AssetBaseURL string
	UserAgent    string
	Timeout      time.Duration

	// HTTPClient overrides the transport. Its Timeout is left alone.
	HTTPClient *http.Client
	IDs        artai.IDGenerator
	Clock      artai.Clock
	Logger     artai.Logger
}

// Client talks to the Artai API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	assetBase string
	userAgent string
	http      *http.Client
	ids       artai.IDGenerator
	clock     artai.Clock
	logger    artai.Logger

	mu     sync.RWMutex
	tokens artai.TokenSource
}

var (
	_ artai.AuthAPI     = (*Client)(nil)
	_ artai.ResourceAPI = (*Client)(nil)
)

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		assetBase: strings.TrimRight(opts.AssetBaseURL, "/"),
		userAgent: opts.UserAgent,
		http:      hc,
		ids:       opts.IDs,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if c.ids == nil {
		c.ids = artai.UUIDGenerator{}
	}
	if c.clock == nil {
		c.clock = artai.RealClock{}
	}
	if c.logger == nil {
		c.logger = artai.NewNopLogger()
	}
	if c.userAgent == "" {
		c.userAgent = config.DefaultUserAgent
	}
	return c, nil
}

// NewClientFromConfig creates a Client for the endpoint described by cfg.
func NewClientFromConfig(cfg *config.Config, logger artai.Logger) (*Client, error) {
	return New(Options{
		BaseURL:      cfg.BaseURL,
		AssetBaseURL: cfg.AssetBaseURL,
		UserAgent:    cfg.UserAgent,
		Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:       logger,
	})
}

// SetTokenSource sets where the bearer token comes from. Until it is set
// requests go out unauthenticated.
func (c *Client) SetTokenSource(ts artai.TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) tokenSource() artai.TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// AssetURL resolves a server file_path against the asset base URL. Absolute
// URLs and empty paths are returned unchanged.
func (c *Client) AssetURL(filePath string) string {
	if filePath == "" || strings.HasPrefix(filePath, "http://") || strings.HasPrefix(filePath, "https://") {
		return filePath
	}
	base := c.assetBase
	if base == "" {
		base = c.baseURL
	}
	return base + "/" + strings.TrimLeft(filePath, "/")
}

// do sends r and decodes a successful body into out (which may be nil).
func (c *Client) do(ctx context.Context, r *request, out any) error {
	op := r.method + " " + r.path
	if r.err != nil {
		return artai.NewError(artai.KindValidation, op, 0, "building request: "+r.err.Error(), r.err)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return artai.NewError(artai.KindNetwork, op, 0, "creating request: "+err.Error(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", c.ids.New())
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	var sent string
	if !r.anonymous {
		if ts := c.tokenSource(); ts != nil {
			if tok := ts.Token(); tok != nil && tok.AccessToken != "" {
				tok.SetAuthHeader(req)
				sent = tok.AccessToken
			}
		}
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "op", op, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return artai.NewError(artai.KindNetwork, op, 0, "request canceled", ctxErr)
		}
		return artai.NewError(artai.KindNetwork, op, 0, "could not reach the Artai API", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "op", op, "status", resp.StatusCode, "duration", c.clock.Now().Sub(start))

	body, readErr := readBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFor(op, resp, body)
		if apiErr.Kind == artai.KindAuthRejected && sent != "" {
			if ts := c.tokenSource(); ts != nil {
				ts.TokenRejected(sent)
			}
		}
		return apiErr
	}
	if readErr != nil {
		return artai.NewError(artai.KindDecode, op, resp.StatusCode, "reading response: "+readErr.Error(), readErr)
	}
	if err := body.decode(out); err != nil {
		return artai.NewError(artai.KindDecode, op, resp.StatusCode, "decoding response: "+err.Error(), err)
	}
	return nil
}
