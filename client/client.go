// Package client implements an authenticated REST client for APIs secured
// with the OAuth2 client_credentials grant. Access tokens are minted against
// <baseURL>/oauth/token, cached (in memory plus an optional store), and
// attached to requests as the access_token query parameter.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"restkit/auth"
	"restkit/cache"
)

const defaultTimeoutSeconds = 60

// testPath is the diagnostic endpoint exercised by TestRequest.
const testPath = "test/"

// retryDelay is the pause before the single 503 retry.
var retryDelay = time.Second

// Config carries the client credentials and API location.
type Config struct {
	// BaseURL is the root of the REST API. Required.
	BaseURL string

	// ClientID and ClientSecret authenticate the client_credentials grant.
	ClientID     string
	ClientSecret string

	Settings Settings
}

// Settings are the optional knobs; the zero value gives the defaults
// (60 s timeout, 503 retry on, no JSON decoding, no token cache).
type Settings struct {
	// CachePath, when set, must be an existing readable and writable
	// directory; tokens are cached as files there. Takes precedence over
	// Cache.
	CachePath string

	// TimeoutSeconds bounds each request round-trip. Defaults to 60.
	TimeoutSeconds int

	// DisableRetryOn503 opts out of the single retry on a 503 response.
	DisableRetryOn503 bool

	// DecodeJSON opportunistically decodes JSON response bodies into
	// Response.Decoded.
	DecodeJSON bool

	// Cache is an optional external token cache collaborator, used when
	// CachePath is unset.
	Cache cache.Store

	// Logger receives request and cache diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// Response is a successful API response.
type Response struct {
	Status int
	Header http.Header
	Raw    []byte

	// Decoded holds the unmarshalled body when Settings.DecodeJSON is on
	// and the body is valid JSON.
	Decoded any
}

// Client calls a single REST API family. A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	settings   Settings
	httpClient *http.Client
	tokens     *auth.Manager
	logger     *slog.Logger

	mu           sync.Mutex
	globalParams url.Values
}

// New validates the configuration and builds a client. An empty base URL or
// an unusable cache directory fails with an error wrapping ErrInvalidConfig.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}

	settings := cfg.Settings
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = defaultTimeoutSeconds
	}

	logger := settings.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store := settings.Cache
	if settings.CachePath != "" {
		fs, err := cache.NewFileStore(settings.CachePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		store = fs
	}
	if store == nil {
		store = cache.NopStore{}
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		settings: settings,
		httpClient: &http.Client{
			Timeout: time.Duration(settings.TimeoutSeconds) * time.Second,
		},
		logger:       logger,
		globalParams: url.Values{},
	}

	provider := auth.NewGrantProvider(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, c.httpClient, c.globalParamsCopy)
	c.tokens = auth.NewManager(cfg.ClientID, provider, store, logger)

	return c, nil
}

// SetGlobalParams merges params into the set sent with every subsequent
// request's query string and every token grant.
func (c *Client) SetGlobalParams(params url.Values) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, vs := range params {
		c.globalParams[k] = append([]string(nil), vs...)
	}
}

// SetGlobalParam sets a single global request parameter.
func (c *Client) SetGlobalParam(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalParams.Set(key, value)
}

func (c *Client) globalParamsCopy() url.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := url.Values{}
	for k, vs := range c.globalParams {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Get issues an authenticated GET request.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, params, Body{}, true)
}

// Post issues an authenticated POST request.
func (c *Client) Post(ctx context.Context, path string, body Body) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body, true)
}

// Do builds and sends one logical request. All failures surface as *APIError:
// grant failures (no resource request is sent), network errors, and non-2xx
// statuses. A 503 is retried exactly once after a 1 s pause unless disabled.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body Body, authenticate bool) (*Response, error) {
	q := c.globalParamsCopy()
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}

	if authenticate {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.Error("failed to obtain access token", "method", method, "path", path, "error", err)
			return nil, newAPIError(0, err.Error(), err)
		}
		q.Set("access_token", tok.AccessToken)
	}

	data, contentType, err := body.encode()
	if err != nil {
		return nil, newAPIError(0, err.Error(), err)
	}

	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	requestID := uuid.NewString()

	retries := 0
	if !c.settings.DisableRetryOn503 {
		retries = 1
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
		if err != nil {
			return nil, newAPIError(0, err.Error(), err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("X-Request-Id", requestID)

		start := time.Now()
		resp, err = c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("request failed",
				"method", method,
				"path", path,
				"request_id", requestID,
				"error", err)
			return nil, newAPIError(0, err.Error(), err)
		}
		c.logger.Debug("request completed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"duration", time.Since(start))

		if resp.StatusCode == http.StatusServiceUnavailable && attempt < retries {
			resp.Body.Close()
			c.logger.Warn("service unavailable, retrying once",
				"method", method,
				"path", path,
				"request_id", requestID)
			select {
			case <-ctx.Done():
				return nil, newAPIError(0, ctx.Err().Error(), ctx.Err())
			case <-time.After(retryDelay):
			}
			continue
		}
		break
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, newAPIError(0, fmt.Sprintf("failed to decompress response: %v", err), err)
		}
		defer gz.Close()
		reader = gz
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, newAPIError(0, fmt.Sprintf("failed to read response body: %v", err), err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		description := strings.TrimSpace(string(raw))
		if description == "" {
			description = http.StatusText(resp.StatusCode)
		}
		return nil, newAPIError(resp.StatusCode, description, nil)
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Raw: raw}
	if c.settings.DecodeJSON && json.Valid(raw) {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out.Decoded = decoded
		}
	}
	return out, nil
}

// TestRequest sends the fixed diagnostic POST and verifies the endpoint
// reports success. Unlike the request methods its contract is a plain error:
// it exists to answer "can I reach and authenticate against this API".
func (c *Client) TestRequest(ctx context.Context) error {
	resp, err := c.Post(ctx, testPath, Body{})
	if err != nil {
		return fmt.Errorf("test request failed: %w", err)
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return fmt.Errorf("test request returned a non-JSON body: %w", err)
	}
	if !out.Success {
		return ErrTestFailed
	}
	return nil
}
