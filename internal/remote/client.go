package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/jsonic/jsonic"
)

const userAgent = "jsonic-go/1.0"

// maxArtifactSize bounds downloaded artifacts.
const maxArtifactSize = 64 << 20

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. to share a transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a jsonic.Service backed by a JSonic server.
type Client struct {
	config     Config
	base       *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ jsonic.Service = (*Client)(nil)

// NewClient creates a client for the server at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		config:     cfg,
		base:       base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Default(),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Synthesize asks the server to render one utterance and returns the URL of
// the resulting file.
func (c *Client) Synthesize(ctx context.Context, req jsonic.SynthesisRequest) (jsonic.Artifact, error) {
	id := uuid.NewString()
	body := synthRequest{
		Format:     c.config.Format,
		Engine:     req.Engine,
		Utterances: map[string]string{id: req.Text},
		Properties: synthProperties{
			Voice: req.Voice,
			Rate:  req.Rate,
			Pitch: req.Pitch,
		},
	}

	var result map[string]string
	if err := c.call(ctx, http.MethodPost, "synth", body, &result); err != nil {
		return jsonic.Artifact{}, fmt.Errorf("synthesize: %w", err)
	}

	name, ok := result[id]
	if !ok || name == "" {
		return jsonic.Artifact{}, fmt.Errorf("synthesize: %w: reply has no file for the utterance", jsonic.ErrRemoteUnavailable)
	}

	c.logger.Debug("remote: synthesized", "engine", req.Engine, "voice", req.Voice, "rate", req.Rate, "file", name)
	return jsonic.Artifact{URL: c.fileURL(name)}, nil
}

// Fetch downloads a resource.
func (c *Client) Fetch(ctx context.Context, resource string) (jsonic.Artifact, error) {
	if err := c.wait(ctx); err != nil {
		return jsonic.Artifact{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return jsonic.Artifact{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jsonic.Artifact{}, unavailable("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jsonic.Artifact{}, fmt.Errorf("fetch %s: %w: status %d", resource, jsonic.ErrRemoteUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		return jsonic.Artifact{}, unavailable("reading artifact", err)
	}

	c.logger.Debug("remote: fetched", "url", resource, "bytes", len(data))
	return jsonic.Artifact{URL: resource, Data: data}, nil
}

// Resolve turns a sound locator into an absolute URL. Relative locators are
// resolved against the server root and get the configured format appended
// when they have no extension.
func (c *Client) Resolve(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return locator
	}
	if path.Ext(u.Path) == "" {
		u.Path += c.config.Format
	}
	if u.IsAbs() {
		return u.String()
	}
	return c.base.ResolveReference(u).String()
}

// Engines lists the engine names known to the server.
func (c *Client) Engines(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, http.MethodGet, "engine", nil, &names); err != nil {
		return nil, fmt.Errorf("list engines: %w", err)
	}
	return names, nil
}

// EngineInfo describes the properties of one engine.
func (c *Client) EngineInfo(ctx context.Context, name string) (jsonic.EngineInfo, error) {
	var info jsonic.EngineInfo
	err := c.call(ctx, http.MethodGet, "engine/"+url.PathEscape(name), nil, &info)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", name, err)
	}
	return info, nil
}

// call performs a JSON request against the server and decodes the result
// field of the reply into out.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.base.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxArtifactSize)).Decode(&env)

	if resp.StatusCode == http.StatusNotFound || isUnknownEngine(env.Description) {
		return fmt.Errorf("%w: %s", jsonic.ErrNotFound, describe(env, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK || decodeErr != nil || !env.Success {
		if decodeErr != nil && resp.StatusCode == http.StatusOK {
			return unavailable("decoding reply", decodeErr)
		}
		return fmt.Errorf("%w: %s", jsonic.ErrRemoteUnavailable, describe(env, resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return unavailable("decoding result", err)
		}
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *Client) fileURL(name string) string {
	if path.Ext(name) == "" {
		name += c.config.Format
	}
	return c.base.ResolveReference(&url.URL{Path: "files/" + name}).String()
}

func unavailable(action string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %w: %v", action, jsonic.ErrRemoteUnavailable, err)
}

func isUnknownEngine(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "invalid engine") || strings.Contains(d, "unknown speech engine")
}

func describe(env envelope, status int) string {
	if env.Description != "" {
		return env.Description
	}
	return fmt.Sprintf("status %d", status)
}
