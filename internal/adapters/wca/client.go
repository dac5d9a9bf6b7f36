// Package wca talks to the public World Cube Association API.
package wca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/pcarank/internal/domain/model"
	"github.com/okian/pcarank/pkg/logger"
	"github.com/okian/pcarank/pkg/metrics"
)

// DefaultCompetitionsURL searches upcoming competitions in the Philippines.
const DefaultCompetitionsURL = "https://www.worldcubeassociation.org/api/v0/search/competitions?q=philippines"

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// ErrUpstream is returned when the API answers with a non-200 status or an
// unreadable body.
var ErrUpstream = errors.New("wca api error")

// Competitions lists upcoming competitions.
type Competitions interface {
	Competitions(ctx context.Context) ([]model.UpcomingCompetition, error)
}

// Client is a minimal HTTP client for the competitions search endpoint.
type Client struct {
	http *http.Client
	url  string
	log  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithURL overrides the search URL.
func WithURL(u string) Option {
	return func(cl *Client) {
		if u != "" {
			cl.url = u
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// NewClient returns a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: defaultTimeout},
		url:  DefaultCompetitionsURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("wca")
	}
	return c
}

type searchResponse struct {
	Result []model.UpcomingCompetition `json:"result"`
}

// Competitions implements Competitions.
func (c *Client) Competitions(ctx context.Context) ([]model.UpcomingCompetition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("wca", "request_failed")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordErrorByComponent("wca", "bad_status")
		return nil, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		metrics.RecordErrorByComponent("wca", "decode_failed")
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}

	c.log.Debug(ctx, "competitions fetched",
		logger.Int("count", len(body.Result)),
		logger.Duration("elapsed", time.Since(start)),
	)
	if body.Result == nil {
		body.Result = []model.UpcomingCompetition{}
	}
	return body.Result, nil
}
