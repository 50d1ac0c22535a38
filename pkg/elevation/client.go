// Package elevation looks up ground elevation from an Open-Elevation server.
package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/hmpi-cli/internal/resilience"
)

// DefaultURL is the public Open-Elevation lookup endpoint.
const DefaultURL = "https://api.open-elevation.com/api/v1/lookup"

// ErrNoResult is returned when the server answers without a result.
var ErrNoResult = eris.New("elevation: empty result")

// Client returns the elevation in metres at a coordinate.
type Client interface {
	Lookup(ctx context.Context, lat, lon float64) (float64, error)
}

type lookupResponse struct {
	Results []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// Option configures the client.
type Option func(*client)

// WithBaseURL points the client at a self-hosted Open-Elevation instance.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

type client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an elevation client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL: DefaultURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Lookup(ctx context.Context, lat, lon float64) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "elevation: rate limit")
	}

	loc := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, url.Values{"locations": {loc}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, resilience.StatusError("elevation", resp.StatusCode, string(body))
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, eris.Wrap(err, "elevation: parse response")
	}
	if len(out.Results) == 0 || out.Results[0].Elevation == nil {
		return 0, ErrNoResult
	}
	return *out.Results[0].Elevation, nil
}
