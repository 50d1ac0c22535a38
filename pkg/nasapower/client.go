// Package nasapower reads long-term climatology from the NASA POWER API.
package nasapower

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

// DefaultURL is the climatology point endpoint.
const DefaultURL = "https://power.larc.nasa.gov/api/temporal/climatology/point"

const (
	// ParamPrecipitation is bias-corrected precipitation in mm/day.
	ParamPrecipitation = "PRECTOTCORR"
	// CommunityAG is the agroclimatology community.
	CommunityAG = "AG"
	// fillValue is what POWER reports for missing data.
	fillValue = -999.0
)

// ErrMissing is returned when the requested parameter or its annual value is
// absent or carries the fill value.
var ErrMissing = eris.New("nasapower: parameter missing from response")

// Client fetches climatology values.
type Client interface {
	// Annual returns the "ANN" climatology value of parameter at a point.
	Annual(ctx context.Context, parameter string, lat, lon float64) (float64, error)
}

type climatologyResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
	Messages []string `json:"messages"`
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithCommunity sets the POWER user community (AG, RE or SB).
func WithCommunity(community string) Option {
	return func(c *client) {
		if community != "" {
			c.community = community
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
	baseURL   string
	community string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a NASA POWER client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:   DefaultURL,
		community: CommunityAG,
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Annual(ctx context.Context, parameter string, lat, lon float64) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "nasapower: rate limit")
	}

	params := url.Values{
		"parameters": {parameter},
		"community":  {c.community},
		"latitude":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":     {"JSON"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, params.Encode()), nil)
	if err != nil {
		return 0, eris.Wrap(err, "nasapower: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "nasapower: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "nasapower: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, resilience.StatusError("nasapower", resp.StatusCode, string(body))
	}

	var out climatologyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, eris.Wrap(err, "nasapower: parse response")
	}

	v, ok := out.Properties.Parameter[parameter]["ANN"]
	if !ok || v == fillValue {
		return 0, eris.Wrapf(ErrMissing, "nasapower: %s", parameter)
	}
	return v, nil
}
