// Package waqi provides a client for the World Air Quality Index geo feed.
package waqi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the WAQI API.
	DefaultBaseURL = "https://api.waqi.info"

	// ProviderName identifies this provider.
	ProviderName = "waqi"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the WAQI client.
type ClientConfig struct {
	// Token is the WAQI API token (required).
	Token string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a single-attempt resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Registry receives provider health reports: transport outcomes from the
	// default client, and payload failures from FetchOnce.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client fetches air quality readings from WAQI.
type Client struct {
	token      string
	baseURL    string
	httpClient HTTPDoer
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new WAQI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:           ProviderName,
			Timeout:        timeout,
			DisableRetries: true,
			Registry:       cfg.Registry,
			Logger:         cfg.Logger,
		})
	}

	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FeedURL returns the geo feed URL for a coordinate.
func (c *Client) FeedURL(coord airquality.Coordinate) string {
	return fmt.Sprintf("%s/feed/geo:%s;%s/?token=%s",
		c.baseURL,
		strconv.FormatFloat(coord.Lat, 'f', -1, 64),
		strconv.FormatFloat(coord.Lon, 'f', -1, 64),
		url.QueryEscape(c.token),
	)
}

// FetchOnce issues a single GET for the coordinate and parses the reading.
// The HTTP status code is not inspected: the body decides success.
func (c *Client) FetchOnce(ctx context.Context, coord airquality.Coordinate) (*airquality.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL(coord), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", airquality.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", airquality.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", airquality.ErrNetwork, err)
	}

	c.logger.Debug().
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Str("coordinate", coord.String()).
		Msg("waqi response received")

	reading, err := ParseFeed(body, coord)
	if err != nil {
		// The transport saw a good exchange; record the payload failure so
		// provider health reflects it.
		if c.registry != nil {
			c.registry.RecordFailure(ProviderName, err)
		}
		return nil, err
	}
	reading.FetchedAt = time.Now()
	return reading, nil
}

// ParseFeed converts a geo feed response body into a reading.
func ParseFeed(body []byte, coord airquality.Coordinate) (*airquality.Reading, error) {
	var envelope feedResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", airquality.ErrParse, err)
	}

	if envelope.Status != statusOK {
		return nil, upstreamError(envelope)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, airquality.ErrMissingStationData
	}

	var station feedData
	if err := json.Unmarshal(data, &station); err != nil {
		return nil, fmt.Errorf("%w: data: %v", airquality.ErrParse, err)
	}

	return station.toReading(coord), nil
}

func upstreamError(envelope feedResponse) error {
	if envelope.Status == "" {
		return fmt.Errorf("%w: status missing", airquality.ErrUpstreamStatus)
	}

	// Error responses carry the reason as a bare string in data.
	var message string
	if err := json.Unmarshal(envelope.Data, &message); err == nil && message != "" {
		return fmt.Errorf("%w: %s: %s", airquality.ErrUpstreamStatus, envelope.Status, message)
	}
	return fmt.Errorf("%w: %s", airquality.ErrUpstreamStatus, envelope.Status)
}

func (d *feedData) toReading(coord airquality.Coordinate) *airquality.Reading {
	reading := airquality.NewReading(coord)
	reading.AQI = d.AQI.value()
	reading.StationName = d.City.Name
	reading.MeasuredAt = d.Time.S

	if len(d.City.Geo) == 2 {
		reading.StationLocation = &airquality.Coordinate{Lat: d.City.Geo[0], Lon: d.City.Geo[1]}
	}

	for code, sample := range d.IAQI {
		p, ok := airquality.ParsePollutant(code)
		if !ok {
			continue
		}
		if v := sample.V.value(); v != nil {
			reading.Samples[p] = *v
		}
	}

	return reading
}
