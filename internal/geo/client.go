// Package geo resolves source IP addresses to coarse locations.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

const (
	DefaultBaseURL = "http://ip-api.com/json"
	DefaultTimeout = 3 * time.Second
)

// DefaultLocation is returned whenever an address cannot be resolved
var DefaultLocation = models.Location{
	Latitude:  0,
	Longitude: 0,
	City:      "Unknown",
	Country:   "Unknown",
}

// Client queries an ip-api compatible endpoint
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "geo").Logger(),
	}
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// Lookup resolves ip. It never fails: private, loopback and unparseable
// addresses, timeouts and service errors all yield DefaultLocation.
func (c *Client) Lookup(ctx context.Context, ip string) models.Location {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return DefaultLocation
	}

	loc, err := c.lookup(ctx, parsed.String())
	if err != nil {
		c.logger.Warn().Err(err).Str("ip", ip).Msg("geolocation lookup failed, using default location")
		return DefaultLocation
	}
	return loc
}

func (c *Client) lookup(ctx context.Context, ip string) (models.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+ip, nil)
	if err != nil {
		return models.Location{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Location{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return models.Location{}, fmt.Errorf("lookup status %q: %s", body.Status, body.Message)
	}

	return models.Location{
		Latitude:  body.Lat,
		Longitude: body.Lon,
		City:      body.City,
		Country:   body.Country,
	}, nil
}
