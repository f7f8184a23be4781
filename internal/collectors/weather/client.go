// Package weather provides current-conditions fetching from OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Payload is the normalized weather observation handed to the ingestion layer.
type Payload struct {
	Temperature float64 `json:"temperature"` // celsius
	Humidity    float64 `json:"humidity"`    // percent
	Description string  `json:"description"`
	City        string  `json:"city"`
}

// FallbackPayload is the documented static default served when live fetch,
// rate limiting, or validation fails. Values match typical conditions for the
// default farm location (Mumbai).
func FallbackPayload() Payload {
	return Payload{
		Temperature: 30.0,
		Humidity:    65.0,
		Description: "Fallback Conditions",
		City:        "Unknown",
	}
}

// Client for the OpenWeatherMap current weather API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "openweathermap").Logger(),
	}
}

// openWeatherResponse mirrors the subset of the API response we consume.
type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// GetCurrent fetches current conditions for a coordinate pair, in metric units.
func (c *Client) GetCurrent(ctx context.Context, lat, lon float64) (*Payload, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openweathermap API key not configured")
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var data openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse weather response: %w", err)
	}

	payload := &Payload{
		Temperature: data.Main.Temp,
		Humidity:    data.Main.Humidity,
		City:        data.Name,
	}
	if len(data.Weather) > 0 {
		payload.Description = data.Weather[0].Description
	}

	c.log.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Float64("temperature", payload.Temperature).
		Float64("humidity", payload.Humidity).
		Msg("Fetched current weather")

	return payload, nil
}
