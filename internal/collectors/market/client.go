// Package market provides agricultural commodity pricing from Alpha Vantage.
package market

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

// Commodities accepted by the monthly price endpoint.
var ValidCommodities = map[string]bool{
	"CORN":     true,
	"WHEAT":    true,
	"SOYBEANS": true,
	"RICE":     true,
	"COFFEE":   true,
	"SUGAR":    true,
}

// Payload is the latest price point for a commodity.
type Payload struct {
	Commodity string  `json:"commodity"`
	Date      string  `json:"date"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
}

// HistoryPayload is the recent monthly price series, oldest first. Trend
// indicators (SMA, momentum) are computed downstream.
type HistoryPayload struct {
	Commodity string    `json:"commodity"`
	Prices    []float64 `json:"prices"`
}

// FallbackPayload is the documented static default for a commodity when the
// live fetch fails.
func FallbackPayload(commodity string) Payload {
	return Payload{
		Commodity: commodity,
		Date:      "",
		Price:     450.0,
		Unit:      "USD per metric ton",
	}
}

// Client for the Alpha Vantage commodities API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co/query",
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "alphavantage").Logger(),
	}
}

// commodityResponse mirrors the COMMODITY monthly series response.
type commodityResponse struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	Data []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"data"`
}

// GetCommodityPrice fetches the latest monthly price for a commodity.
func (c *Client) GetCommodityPrice(ctx context.Context, commodity string) (*Payload, error) {
	series, err := c.fetchSeries(ctx, commodity)
	if err != nil {
		return nil, err
	}

	latest := series.Data[0]
	price, err := strconv.ParseFloat(latest.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable price %q for %s: %w", latest.Value, commodity, err)
	}

	c.log.Debug().
		Str("commodity", commodity).
		Str("date", latest.Date).
		Float64("price", price).
		Msg("Fetched commodity price")

	return &Payload{
		Commodity: series.Name,
		Date:      latest.Date,
		Price:     price,
		Unit:      series.Unit,
	}, nil
}

// GetPriceHistory fetches up to months recent monthly prices, oldest first.
func (c *Client) GetPriceHistory(ctx context.Context, commodity string, months int) (*HistoryPayload, error) {
	series, err := c.fetchSeries(ctx, commodity)
	if err != nil {
		return nil, err
	}

	n := len(series.Data)
	if months > 0 && months < n {
		n = months
	}

	// API returns newest first; reverse into chronological order.
	prices := make([]float64, 0, n)
	for i := n - 1; i >= 0; i-- {
		p, err := strconv.ParseFloat(series.Data[i].Value, 64)
		if err != nil {
			continue // series occasionally contains "." placeholders
		}
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no parseable prices for %s", commodity)
	}

	return &HistoryPayload{Commodity: series.Name, Prices: prices}, nil
}

func (c *Client) fetchSeries(ctx context.Context, commodity string) (*commodityResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alphavantage API key not configured")
	}
	if !ValidCommodities[commodity] {
		return nil, fmt.Errorf("unsupported commodity: %s", commodity)
	}

	params := url.Values{}
	params.Set("function", commodity)
	params.Set("interval", "monthly")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build market request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market API returned status %d", resp.StatusCode)
	}

	var data commodityResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse market response: %w", err)
	}
	if len(data.Data) == 0 {
		return nil, fmt.Errorf("no market data returned for %s", commodity)
	}

	return &data, nil
}
