// Package soil provides topsoil property fetching from the public SoilGrids
// REST API. SoilGrids requires no API key.
package soil

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

// Payload holds key topsoil (0-5cm) properties in standard units.
type Payload struct {
	SoilPH          float64 `json:"soil_ph"`
	OrganicCarbon   float64 `json:"organic_carbon_percent"`
	CationExchange  float64 `json:"cation_exchange_capacity"`
	NitrogenGPerKg  float64 `json:"nitrogen_g_per_kg"`
}

// FallbackPayload is the documented static default for failed soil fetches:
// a neutral loam profile.
func FallbackPayload() Payload {
	return Payload{
		SoilPH:         6.5,
		OrganicCarbon:  1.5,
		CationExchange: 12.0,
		NitrogenGPerKg: 0.15,
	}
}

// Client for the SoilGrids properties API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new SoilGrids client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://rest.isric.org/soilgrids/v2.0/properties/query",
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "soilgrids").Logger(),
	}
}

// soilGridsResponse mirrors the layered response shape.
type soilGridsResponse struct {
	Properties struct {
		Layers []struct {
			Name   string `json:"name"`
			Depths []struct {
				Values struct {
					Mean *float64 `json:"mean"`
				} `json:"values"`
			} `json:"depths"`
		} `json:"layers"`
	} `json:"properties"`
}

// GetProperties fetches topsoil properties for a coordinate pair. SoilGrids
// returns scaled integer units; values are converted to standard units here.
func (c *Client) GetProperties(ctx context.Context, lat, lon float64) (*Payload, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	for _, p := range []string{"phh2o", "soc", "cec", "nitrogen"} {
		params.Add("property", p)
	}
	params.Set("depth", "0-5cm")
	params.Set("value", "mean")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build soil request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soil API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("soil API returned status %d", resp.StatusCode)
	}

	var data soilGridsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse soil response: %w", err)
	}

	payload := FallbackPayload() // per-property default when a layer is missing
	for _, layer := range data.Properties.Layers {
		if len(layer.Depths) == 0 || layer.Depths[0].Values.Mean == nil {
			continue
		}
		mean := *layer.Depths[0].Values.Mean
		switch layer.Name {
		case "phh2o": // pH x 10
			payload.SoilPH = mean / 10.0
		case "soc": // dg/kg -> percent
			payload.OrganicCarbon = mean / 100.0
		case "cec": // mmol(c)/kg -> cmol(c)/kg
			payload.CationExchange = mean / 10.0
		case "nitrogen": // cg/kg -> g/kg
			payload.NitrogenGPerKg = mean / 100.0
		}
	}

	c.log.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Float64("soil_ph", payload.SoilPH).
		Msg("Fetched soil properties")

	return &payload, nil
}
