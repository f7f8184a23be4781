package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/ingest"
)

// DataHandlers serves raw collector data through the ingest pipeline, so
// everything returned here went through validation, caching and rate limits.
type DataHandlers struct {
	ingest    *ingest.Service
	locations []ingest.Location
	log       zerolog.Logger
}

// NewDataHandlers creates the data API handlers.
func NewDataHandlers(deps Deps) *DataHandlers {
	return &DataHandlers{
		ingest:    deps.Ingest,
		locations: deps.Cfg.Locations,
		log:       deps.Log.With().Str("component", "data_handlers").Logger(),
	}
}

// resolveLocation picks a location from ?location=Name (configured farms) or
// explicit ?lat=&lon=. Defaults to the first configured farm.
func (h *DataHandlers) resolveLocation(r *http.Request) (ingest.Location, error) {
	q := r.URL.Query()

	if name := q.Get("location"); name != "" {
		for _, loc := range h.locations {
			if strings.EqualFold(loc.Name, name) {
				return loc, nil
			}
		}
		return ingest.Location{}, fmt.Errorf("%w: unknown location %q", domain.ErrValidation, name)
	}

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" || lonStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lon, errLon := strconv.ParseFloat(lonStr, 64)
		if errLat != nil || errLon != nil {
			return ingest.Location{}, fmt.Errorf("%w: lat/lon must both be numeric", domain.ErrValidation)
		}
		return ingest.Location{Name: "custom", Lat: lat, Lon: lon}, nil
	}

	return h.locations[0], nil
}

// HandleWeather returns current weather for a location.
// GET /api/data/weather?location=Mumbai
func (h *DataHandlers) HandleWeather(w http.ResponseWriter, r *http.Request) {
	loc, err := h.resolveLocation(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, h.ingest.FetchWeather(r.Context(), loc))
}

// HandleMarket returns the current commodity price.
// GET /api/data/market?commodity=WHEAT
func (h *DataHandlers) HandleMarket(w http.ResponseWriter, r *http.Request) {
	commodity := strings.ToUpper(r.URL.Query().Get("commodity"))
	if commodity == "" {
		writeError(w, r, h.log, fmt.Errorf("%w: commodity parameter required", domain.ErrValidation))
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, h.ingest.FetchMarket(r.Context(), commodity))
}

// HandleMarketHistory returns the monthly price series plus a computed trend.
// GET /api/data/market/history?commodity=WHEAT&months=6
func (h *DataHandlers) HandleMarketHistory(w http.ResponseWriter, r *http.Request) {
	commodity := strings.ToUpper(r.URL.Query().Get("commodity"))
	if commodity == "" {
		writeError(w, r, h.log, fmt.Errorf("%w: commodity parameter required", domain.ErrValidation))
		return
	}
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, r, h.log, fmt.Errorf("%w: months must be in [1, 60]", domain.ErrValidation))
			return
		}
		months = n
	}

	result := h.ingest.FetchMarketHistory(r.Context(), commodity, months)

	response := struct {
		History domain.CollectorResult `json:"history"`
		Trend   *ingest.Trend          `json:"trend,omitempty"`
	}{History: result}

	var payload struct {
		Prices []float64 `json:"prices"`
	}
	if err := json.Unmarshal(result.Payload, &payload); err == nil {
		if trend, err := ingest.PriceTrend(payload.Prices); err == nil {
			response.Trend = trend
		}
	}

	writeJSON(w, r, h.log, http.StatusOK, response)
}

// HandleSoil returns soil properties for a location.
// GET /api/data/soil?lat=19.0760&lon=72.8777
func (h *DataHandlers) HandleSoil(w http.ResponseWriter, r *http.Request) {
	loc, err := h.resolveLocation(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, h.ingest.FetchSoil(r.Context(), loc))
}

// HandleFeatures assembles a model-ready feature vector from live collector
// data plus caller-supplied rainfall and fertilizer figures.
// GET /api/data/features?location=Mumbai&rainfall_mm=120&fertilizer_kg_ha=80
func (h *DataHandlers) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	loc, err := h.resolveLocation(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	rainfall, err := queryFloat(r, "rainfall_mm", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	fertilizer, err := queryFloat(r, "fertilizer_kg_ha", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	features, provenance, err := h.liveFeatures(r, loc, rainfall, fertilizer)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, r, h.log, http.StatusOK, struct {
		Features   domain.FeatureVector `json:"features"`
		Provenance domain.Provenance    `json:"provenance"`
	}{Features: features, Provenance: provenance})
}

// liveFeatures fetches weather and soil for a location and builds the feature
// vector. The reported provenance is the weakest of the two sources.
func (h *DataHandlers) liveFeatures(r *http.Request, loc ingest.Location, rainfall, fertilizer float64) (domain.FeatureVector, domain.Provenance, error) {
	wres := h.ingest.FetchWeather(r.Context(), loc)
	sres := h.ingest.FetchSoil(r.Context(), loc)

	var wp weather.Payload
	if err := json.Unmarshal(wres.Payload, &wp); err != nil {
		return domain.FeatureVector{}, "", fmt.Errorf("failed to decode weather payload: %w", err)
	}
	var sp soil.Payload
	if err := json.Unmarshal(sres.Payload, &sp); err != nil {
		return domain.FeatureVector{}, "", fmt.Errorf("failed to decode soil payload: %w", err)
	}

	features := ingest.BuildFeatureVector(wp, sp, rainfall, fertilizer)
	if err := features.Validate(); err != nil {
		return domain.FeatureVector{}, "", err
	}
	return features, weakerProvenance(wres.Provenance, sres.Provenance), nil
}

// weakerProvenance orders live > cached > fallback and returns the weaker tag.
func weakerProvenance(a, b domain.Provenance) domain.Provenance {
	rank := map[domain.Provenance]int{
		domain.ProvenanceLive:     2,
		domain.ProvenanceCached:   1,
		domain.ProvenanceFallback: 0,
	}
	if rank[a] <= rank[b] {
		return a
	}
	return b
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be numeric", domain.ErrValidation, key)
	}
	return f, nil
}
