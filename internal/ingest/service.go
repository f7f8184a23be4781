// Package ingest orchestrates collector fetches into tagged results the
// model layer can trust: cache-first with TTL, a token bucket per source,
// in-flight request collapsing per key, range validation, and a static
// fallback payload when everything else fails. Fetches never return errors
// to the caller; degraded data is labeled, not hidden.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/agrilab/quantfarm/internal/clientdata"
	"github.com/agrilab/quantfarm/internal/collectors/market"
	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/events"
)

// Per-source token bucket limits. Weather is generous, Alpha Vantage's free
// tier is tight, SoilGrids sits in between.
const (
	weatherRatePerMin = 60
	marketRatePerMin  = 5
	soilRatePerMin    = 30
)

// Retry policy for live fetches. Rate-limit exhaustion is not retried; it
// degrades immediately.
const (
	maxFetchRetries  = 2
	retryBackoffBase = 300 * time.Millisecond
	fetchTimeout     = 20 * time.Second
)

// Location identifies a farm site for weather and soil lookups.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key renders the cache key for this location.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// WeatherAPI is the collector capability the service needs for weather.
type WeatherAPI interface {
	GetCurrent(ctx context.Context, lat, lon float64) (*weather.Payload, error)
}

// MarketAPI is the collector capability for commodity prices.
type MarketAPI interface {
	GetCommodityPrice(ctx context.Context, commodity string) (*market.Payload, error)
	GetPriceHistory(ctx context.Context, commodity string, months int) (*market.HistoryPayload, error)
}

// SoilAPI is the collector capability for soil properties.
type SoilAPI interface {
	GetProperties(ctx context.Context, lat, lon float64) (*soil.Payload, error)
}

// Service is the data ingestion layer. Cache and limiters are injected,
// never ambient globals; one Service instance is shared across requests and
// is safe for concurrent use.
type Service struct {
	cache   *clientdata.Repository
	weather WeatherAPI
	market  MarketAPI
	soil    SoilAPI

	weatherLimiter *rate.Limiter
	marketLimiter  *rate.Limiter
	soilLimiter    *rate.Limiter

	group singleflight.Group
	bus   *events.Bus
	log   zerolog.Logger
}

// NewService creates the ingestion service with per-source token buckets.
func NewService(cache *clientdata.Repository, w WeatherAPI, m MarketAPI, s SoilAPI, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		cache:          cache,
		weather:        w,
		market:         m,
		soil:           s,
		weatherLimiter: rate.NewLimiter(rate.Every(time.Minute/weatherRatePerMin), 10),
		marketLimiter:  rate.NewLimiter(rate.Every(time.Minute/marketRatePerMin), 2),
		soilLimiter:    rate.NewLimiter(rate.Every(time.Minute/soilRatePerMin), 5),
		bus:            bus,
		log:            log.With().Str("service", "ingest").Logger(),
	}
}

// FetchWeather returns current conditions for a location, tagged with
// provenance. Never returns an error: failures degrade to the documented
// fallback payload (30.0 C, 65.0% humidity).
func (s *Service) FetchWeather(ctx context.Context, loc Location) domain.CollectorResult {
	return s.fetch(ctx, fetchSpec{
		source:  "weather",
		key:     loc.Key(),
		ttl:     clientdata.TTLWeather,
		limiter: s.weatherLimiter,
		live: func(ctx context.Context) (interface{}, error) {
			p, err := s.weather.GetCurrent(ctx, loc.Lat, loc.Lon)
			if err != nil {
				return nil, err
			}
			if err := validateWeather(p); err != nil {
				return nil, err
			}
			return p, nil
		},
		fallback: weather.FallbackPayload(),
	})
}

// FetchMarket returns the latest commodity price, tagged with provenance.
func (s *Service) FetchMarket(ctx context.Context, commodity string) domain.CollectorResult {
	return s.fetch(ctx, fetchSpec{
		source:  "market",
		key:     commodity,
		ttl:     clientdata.TTLMarket,
		limiter: s.marketLimiter,
		live: func(ctx context.Context) (interface{}, error) {
			p, err := s.market.GetCommodityPrice(ctx, commodity)
			if err != nil {
				return nil, err
			}
			if err := validateMarket(p); err != nil {
				return nil, err
			}
			return p, nil
		},
		fallback: market.FallbackPayload(commodity),
	})
}

// FetchMarketHistory returns the recent monthly price series for trend
// indicators. Shares the market token bucket.
func (s *Service) FetchMarketHistory(ctx context.Context, commodity string, months int) domain.CollectorResult {
	return s.fetch(ctx, fetchSpec{
		source:  "market_history",
		key:     commodity,
		ttl:     clientdata.TTLMarketHistory,
		limiter: s.marketLimiter,
		live: func(ctx context.Context) (interface{}, error) {
			p, err := s.market.GetPriceHistory(ctx, commodity, months)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		fallback: market.HistoryPayload{Commodity: commodity, Prices: []float64{450, 450, 450}},
	})
}

// FetchSoil returns topsoil properties for a location, tagged with provenance.
func (s *Service) FetchSoil(ctx context.Context, loc Location) domain.CollectorResult {
	return s.fetch(ctx, fetchSpec{
		source:  "soil",
		key:     loc.Key(),
		ttl:     clientdata.TTLSoil,
		limiter: s.soilLimiter,
		live: func(ctx context.Context) (interface{}, error) {
			p, err := s.soil.GetProperties(ctx, loc.Lat, loc.Lon)
			if err != nil {
				return nil, err
			}
			if err := validateSoil(p); err != nil {
				return nil, err
			}
			return p, nil
		},
		fallback: soil.FallbackPayload(),
	})
}

type fetchSpec struct {
	source   string
	key      string
	ttl      time.Duration
	limiter  *rate.Limiter
	live     func(ctx context.Context) (interface{}, error)
	fallback interface{}
}

// fetch implements the shared pipeline: fresh cache hit -> Cached; otherwise
// one collapsed live fetch behind the token bucket -> Live on success; any
// failure -> Fallback. Concurrent callers for the same source+key share the
// single in-flight fetch so quota is consumed once.
func (s *Service) fetch(ctx context.Context, spec fetchSpec) domain.CollectorResult {
	if cached, err := s.cache.GetIfFresh(spec.source, spec.key); err == nil && cached != nil {
		s.log.Debug().Str("source", spec.source).Str("key", spec.key).Msg("Cache hit")
		return s.tagged(spec, domain.ProvenanceCached, cached)
	}

	flightKey := spec.source + ":" + spec.key
	v, _, _ := s.group.Do(flightKey, func() (interface{}, error) {
		// Another caller may have refreshed the cache while we waited for
		// the flight slot.
		if cached, err := s.cache.GetIfFresh(spec.source, spec.key); err == nil && cached != nil {
			return s.tagged(spec, domain.ProvenanceCached, cached), nil
		}

		if !spec.limiter.Allow() {
			s.log.Warn().Str("source", spec.source).Str("key", spec.key).Msg("Rate limit exhausted, serving fallback")
			return s.fallbackResult(spec), nil
		}

		payload, err := s.liveWithRetry(ctx, spec)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("source", spec.source).
				Str("key", spec.key).
				Msg("Live fetch failed, serving fallback")
			return s.fallbackResult(spec), nil
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return s.fallbackResult(spec), nil
		}
		if err := s.cache.Store(spec.source, spec.key, payload, spec.ttl); err != nil {
			s.log.Warn().Err(err).Str("source", spec.source).Msg("Failed to cache payload")
		}
		return s.tagged(spec, domain.ProvenanceLive, raw), nil
	})

	return v.(domain.CollectorResult)
}

// liveWithRetry runs the live fetch with bounded exponential backoff.
// Validation failures are data-quality failures, not transient, so they are
// not retried.
func (s *Service) liveWithRetry(ctx context.Context, spec fetchSpec) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		if attempt > 0 {
			wait := retryBackoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		payload, err := spec.live(attemptCtx)
		cancel()
		if err == nil {
			return payload, nil
		}
		if isValidationError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) fallbackResult(spec fetchSpec) domain.CollectorResult {
	raw, _ := json.Marshal(spec.fallback)
	return s.tagged(spec, domain.ProvenanceFallback, raw)
}

func (s *Service) tagged(spec fetchSpec, p domain.Provenance, payload json.RawMessage) domain.CollectorResult {
	result := domain.CollectorResult{
		Source:     spec.source,
		Key:        spec.key,
		Provenance: p,
		Payload:    payload,
		FetchedAt:  time.Now(),
	}
	if s.bus != nil {
		s.bus.Publish(events.FetchCompleted, "ingest", map[string]interface{}{
			"source":     spec.source,
			"key":        spec.key,
			"provenance": string(p),
		})
	}
	return result
}
