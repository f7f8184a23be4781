// Package jobs holds the scheduled background jobs: cache warming for the
// configured farm locations and expired-entry cleanup.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/clientdata"
	"github.com/agrilab/quantfarm/internal/ingest"
)

const refreshTimeout = 2 * time.Minute

// CacheRefreshJob re-fetches weather, soil and market data for the configured
// farm locations so interactive requests hit a warm cache. Fetches go through
// the ingest service and therefore respect rate limits and fallbacks.
type CacheRefreshJob struct {
	ingest      *ingest.Service
	locations   []ingest.Location
	commodities []string
	log         zerolog.Logger
}

// NewCacheRefreshJob creates the cache warming job.
func NewCacheRefreshJob(svc *ingest.Service, locations []ingest.Location, commodities []string, log zerolog.Logger) *CacheRefreshJob {
	return &CacheRefreshJob{
		ingest:      svc,
		locations:   locations,
		commodities: commodities,
		log:         log.With().Str("job", "cache_refresh").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *CacheRefreshJob) Name() string { return "cache_refresh" }

// Run implements scheduler.Job. Collector results carry their provenance, so
// a degraded upstream shows up as fallback entries rather than a job failure.
func (j *CacheRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, loc := range j.locations {
		w := j.ingest.FetchWeather(ctx, loc)
		s := j.ingest.FetchSoil(ctx, loc)
		j.log.Debug().
			Str("location", loc.Name).
			Str("weather", string(w.Provenance)).
			Str("soil", string(s.Provenance)).
			Msg("Location refreshed")
	}

	for _, commodity := range j.commodities {
		m := j.ingest.FetchMarket(ctx, commodity)
		j.log.Debug().
			Str("commodity", commodity).
			Str("provenance", string(m.Provenance)).
			Msg("Market refreshed")
	}

	return nil
}

// CacheCleanupJob deletes cache rows whose TTL plus grace has elapsed.
type CacheCleanupJob struct {
	cache *clientdata.Repository
	grace time.Duration
	log   zerolog.Logger
}

// NewCacheCleanupJob creates the cleanup job. Grace keeps recently expired
// rows available as fallback material for a while.
func NewCacheCleanupJob(cache *clientdata.Repository, grace time.Duration, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache: cache,
		grace: grace,
		log:   log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *CacheCleanupJob) Name() string { return "cache_cleanup" }

// Run implements scheduler.Job.
func (j *CacheCleanupJob) Run() error {
	deleted, err := j.cache.CleanupExpired(j.grace)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Expired cache entries removed")
	}
	return nil
}
