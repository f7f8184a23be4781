package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/clientdata"
	"github.com/agrilab/quantfarm/internal/collectors/market"
	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/domain"
)

type fakeWeather struct {
	calls   int
	payload weather.Payload
	err     error
}

func (f *fakeWeather) GetCurrent(ctx context.Context, lat, lon float64) (*weather.Payload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := f.payload
	return &p, nil
}

type fakeMarket struct {
	calls int
	price float64
}

func (f *fakeMarket) GetCommodityPrice(ctx context.Context, commodity string) (*market.Payload, error) {
	f.calls++
	return &market.Payload{Commodity: commodity, Price: f.price, Unit: "USD/mt", Date: "2026-08-01"}, nil
}

func (f *fakeMarket) GetPriceHistory(ctx context.Context, commodity string, months int) (*market.HistoryPayload, error) {
	f.calls++
	return &market.HistoryPayload{Commodity: commodity, Prices: []float64{400, 410, 420, 430, 445, 450}}, nil
}

type fakeSoil struct {
	calls   int
	payload soil.Payload
}

func (f *fakeSoil) GetProperties(ctx context.Context, lat, lon float64) (*soil.Payload, error) {
	f.calls++
	p := f.payload
	return &p, nil
}

func testCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := clientdata.NewRepository(db)
	require.NoError(t, repo.InitSchema())
	return repo
}

func mumbai() Location {
	return Location{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777}
}

func newTestService(t *testing.T, w *fakeWeather, m *fakeMarket, s *fakeSoil) *Service {
	t.Helper()
	return NewService(testCache(t), w, m, s, nil, zerolog.Nop())
}

func TestFetchWeather_LiveThenCached(t *testing.T) {
	w := &fakeWeather{payload: weather.Payload{Temperature: 31, Humidity: 70, City: "Mumbai"}}
	svc := newTestService(t, w, &fakeMarket{price: 450}, &fakeSoil{})

	first := svc.FetchWeather(context.Background(), mumbai())
	assert.Equal(t, domain.ProvenanceLive, first.Provenance)
	assert.Equal(t, 1, w.calls)

	second := svc.FetchWeather(context.Background(), mumbai())
	assert.Equal(t, domain.ProvenanceCached, second.Provenance)
	assert.Equal(t, 1, w.calls, "cache hit must not call the upstream API")

	// Identical payload both times.
	var a, b weather.Payload
	require.NoError(t, json.Unmarshal(first.Payload, &a))
	require.NoError(t, json.Unmarshal(second.Payload, &b))
	assert.Equal(t, a, b)
}

func TestFetchWeather_ValidationFailureFallsBack(t *testing.T) {
	w := &fakeWeather{payload: weather.Payload{Temperature: 80, Humidity: 70}}
	svc := newTestService(t, w, &fakeMarket{price: 450}, &fakeSoil{})

	result := svc.FetchWeather(context.Background(), mumbai())
	assert.Equal(t, domain.ProvenanceFallback, result.Provenance)
	assert.Equal(t, 1, w.calls, "out-of-range data is not retried")

	var p weather.Payload
	require.NoError(t, json.Unmarshal(result.Payload, &p))
	assert.Equal(t, 30.0, p.Temperature)
	assert.Equal(t, 65.0, p.Humidity)
}

func TestFetchWeather_TransientErrorRetriesThenFallsBack(t *testing.T) {
	w := &fakeWeather{err: fmt.Errorf("connection reset")}
	svc := newTestService(t, w, &fakeMarket{price: 450}, &fakeSoil{})

	result := svc.FetchWeather(context.Background(), mumbai())
	assert.Equal(t, domain.ProvenanceFallback, result.Provenance)
	assert.Equal(t, 3, w.calls, "transient failures get two retries")
}

func TestFetchMarket_RateLimitServesFallback(t *testing.T) {
	m := &fakeMarket{price: 450}
	svc := newTestService(t, &fakeWeather{}, m, &fakeSoil{})

	// Market burst is two tokens; distinct commodities bypass the cache.
	r1 := svc.FetchMarket(context.Background(), "WHEAT")
	r2 := svc.FetchMarket(context.Background(), "CORN")
	r3 := svc.FetchMarket(context.Background(), "RICE")

	assert.Equal(t, domain.ProvenanceLive, r1.Provenance)
	assert.Equal(t, domain.ProvenanceLive, r2.Provenance)
	assert.Equal(t, domain.ProvenanceFallback, r3.Provenance)
	assert.Equal(t, 2, m.calls, "rate-limited fetch must not reach the API")

	var p market.Payload
	require.NoError(t, json.Unmarshal(r3.Payload, &p))
	assert.Equal(t, "RICE", p.Commodity)
	assert.Equal(t, 450.0, p.Price)
}

func TestFetchSoil_LiveResult(t *testing.T) {
	s := &fakeSoil{payload: soil.Payload{SoilPH: 6.8, OrganicCarbon: 1.2, CationExchange: 14, NitrogenGPerKg: 0.2}}
	svc := newTestService(t, &fakeWeather{}, &fakeMarket{price: 450}, s)

	result := svc.FetchSoil(context.Background(), mumbai())
	assert.Equal(t, domain.ProvenanceLive, result.Provenance)
	assert.Equal(t, "soil", result.Source)
	assert.Equal(t, mumbai().Key(), result.Key)
}

func TestFetchResultAlwaysTagged(t *testing.T) {
	svc := newTestService(t, &fakeWeather{payload: weather.Payload{Temperature: 25, Humidity: 60}},
		&fakeMarket{price: 450}, &fakeSoil{payload: soil.Payload{SoilPH: 6.5}})

	results := []domain.CollectorResult{
		svc.FetchWeather(context.Background(), mumbai()),
		svc.FetchMarket(context.Background(), "WHEAT"),
		svc.FetchSoil(context.Background(), mumbai()),
		svc.FetchMarketHistory(context.Background(), "WHEAT", 6),
	}
	for _, r := range results {
		assert.NotEmpty(t, r.Source)
		assert.NotEmpty(t, r.Provenance)
		assert.NotEmpty(t, r.Payload)
		assert.False(t, r.FetchedAt.IsZero())
	}
}
