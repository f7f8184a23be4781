package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/clientdata"
	"github.com/agrilab/quantfarm/internal/collectors/market"
	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/config"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/ingest"
	"github.com/agrilab/quantfarm/internal/models"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/backend"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
	"github.com/agrilab/quantfarm/internal/reliability"
)

type staticWeather struct{}

func (staticWeather) GetCurrent(ctx context.Context, lat, lon float64) (*weather.Payload, error) {
	return &weather.Payload{Temperature: 29, Humidity: 68, City: "Mumbai"}, nil
}

type staticMarket struct{}

func (staticMarket) GetCommodityPrice(ctx context.Context, commodity string) (*market.Payload, error) {
	return &market.Payload{Commodity: commodity, Price: 455, Unit: "USD/mt", Date: "2026-08-01"}, nil
}

func (staticMarket) GetPriceHistory(ctx context.Context, commodity string, months int) (*market.HistoryPayload, error) {
	return &market.HistoryPayload{Commodity: commodity, Prices: []float64{420, 430, 440, 455}}, nil
}

type staticSoil struct{}

func (staticSoil) GetProperties(ctx context.Context, lat, lon float64) (*soil.Payload, error) {
	return &soil.Payload{SoilPH: 6.7, OrganicCarbon: 1.3, CationExchange: 13, NitrogenGPerKg: 0.18}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()

	cfg := &config.Config{
		DataDir: t.TempDir(),
		Port:    0,
		Quantum: config.QuantumConfig{
			Qubits:  4,
			Depth:   2,
			Shots:   512,
			Backend: backend.KindSimulator,
			Seed:    42,
		},
		Locations:    []ingest.Location{{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777}},
		Commodities:  []string{"WHEAT"},
		Zones:        []models.Zone{{ID: "north", RequirementLiters: 1200}, {ID: "east", RequirementLiters: 900}, {ID: "south", RequirementLiters: 600}, {ID: "west", RequirementLiters: 800}},
		BudgetLiters: 2800,
	}

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache := clientdata.NewRepository(db)
	require.NoError(t, cache.InitSchema())

	bus := events.NewBus(log)
	ing := ingest.NewService(cache, staticWeather{}, staticMarket{}, staticSoil{}, bus, log)

	adapter := backend.NewAdapter(backend.AdapterConfig{Kind: cfg.Quantum.Backend, Seed: cfg.Quantum.Seed}, log)
	modelCfg := models.Config{
		Qubits:     cfg.Quantum.Qubits,
		Depth:      cfg.Quantum.Depth,
		Shots:      cfg.Quantum.Shots,
		FeatureMap: circuit.MapAngle,
		Ansatz:     circuit.AnsatzRealAmplitudes,
		Seed:       cfg.Quantum.Seed,
		Optimizer:  optimizer.Options{Method: optimizer.MethodSPSA, MaxIter: 6, Patience: 3},
	}

	irrigation, err := models.NewIrrigationModel(modelCfg, cfg.Zones, cfg.BudgetLiters, adapter, bus, log)
	require.NoError(t, err)

	snapshots, err := reliability.NewSnapshotService(cfg.DataDir, bus, log)
	require.NoError(t, err)

	return New(Deps{
		Cfg:        cfg,
		Ingest:     ing,
		Yield:      models.NewYieldRegressor(modelCfg, adapter, bus, log),
		Irrigation: irrigation,
		Pest:       models.NewPestClassifier(modelCfg, adapter, bus, log),
		Snapshots:  snapshots,
		Bus:        bus,
		Log:        log,
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]string
	decodeData(t, rec, &data)
	assert.Equal(t, "healthy", data["status"])
}

func TestPredictBeforeTrainReturnsConflict(t *testing.T) {
	s := testServer(t)

	body := map[string]interface{}{
		"features": map[string]float64{
			"temperature": 28, "humidity": 70, "soil_ph": 6.5, "rainfall": 100, "fertilizer": 60,
		},
	}
	rec := doRequest(t, s, http.MethodPost, "/api/models/yield/predict", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestYieldTrainThenPredict(t *testing.T) {
	s := testServer(t)

	examples := make([]map[string]interface{}, 5)
	for i := range examples {
		examples[i] = map[string]interface{}{
			"features": map[string]float64{
				"temperature": 20 + float64(i)*3,
				"humidity":    50 + float64(i)*5,
				"soil_ph":     6.0 + float64(i)*0.2,
				"rainfall":    80 + float64(i)*20,
				"fertilizer":  40 + float64(i)*10,
			},
			"yield_tons_per_hectare": 2.5 + 0.4*float64(i),
		}
	}

	rec := doRequest(t, s, http.MethodPost, "/api/models/yield/train", map[string]interface{}{"examples": examples})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report models.TrainingReport
	decodeData(t, rec, &report)
	assert.Equal(t, "yield_regressor", report.Model)
	assert.Equal(t, 5, report.Examples)

	rec = doRequest(t, s, http.MethodPost, "/api/models/yield/predict", map[string]interface{}{
		"features": examples[2]["features"],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pred models.Prediction
	decodeData(t, rec, &pred)
	require.NotNil(t, pred.Yield)
	assert.Greater(t, pred.Yield.TonsPerHectare, 0.0)
}

func TestTrainRejectsTooFewExamples(t *testing.T) {
	s := testServer(t)

	body := map[string]interface{}{
		"examples": []map[string]interface{}{
			{"features": map[string]float64{"temperature": 25, "humidity": 60, "soil_ph": 6.5, "rainfall": 100, "fertilizer": 50}, "yield_tons_per_hectare": 3.0},
		},
	}
	rec := doRequest(t, s, http.MethodPost, "/api/models/yield/train", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBodyRejected(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/models/yield/predict", bytes.NewBufferString(`{"bogus_field": 1}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownSnapshotModelRejected(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/models/sentiment/snapshot", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeatherEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/data/weather?location=Mumbai", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Source     string          `json:"source"`
		Provenance string          `json:"provenance"`
		Payload    json.RawMessage `json:"payload"`
	}
	decodeData(t, rec, &result)
	assert.Equal(t, "weather", result.Source)
	assert.Equal(t, "live", result.Provenance)
}

func TestWeatherEndpoint_UnknownLocation(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/data/weather?location=Atlantis", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeaturesEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/data/features?rainfall_mm=120&fertilizer_kg_ha=80", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Features   map[string]float64 `json:"features"`
		Provenance string             `json:"provenance"`
	}
	decodeData(t, rec, &data)
	assert.Equal(t, 29.0, data.Features["temperature"])
	assert.Equal(t, 120.0, data.Features["rainfall"])
	assert.Equal(t, "live", data.Provenance)
}

func TestMarketHistoryIncludesTrend(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/data/market/history?commodity=WHEAT&months=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Trend *ingest.Trend `json:"trend"`
	}
	decodeData(t, rec, &data)
	require.NotNil(t, data.Trend)
	assert.True(t, data.Trend.Rising)
}

func TestEnvelopeCarriesMetadata(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Metadata struct {
			Timestamp string `json:"timestamp"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Metadata.Timestamp)
}
