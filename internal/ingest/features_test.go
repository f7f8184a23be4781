package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
)

func TestBuildFeatureVector(t *testing.T) {
	w := weather.Payload{Temperature: 28.5, Humidity: 72, City: "Mumbai"}
	s := soil.Payload{SoilPH: 6.8, OrganicCarbon: 1.2}

	fv := BuildFeatureVector(w, s, 120, 80)

	assert.Equal(t, 28.5, fv.Temperature)
	assert.Equal(t, 72.0, fv.Humidity)
	assert.Equal(t, 6.8, fv.SoilPH)
	assert.Equal(t, 120.0, fv.Rainfall)
	assert.Equal(t, 80.0, fv.Fertilizer)
}

func TestPriceTrend_Rising(t *testing.T) {
	prices := []float64{400, 410, 425, 440, 455, 470}

	trend, err := PriceTrend(prices)
	require.NoError(t, err)

	assert.Equal(t, 470.0, trend.LastPrice)
	assert.True(t, trend.Rising)
	assert.Greater(t, trend.MomentumPct, 0.0)

	// SMA over the last three months.
	assert.InDelta(t, (440.0+455.0+470.0)/3, trend.SMA, 1e-9)
}

func TestPriceTrend_Falling(t *testing.T) {
	prices := []float64{500, 480, 460, 440, 420}

	trend, err := PriceTrend(prices)
	require.NoError(t, err)

	assert.False(t, trend.Rising)
	assert.Less(t, trend.MomentumPct, 0.0)
}

func TestPriceTrend_ShortSeries(t *testing.T) {
	_, err := PriceTrend([]float64{450, 455, 460})
	assert.Error(t, err)
}
