package ingest

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/domain"
)

// BuildFeatureVector assembles the model input from collector payloads plus
// the caller-supplied agronomy inputs. Rainfall and fertilizer are not
// observable from the current-conditions APIs, so orchestration supplies them.
func BuildFeatureVector(w weather.Payload, s soil.Payload, rainfallMM, fertilizerKgHa float64) domain.FeatureVector {
	return domain.FeatureVector{
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		SoilPH:      s.SoilPH,
		Rainfall:    rainfallMM,
		Fertilizer:  fertilizerKgHa,
	}
}

// Trend summarizes a commodity price series for market context on
// predictions.
type Trend struct {
	LastPrice   float64 `json:"last_price"`
	SMA         float64 `json:"sma"`
	MomentumPct float64 `json:"momentum_pct"`
	Rising      bool    `json:"rising"`
}

// trendPeriod is the lookback for the moving average and rate of change.
const trendPeriod = 3

// PriceTrend computes SMA and momentum over a monthly price series
// (chronological, oldest first).
func PriceTrend(prices []float64) (*Trend, error) {
	if len(prices) < trendPeriod+1 {
		return nil, fmt.Errorf("need at least %d prices, got %d", trendPeriod+1, len(prices))
	}

	sma := talib.Sma(prices, trendPeriod)
	roc := talib.Roc(prices, trendPeriod)

	last := prices[len(prices)-1]
	t := &Trend{
		LastPrice:   last,
		SMA:         sma[len(sma)-1],
		MomentumPct: roc[len(roc)-1],
	}
	t.Rising = t.MomentumPct > 0
	return t, nil
}
