package ingest

import (
	"errors"
	"fmt"

	"github.com/agrilab/quantfarm/internal/collectors/market"
	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/domain"
)

// Range checks applied to live payloads before they are cached. A violation
// is treated as a fetch failure: the value never reaches the cache or the
// model layer, and the caller receives the tagged fallback instead.

func validateWeather(p *weather.Payload) error {
	if p.Temperature < -10 || p.Temperature > 55 {
		return fmt.Errorf("%w: temperature %.1f outside [-10, 55] celsius", domain.ErrValidation, p.Temperature)
	}
	if p.Humidity < 0 || p.Humidity > 100 {
		return fmt.Errorf("%w: humidity %.1f outside [0, 100] percent", domain.ErrValidation, p.Humidity)
	}
	return nil
}

func validateMarket(p *market.Payload) error {
	if p.Price <= 0 {
		return fmt.Errorf("%w: non-positive price %.2f for %s", domain.ErrValidation, p.Price, p.Commodity)
	}
	return nil
}

func validateSoil(p *soil.Payload) error {
	if p.SoilPH < 3.5 || p.SoilPH > 9.5 {
		return fmt.Errorf("%w: soil pH %.2f outside [3.5, 9.5]", domain.ErrValidation, p.SoilPH)
	}
	if p.NitrogenGPerKg < 0 {
		return fmt.Errorf("%w: negative nitrogen %.3f g/kg", domain.ErrValidation, p.NitrogenGPerKg)
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
