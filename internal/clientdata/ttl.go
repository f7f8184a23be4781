package clientdata

import "time"

// TTL constants for cached collector payloads.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Weather changes on the hour scale; 5 minutes keeps predictions fresh
	// while absorbing dashboard refresh bursts.
	TTLWeather = 5 * time.Minute

	// Commodity prices are monthly series; a day of staleness is invisible.
	TTLMarket = 24 * time.Hour

	// Soil composition is effectively static per location.
	TTLSoil = 7 * 24 * time.Hour

	// Price history backs trend indicators; refresh daily with the quotes.
	TTLMarketHistory = 24 * time.Hour
)
