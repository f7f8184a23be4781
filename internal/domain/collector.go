package domain

import (
	"encoding/json"
	"time"
)

// Provenance tags where a collector value came from. Every downstream
// consumer must be able to distinguish live, cached, and fallback data.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceCached   Provenance = "cached"
	ProvenanceFallback Provenance = "fallback"
)

// CollectorResult is the tagged output of a data-source fetch. Payload is the
// raw collector JSON; the ingestion layer decodes it per source.
type CollectorResult struct {
	Source     string          `json:"source"`
	Key        string          `json:"key"`
	Provenance Provenance      `json:"provenance"`
	Payload    json.RawMessage `json:"payload"`
	FetchedAt  time.Time       `json:"fetched_at"`
}
