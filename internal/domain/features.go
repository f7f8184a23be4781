// Package domain holds the pure core types of the prediction pipeline:
// feature vectors with declared field ranges, collector results with
// provenance tags, and the shared error taxonomy. No infrastructure imports.
package domain

import "fmt"

// FieldSpec declares the valid raw range and unit for one feature field.
type FieldSpec struct {
	Name string
	Unit string
	Min  float64
	Max  float64
}

// FeatureFields is the canonical field order for feature vectors. Encoders
// and collectors rely on this order; do not reorder.
var FeatureFields = []FieldSpec{
	{Name: "temperature", Unit: "celsius", Min: -10, Max: 55},
	{Name: "humidity", Unit: "percent", Min: 0, Max: 100},
	{Name: "soil_ph", Unit: "ph", Min: 3.5, Max: 9.5},
	{Name: "rainfall", Unit: "mm", Min: 0, Max: 500},
	{Name: "fertilizer", Unit: "kg_per_hectare", Min: 0, Max: 500},
}

// FeatureVector carries raw (un-normalized) sensor and input values.
// Field order matches FeatureFields.
type FeatureVector struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	SoilPH      float64 `json:"soil_ph"`
	Rainfall    float64 `json:"rainfall"`
	Fertilizer  float64 `json:"fertilizer"`
}

// Raw returns the raw values in canonical field order.
func (f FeatureVector) Raw() []float64 {
	return []float64{f.Temperature, f.Humidity, f.SoilPH, f.Rainfall, f.Fertilizer}
}

// Validate checks every field against its declared range.
func (f FeatureVector) Validate() error {
	raw := f.Raw()
	for i, spec := range FeatureFields {
		if raw[i] < spec.Min || raw[i] > spec.Max {
			return fmt.Errorf("%w: %s=%.2f outside [%.1f, %.1f] %s",
				ErrValidation, spec.Name, raw[i], spec.Min, spec.Max, spec.Unit)
		}
	}
	return nil
}

// Normalize validates the vector and maps every field into [0,1] using its
// declared range. Out-of-range raw input is rejected before normalization.
func (f FeatureVector) Normalize() ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	raw := f.Raw()
	out := make([]float64, len(raw))
	for i, spec := range FeatureFields {
		out[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return out, nil
}
