package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVector() FeatureVector {
	return FeatureVector{
		Temperature: 28.5,
		Humidity:    70,
		SoilPH:      6.5,
		Rainfall:    120,
		Fertilizer:  80,
	}
}

func TestFeatureVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FeatureVector)
		wantErr bool
	}{
		{name: "valid vector", mutate: func(f *FeatureVector) {}, wantErr: false},
		{name: "temperature at lower bound", mutate: func(f *FeatureVector) { f.Temperature = -10 }, wantErr: false},
		{name: "temperature at upper bound", mutate: func(f *FeatureVector) { f.Temperature = 55 }, wantErr: false},
		{name: "temperature too cold", mutate: func(f *FeatureVector) { f.Temperature = -10.1 }, wantErr: true},
		{name: "temperature too hot", mutate: func(f *FeatureVector) { f.Temperature = 60 }, wantErr: true},
		{name: "humidity negative", mutate: func(f *FeatureVector) { f.Humidity = -1 }, wantErr: true},
		{name: "humidity over 100", mutate: func(f *FeatureVector) { f.Humidity = 101 }, wantErr: true},
		{name: "ph too acidic", mutate: func(f *FeatureVector) { f.SoilPH = 3.4 }, wantErr: true},
		{name: "ph too alkaline", mutate: func(f *FeatureVector) { f.SoilPH = 9.6 }, wantErr: true},
		{name: "rainfall negative", mutate: func(f *FeatureVector) { f.Rainfall = -5 }, wantErr: true},
		{name: "rainfall excessive", mutate: func(f *FeatureVector) { f.Rainfall = 501 }, wantErr: true},
		{name: "fertilizer excessive", mutate: func(f *FeatureVector) { f.Fertilizer = 500.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validVector()
			tt.mutate(&f)

			err := f.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFeatureVector_Normalize(t *testing.T) {
	f := validVector()

	norm, err := f.Normalize()
	require.NoError(t, err)
	require.Len(t, norm, len(FeatureFields))

	for i, v := range norm {
		assert.GreaterOrEqual(t, v, 0.0, "feature %s", FeatureFields[i].Name)
		assert.LessOrEqual(t, v, 1.0, "feature %s", FeatureFields[i].Name)
	}

	// Canonical order: temperature first, fertilizer last.
	assert.InDelta(t, (28.5+10)/65, norm[0], 1e-9)
	assert.InDelta(t, 80.0/500, norm[4], 1e-9)
}

func TestFeatureVector_NormalizeRejectsInvalid(t *testing.T) {
	f := validVector()
	f.Humidity = 150

	_, err := f.Normalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}
