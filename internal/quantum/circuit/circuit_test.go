package circuit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/domain"
)

func TestParamCount(t *testing.T) {
	tests := []struct {
		name   string
		kind   AnsatzKind
		qubits int
		depth  int
		want   int
	}{
		{"real amplitudes 4x3", AnsatzRealAmplitudes, 4, 3, 16},
		{"real amplitudes 2x1", AnsatzRealAmplitudes, 2, 1, 4},
		{"efficient su2 4x3", AnsatzEfficientSU2, 4, 3, 32},
		{"two local 3x2", AnsatzTwoLocal, 3, 2, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParamCount(tt.kind, tt.qubits, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParamCount(AnsatzKind("bogus"), 4, 3)
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	features := []float64{0.2, 0.5, 0.8}

	desc, err := Build(features, 4, 2, MapAngle, AnsatzRealAmplitudes)
	require.NoError(t, err)

	assert.Equal(t, 4, desc.Qubits)
	assert.Equal(t, 2, desc.Depth)
	assert.NotEmpty(t, desc.Gates)

	want, err := ParamCount(AnsatzRealAmplitudes, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, want, desc.NumParams)
}

func TestBuild_TooManyFeatures(t *testing.T) {
	// Capacity is one feature per qubit.
	features := []float64{0.1, 0.2, 0.3, 0.4, 0.5}

	_, err := Build(features, 4, 2, MapAngle, AnsatzRealAmplitudes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestBuild_RejectsUnnormalizedFeatures(t *testing.T) {
	_, err := Build([]float64{0.3, 1.5}, 2, 1, MapAngle, AnsatzRealAmplitudes)
	assert.Error(t, err)

	_, err = Build([]float64{-0.1, 0.5}, 2, 1, MapAngle, AnsatzRealAmplitudes)
	assert.Error(t, err)
}

func TestBuild_GeometryBounds(t *testing.T) {
	_, err := Build([]float64{0.5}, 1, 1, MapAngle, AnsatzRealAmplitudes)
	assert.Error(t, err, "qubits below minimum")

	_, err = Build([]float64{0.5, 0.5}, 2, 6, MapAngle, AnsatzRealAmplitudes)
	assert.Error(t, err, "depth above maximum")
}

func TestInitialParams(t *testing.T) {
	params, err := InitialParams(AnsatzEfficientSU2, 3, 2, 7)
	require.NoError(t, err)

	want, err := ParamCount(AnsatzEfficientSU2, 3, 2)
	require.NoError(t, err)
	require.Len(t, params, want)

	for _, p := range params {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.Less(t, p, 2*math.Pi)
	}

	// Same seed, same parameters.
	again, err := InitialParams(AnsatzEfficientSU2, 3, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, params, again)

	other, err := InitialParams(AnsatzEfficientSU2, 3, 2, 8)
	require.NoError(t, err)
	assert.NotEqual(t, params, other)
}

func TestBuildKernel(t *testing.T) {
	a := []float64{0.2, 0.7}
	b := []float64{0.4, 0.1}

	desc, err := BuildKernel(a, b, 2, 1, MapAngle)
	require.NoError(t, err)

	assert.Equal(t, 0, desc.NumParams, "kernel circuits carry no trainable parameters")
	assert.NotEmpty(t, desc.Gates)
}

func TestBuildKernel_LengthMismatch(t *testing.T) {
	_, err := BuildKernel([]float64{0.2}, []float64{0.4, 0.1}, 2, 1, MapAngle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}
