package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

func buildTestCircuit(t *testing.T, qubits, depth int) (*circuit.Description, []float64) {
	t.Helper()
	features := make([]float64, qubits)
	for i := range features {
		features[i] = 0.3 + 0.1*float64(i)
	}
	desc, err := circuit.Build(features, qubits, depth, circuit.MapAngle, circuit.AnsatzRealAmplitudes)
	require.NoError(t, err)
	params, err := circuit.InitialParams(circuit.AnsatzRealAmplitudes, qubits, depth, 11)
	require.NoError(t, err)
	return desc, params
}

func TestSimulator_CountsSumToShots(t *testing.T) {
	adapter := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 42}, zerolog.Nop())
	desc, params := buildTestCircuit(t, 3, 2)

	result, err := adapter.Evaluate(context.Background(), desc, params, 1024)
	require.NoError(t, err)

	total := 0
	for bits, count := range result.Counts {
		assert.Len(t, bits, 3)
		assert.Greater(t, count, 0)
		total += count
	}
	assert.Equal(t, 1024, total)
	assert.Equal(t, 1024, result.Shots)

	assert.GreaterOrEqual(t, result.Expectation, 0.0)
	assert.LessOrEqual(t, result.Expectation, 1.0)
	assert.GreaterOrEqual(t, result.Variance, 0.0)
}

func TestSimulator_Deterministic(t *testing.T) {
	desc, params := buildTestCircuit(t, 2, 1)

	a := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 7}, zerolog.Nop())
	b := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 7}, zerolog.Nop())

	ra, err := a.Evaluate(context.Background(), desc, params, 512)
	require.NoError(t, err)
	rb, err := b.Evaluate(context.Background(), desc, params, 512)
	require.NoError(t, err)

	assert.Equal(t, ra.Counts, rb.Counts)
	assert.Equal(t, ra.Expectation, rb.Expectation)
}

func TestAdapter_ShotBounds(t *testing.T) {
	adapter := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 1}, zerolog.Nop())
	desc, params := buildTestCircuit(t, 2, 1)

	_, err := adapter.Evaluate(context.Background(), desc, params, MinShots-1)
	assert.Error(t, err)

	_, err = adapter.Evaluate(context.Background(), desc, params, MaxShots+1)
	assert.Error(t, err)
}

func TestAdapter_ParamLengthMismatch(t *testing.T) {
	adapter := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 1}, zerolog.Nop())
	desc, params := buildTestCircuit(t, 2, 1)

	_, err := adapter.Evaluate(context.Background(), desc, params[:len(params)-1], 512)
	assert.Error(t, err)
}

func TestAdapter_CircuitTooDeepForFakeDevice(t *testing.T) {
	// The fake device declares one less than the builder maximum.
	adapter := NewAdapter(AdapterConfig{Kind: KindFakeDevice, Seed: 1}, zerolog.Nop())
	desc, params := buildTestCircuit(t, 2, circuit.MaxDepth)

	_, err := adapter.Evaluate(context.Background(), desc, params, 512)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitTooDeep))
}

func TestAdapter_DegradesToSimulator(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff makes this slow")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewAdapter(AdapterConfig{Kind: KindRealDevice, Seed: 3, RemoteURL: srv.URL}, zerolog.Nop())
	desc, params := buildTestCircuit(t, 2, 1)

	result, err := adapter.Evaluate(context.Background(), desc, params, 512)
	require.NoError(t, err, "adapter must degrade to the local simulator")

	total := 0
	for _, count := range result.Counts {
		total += count
	}
	assert.Equal(t, 512, total)
}

func TestKernelCircuit_SelfFidelityIsOne(t *testing.T) {
	// Encoding x then un-encoding x returns the all-zeros state exactly.
	a := []float64{0.35, 0.8}
	desc, err := circuit.BuildKernel(a, a, 2, 1, circuit.MapAngle)
	require.NoError(t, err)

	adapter := NewAdapter(AdapterConfig{Kind: KindSimulator, Seed: 5}, zerolog.Nop())
	result, err := adapter.Evaluate(context.Background(), desc, nil, 1024)
	require.NoError(t, err)

	zeros := strings.Repeat("0", 2)
	assert.Equal(t, 1024, result.Counts[zeros])
}
